package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/Ingestor/internal/domain"
)

// SystemFunc: исполняемая SYSTEM-задача.
//
// Вызывается внутри транзакции координатора (tx уже держит блокировку
// узла). Возвращённая строка сохраняется как сообщение узла, пустая
// строка: без сообщения. Ошибка переводит узел в Failed.
type SystemFunc func(ctx context.Context, tx pgx.Tx, node *domain.PipelineRunTask) (string, error)

// Entry: результат Resolve.
type Entry struct {
	// Kind: SYSTEM или USER.
	Kind domain.TaskKind

	// Func: функция задачи; nil для USER.
	Func SystemFunc

	// Definition: определение из БД.
	Definition domain.TaskDefinition
}

type registration struct {
	name string
	fn   SystemFunc
}

// Registry: реестр задач.
//
// Register вызывается при старте, затем Bind сверяет таблицу с БД.
// После Bind реестр только читается. Потокобезопасен.
type Registry struct {
	mu      sync.RWMutex
	funcs   map[int64]registration
	entries map[int64]Entry
	bound   bool
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[int64]registration),
	}
}

// Register регистрирует SYSTEM-функцию под глобально уникальным id.
func (r *Registry) Register(id int64, name string, fn SystemFunc) error {
	if fn == nil {
		return fmt.Errorf("register task %d: nil function", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, exists := r.funcs[id]; exists {
		return fmt.Errorf("%w: %d (%s and %s)", ErrDuplicateTask, id, prev.name, name)
	}
	r.funcs[id] = registration{name: name, fn: fn}
	r.bound = false
	return nil
}

// MustRegister: Register с паникой при ошибке (для статической таблицы).
func (r *Registry) MustRegister(id int64, name string, fn SystemFunc) {
	if err := r.Register(id, name, fn); err != nil {
		panic(err)
	}
}

// Bind сверяет зарегистрированные функции с определениями из БД
// и строит итоговую таблицу SYSTEM ∪ USER.
//
// Ошибки собираются все сразу, чтобы оператор увидел полный список.
func (r *Registry) Bind(defs []domain.TaskDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make(map[int64]Entry, len(defs))
	systemDefs := make(map[int64]bool)
	var errs []error

	for _, def := range defs {
		reg, registered := r.funcs[def.ID]
		switch def.Kind {
		case domain.TaskKindSystem:
			systemDefs[def.ID] = true
			if !registered {
				errs = append(errs, fmt.Errorf("%w: %d (%s)", ErrUnboundSystemTask, def.ID, def.Name))
				continue
			}
			entries[def.ID] = Entry{Kind: domain.TaskKindSystem, Func: reg.fn, Definition: def}
		case domain.TaskKindUser:
			if registered {
				errs = append(errs, fmt.Errorf("%w: %d (%s)", ErrTaskCollision, def.ID, def.Name))
				continue
			}
			entries[def.ID] = Entry{Kind: domain.TaskKindUser, Definition: def}
		default:
			errs = append(errs, fmt.Errorf("task %d: unknown kind %q", def.ID, def.Kind))
		}
	}

	for _, id := range sortedIDs(r.funcs) {
		if !systemDefs[id] && !isUserDef(defs, id) {
			errs = append(errs, fmt.Errorf("%w: %d (%s)", ErrUnknownSystemTask, id, r.funcs[id].name))
		}
	}

	if len(errs) > 0 {
		r.bound = false
		return errors.Join(errs...)
	}

	r.entries = entries
	r.bound = true
	return nil
}

// Resolve возвращает поведение задачи по id.
func (r *Registry) Resolve(id int64) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.bound {
		return Entry{}, ErrNotBound
	}
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %d", ErrTaskNotFound, id)
	}
	return e, nil
}

// SystemIDs возвращает отсортированные id зарегистрированных функций.
func (r *Registry) SystemIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedIDs(r.funcs)
}

// Count возвращает количество задач в связанной таблице.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func sortedIDs(m map[int64]registration) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func isUserDef(defs []domain.TaskDefinition, id int64) bool {
	for _, d := range defs {
		if d.ID == id && d.Kind == domain.TaskKindUser {
			return true
		}
	}
	return false
}
