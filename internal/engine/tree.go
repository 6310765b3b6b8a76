package engine

import (
	"sort"

	"github.com/shaiso/Ingestor/internal/domain"
)

// Flatten возвращает узлы run в порядке выполнения.
//
// Порядок: pre-order обход от корней (ParentID = 0): родитель всегда
// раньше детей, братья идут по возрастанию SiblingOrder (при равенстве - по ID).
// Обход итеративный (явный стек), глубина дерева не ограничена стеком вызовов.
//
// Узлы, чей родитель отсутствует в срезе, дописываются после основного
// дерева в том же порядке вместе со своими поддеревьями. Каждый узел
// встречается в результате ровно один раз.
func Flatten(nodes []*domain.PipelineRunTask) []*domain.PipelineRunTask {
	if len(nodes) == 0 {
		return nil
	}

	byID := make(map[int64]*domain.PipelineRunTask, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	children := make(map[int64][]*domain.PipelineRunTask)
	for _, n := range nodes {
		children[n.ParentID] = append(children[n.ParentID], n)
	}
	for _, c := range children {
		sortSiblings(c)
	}

	order := make([]*domain.PipelineRunTask, 0, len(nodes))
	visited := make(map[int64]bool, len(nodes))

	walk := func(roots []*domain.PipelineRunTask) {
		stack := make([]*domain.PipelineRunTask, 0, len(roots))
		// В стек кладём в обратном порядке, чтобы первым выйти первый брат
		for i := len(roots) - 1; i >= 0; i-- {
			stack = append(stack, roots[i])
		}

		for len(stack) > 0 {
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if visited[n.ID] {
				continue
			}
			visited[n.ID] = true
			order = append(order, n)

			kids := children[n.ID]
			for i := len(kids) - 1; i >= 0; i-- {
				if !visited[kids[i].ID] {
					stack = append(stack, kids[i])
				}
			}
		}
	}

	walk(children[0])

	if len(order) == len(nodes) {
		return order
	}

	// Сироты: родитель не найден среди узлов
	var orphans []*domain.PipelineRunTask
	for _, n := range nodes {
		if visited[n.ID] || n.ParentID == 0 {
			continue
		}
		if _, ok := byID[n.ParentID]; !ok {
			orphans = append(orphans, n)
		}
	}
	sortSiblings(orphans)
	walk(orphans)

	// Остаток: узлы в циклах родитель/ребёнок (повреждённые данные)
	if len(order) < len(nodes) {
		var rest []*domain.PipelineRunTask
		for _, n := range nodes {
			if !visited[n.ID] {
				rest = append(rest, n)
			}
		}
		sort.Slice(rest, func(i, j int) bool { return rest[i].ID < rest[j].ID })
		walk(rest)
	}

	return order
}

func sortSiblings(s []*domain.PipelineRunTask) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].SiblingOrder != s[j].SiblingOrder {
			return s[i].SiblingOrder < s[j].SiblingOrder
		}
		return s[i].ID < s[j].ID
	})
}

// FilterStage оставляет узлы с указанной стадией, сохраняя порядок.
// Пустая стадия возвращает срез без изменений.
func FilterStage(ordered []*domain.PipelineRunTask, stage string) []*domain.PipelineRunTask {
	if stage == "" {
		return ordered
	}
	out := make([]*domain.PipelineRunTask, 0, len(ordered))
	for _, n := range ordered {
		if n.Stage == stage {
			out = append(out, n)
		}
	}
	return out
}

// NextRunnable возвращает следующий узел для планирования.
//
// ordered: результат Flatten. stage ограничивает кандидатов узлами этой
// стадии (пустая строка: все узлы); предки ищутся по всему ordered.
// Следующий узел: первый Waiting, у которого все предки Complete.
//   - Scheduled/Running узел стадии блокирует run (*BlockedError): внутри
//     run одновременно исполняется не больше одного узла.
//   - Failed узел пропускается, его поддерево не запускается.
//   - Если кандидата нет, а Failed есть, возвращается *BlockedError
//     по первому Failed; иначе ErrRunComplete.
func NextRunnable(ordered []*domain.PipelineRunTask, stage string) (*domain.PipelineRunTask, error) {
	byID := make(map[int64]*domain.PipelineRunTask, len(ordered))
	for _, n := range ordered {
		byID[n.ID] = n
	}

	var failed *domain.PipelineRunTask
	for _, n := range ordered {
		if stage != "" && n.Stage != stage {
			continue
		}
		switch n.Status {
		case domain.NodeStatusComplete:
		case domain.NodeStatusWaiting:
			if ancestorsComplete(byID, n) {
				return n, nil
			}
		case domain.NodeStatusFailed:
			if failed == nil {
				failed = n
			}
		default:
			return nil, &BlockedError{NodeID: n.ID, Status: string(n.Status)}
		}
	}
	if failed != nil {
		return nil, &BlockedError{NodeID: failed.ID, Status: string(failed.Status)}
	}
	return nil, ErrRunComplete
}

// ancestorsComplete поднимается по ParentID. Предок вне среза не проверяется.
func ancestorsComplete(byID map[int64]*domain.PipelineRunTask, n *domain.PipelineRunTask) bool {
	seen := map[int64]bool{n.ID: true}
	for id := n.ParentID; id != 0 && !seen[id]; {
		seen[id] = true
		p, ok := byID[id]
		if !ok {
			return true
		}
		if p.Status != domain.NodeStatusComplete {
			return false
		}
		id = p.ParentID
	}
	return true
}

// Descendants возвращает всех потомков узла id (без самого узла)
// в порядке обхода в ширину.
func Descendants(nodes []*domain.PipelineRunTask, id int64) ([]*domain.PipelineRunTask, error) {
	children := make(map[int64][]*domain.PipelineRunTask)
	found := false
	for _, n := range nodes {
		if n.ID == id {
			found = true
		}
		children[n.ParentID] = append(children[n.ParentID], n)
	}
	if !found {
		return nil, ErrNodeNotInTree
	}
	for _, c := range children {
		sortSiblings(c)
	}

	var out []*domain.PipelineRunTask
	seen := map[int64]bool{id: true}
	queue := []int64{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, c := range children[cur] {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
			queue = append(queue, c.ID)
		}
	}
	return out, nil
}
