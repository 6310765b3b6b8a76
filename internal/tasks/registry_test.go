package tasks

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/Ingestor/internal/domain"
)

func noop(context.Context, pgx.Tx, *domain.PipelineRunTask) (string, error) {
	return "", nil
}

func defs() []domain.TaskDefinition {
	return []domain.TaskDefinition{
		{ID: 1, Name: "first", Kind: domain.TaskKindSystem},
		{ID: 2, Name: "second", Kind: domain.TaskKindSystem},
		{ID: 101, Name: "review", Kind: domain.TaskKindUser},
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(1, "a", noop); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(1, "b", noop); !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("expected ErrDuplicateTask, got %v", err)
	}
	if err := r.Register(2, "nil", nil); err == nil {
		t.Error("expected error for nil function")
	}
}

func TestRegistry_BindAndResolve(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(1, "first", noop)
	r.MustRegister(2, "second", noop)

	if _, err := r.Resolve(1); !errors.Is(err, ErrNotBound) {
		t.Errorf("expected ErrNotBound before Bind, got %v", err)
	}

	if err := r.Bind(defs()); err != nil {
		t.Fatalf("unexpected bind error: %v", err)
	}
	if r.Count() != 3 {
		t.Errorf("expected 3 entries, got %d", r.Count())
	}

	sys, err := r.Resolve(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sys.Kind != domain.TaskKindSystem || sys.Func == nil || sys.Definition.Name != "second" {
		t.Errorf("unexpected system entry: %+v", sys)
	}

	user, err := r.Resolve(101)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Kind != domain.TaskKindUser || user.Func != nil {
		t.Errorf("unexpected user entry: %+v", user)
	}

	if _, err := r.Resolve(999); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestRegistry_BindErrors(t *testing.T) {
	tests := []struct {
		name     string
		register []int64
		defs     []domain.TaskDefinition
		want     error
	}{
		{
			name:     "system definition without function",
			register: []int64{1},
			defs:     defs(),
			want:     ErrUnboundSystemTask,
		},
		{
			name:     "user id registered as system",
			register: []int64{1, 2, 101},
			defs:     defs(),
			want:     ErrTaskCollision,
		},
		{
			name:     "function without definition",
			register: []int64{1, 2, 7},
			defs:     defs(),
			want:     ErrUnknownSystemTask,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for _, id := range tt.register {
				r.MustRegister(id, "fn", noop)
			}

			err := r.Bind(tt.defs)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if _, err := r.Resolve(1); !errors.Is(err, ErrNotBound) {
				t.Errorf("failed bind must leave registry unbound, got %v", err)
			}
		})
	}
}

func TestRegistry_BindReportsAllProblems(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(101, "collides", noop)
	r.MustRegister(55, "orphan", noop)

	err := r.Bind(defs())
	for _, want := range []error{ErrTaskCollision, ErrUnknownSystemTask, ErrUnboundSystemTask} {
		if !errors.Is(err, want) {
			t.Errorf("expected %v in %v", want, err)
		}
	}
}

func TestRegistry_RegisterAfterBindRequiresRebind(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(1, "first", noop)
	r.MustRegister(2, "second", noop)
	if err := r.Bind(defs()); err != nil {
		t.Fatal(err)
	}

	r.MustRegister(3, "late", noop)
	if _, err := r.Resolve(1); !errors.Is(err, ErrNotBound) {
		t.Errorf("expected ErrNotBound after late register, got %v", err)
	}
}
