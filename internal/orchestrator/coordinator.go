package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/shaiso/Ingestor/internal/domain"
	"github.com/shaiso/Ingestor/internal/repo"
	"github.com/shaiso/Ingestor/internal/tasks"
	"github.com/shaiso/Ingestor/internal/telemetry"
)

// Outcome: итог выполнения узла.
type Outcome struct {
	// Node: узел после сохранения результата.
	Node *domain.PipelineRunTask

	// Kind: SYSTEM или USER; пусто, если задача не разрешилась.
	Kind domain.TaskKind

	// Succeeded: узел перешёл в Complete.
	Succeeded bool
}

// Coordinator выполняет узлы дерева задач.
type Coordinator struct {
	store    NodeStore
	registry Resolver
	logger   *slog.Logger
}

// NewCoordinator создаёт Coordinator.
func NewCoordinator(store NodeStore, registry Resolver, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:    store,
		registry: registry,
		logger:   logger.With("component", "coordinator"),
	}
}

// Execute выполняет узел nodeID.
//
// Ошибка задачи не возвращается: она сохраняется на узле (Failed), а
// Outcome.Succeeded = false. Возвращаемая ошибка - только
// инфраструктурная или ErrNodeNotScheduled/ErrNodeNotRunning.
func (c *Coordinator) Execute(ctx context.Context, nodeID int64) (*Outcome, error) {
	logger := telemetry.WithTaskID(c.logger, nodeID)

	if err := c.store.MarkRunning(ctx, nodeID); err != nil {
		if errors.Is(err, repo.ErrInvalidState) {
			return nil, fmt.Errorf("%w: %d", ErrNodeNotScheduled, nodeID)
		}
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrTaskNotFound, nodeID)
		}
		return nil, fmt.Errorf("mark running: %w", err)
	}

	start := time.Now()
	var out *Outcome

	err := c.store.InTx(ctx, func(tx pgx.Tx) error {
		node, err := c.store.LockNode(ctx, tx, nodeID)
		if err != nil {
			return fmt.Errorf("lock task: %w", err)
		}
		if node.Status != domain.NodeStatusRunning {
			return fmt.Errorf("%w: %d is %s", ErrNodeNotRunning, nodeID, node.Status)
		}

		kind, msg, taskErr, err := c.invoke(ctx, tx, node)
		if err != nil {
			return err
		}

		if taskErr == nil {
			err = node.MarkComplete(msg)
		} else {
			err = node.MarkFailed(failureMessage(taskErr), failureDetail(taskErr))
		}
		if err != nil {
			return err
		}

		if err := c.store.SaveResult(ctx, tx, node); err != nil {
			return fmt.Errorf("save result: %w", err)
		}

		out = &Outcome{Node: node, Kind: kind, Succeeded: taskErr == nil}
		return nil
	})
	if err != nil {
		if revertErr := c.store.RevertToScheduled(context.WithoutCancel(ctx), nodeID); revertErr != nil {
			logger.Warn("failed to revert task to scheduled", "error", revertErr)
		}
		telemetry.TaskExecutions.WithLabelValues("unknown", "error").Inc()
		return nil, err
	}

	outcome := "failed"
	if out.Succeeded {
		outcome = "complete"
	}
	telemetry.TaskExecutions.WithLabelValues(string(out.Kind), outcome).Inc()
	telemetry.TaskDuration.WithLabelValues(string(out.Kind)).Observe(time.Since(start).Seconds())

	if out.Succeeded {
		logger.Info("task complete",
			"run_id", out.Node.RunID,
			"task_id", out.Node.TaskID,
			"kind", out.Kind,
			"duration", time.Since(start).String(),
		)
	} else {
		logger.Warn("task failed",
			"run_id", out.Node.RunID,
			"task_id", out.Node.TaskID,
			"kind", out.Kind,
			"message", out.Node.Message,
		)
	}

	return out, nil
}

// invoke разрешает задачу и вызывает её.
//
// taskErr: ошибка задачи (узел станет Failed), err - инфраструктурная
// ошибка (транзакция откатывается).
func (c *Coordinator) invoke(ctx context.Context, tx pgx.Tx, node *domain.PipelineRunTask) (kind domain.TaskKind, msg string, taskErr, err error) {
	entry, err := c.registry.Resolve(node.TaskID)
	if err != nil {
		if errors.Is(err, tasks.ErrTaskNotFound) {
			return "", "", err, nil
		}
		return "", "", nil, err
	}

	if entry.Kind == domain.TaskKindUser {
		return entry.Kind, "", nil, nil
	}

	called := false
	spErr := c.store.Savepoint(ctx, tx, func(sp pgx.Tx) (fnErr error) {
		called = true
		defer func() {
			if p := recover(); p != nil {
				fnErr = &PanicError{Value: p, Stack: debug.Stack()}
			}
			taskErr = fnErr
		}()
		msg, fnErr = entry.Func(ctx, sp, node)
		return fnErr
	})

	switch {
	case !called:
		return entry.Kind, "", nil, spErr
	case taskErr != nil:
		return entry.Kind, "", taskErr, nil
	case spErr != nil:
		return entry.Kind, "", nil, spErr
	}
	return entry.Kind, msg, nil, nil
}

func failureMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "task failed"
}

// failureDetail: stack trace паники или цепочка обёрнутых ошибок.
func failureDetail(err error) string {
	var pe *PanicError
	if errors.As(err, &pe) {
		return fmt.Sprintf("panic: %v\n\n%s", pe.Value, pe.Stack)
	}

	detail := ""
	for i, e := 0, err; e != nil; i, e = i+1, errors.Unwrap(e) {
		detail += fmt.Sprintf("%d: %T: %v\n", i, e, e)
	}
	return detail
}
