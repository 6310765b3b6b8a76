package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Ingestor/internal/domain"
	"github.com/shaiso/Ingestor/internal/mq"
	"github.com/shaiso/Ingestor/internal/orchestrator"
	"github.com/shaiso/Ingestor/internal/repo"
	"github.com/shaiso/Ingestor/internal/telemetry"
)

// handleJobEnqueued будит свободный слот. Уведомление - только подсказка:
// если все слоты заняты, job подхватит опрос.
func (w *Worker) handleJobEnqueued(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.JobEnqueuedPayload](&delivery.Message)
	if err != nil {
		w.logger.Error("failed to parse job.enqueued payload", "error", err)
		return err
	}

	w.logger.Debug("received job.enqueued event",
		"job_id", payload.JobID,
		"run_id", payload.RunID,
		"pipeline_run_task_id", payload.PipelineRunTaskID,
	)

	select {
	case w.wake <- payload.JobID:
	default:
		w.logger.Debug("all slots busy, leaving job for polling", "job_id", payload.JobID)
	}
	return nil
}

// claim забирает job: конкретный (id != uuid.Nil) или следующий готовый.
// Пустая очередь - (nil, nil).
func (w *Worker) claim(ctx context.Context, id uuid.UUID) (*domain.ScheduledJob, error) {
	var (
		job *domain.ScheduledJob
		err error
	)
	if id == uuid.Nil {
		job, err = w.queue.Claim(ctx, w.id, w.lease)
	} else {
		job, err = w.queue.ClaimByID(ctx, id, w.id, w.lease)
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) || errors.Is(err, context.Canceled) {
			return nil, nil
		}
		return nil, err
	}
	return job, nil
}

// process выполняет узел job, завершает job и продолжает цепочку.
func (w *Worker) process(ctx context.Context, job *domain.ScheduledJob) {
	telemetry.JobsInFlight.Inc()
	defer telemetry.JobsInFlight.Dec()

	props := job.Settings.Properties
	logger := telemetry.WithTaskID(telemetry.WithJobID(w.logger, job.ID.String()), props.PipelineRunTaskID)
	start := time.Now()

	logger.Info("job started", "run_id", props.RunID, "run_next", props.RunNext)

	out, err := w.executor.Execute(ctx, props.PipelineRunTaskID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrNodeNotScheduled) || errors.Is(err, orchestrator.ErrTaskNotFound) {
			logger.Warn("stale job, task is no longer scheduled", "error", err)
			w.finish(ctx, job, domain.JobStatusError, fmt.Errorf("%w: %v", ErrStaleJob, err).Error())
			return
		}
		logger.Error("job execution failed, leaving it for lease expiry", "error", err)
		telemetry.JobsProcessed.WithLabelValues("abandoned").Inc()
		return
	}

	status := domain.JobStatusDone
	if !out.Succeeded {
		status = domain.JobStatusError
	}
	if !w.finish(ctx, job, status, out.Node.Message) {
		return
	}

	logger.Info("job finished",
		"status", status,
		"duration", time.Since(start).String(),
	)

	next, err := w.chain.Continue(ctx, props, out)
	if err != nil {
		logger.Error("failed to continue run", "run_id", props.RunID, "error", err)
		return
	}
	if next != nil {
		logger.Info("next task scheduled",
			"run_id", props.RunID,
			"next_pipeline_run_task_id", next.Node.ID,
			"next_job_id", next.Job.ID,
		)
	}
}

func (w *Worker) finish(ctx context.Context, job *domain.ScheduledJob, status domain.JobStatus, progress string) bool {
	if err := w.queue.Finish(context.WithoutCancel(ctx), job.ID, w.id, status, progress); err != nil {
		w.logger.Error("failed to finish job",
			"job_id", job.ID,
			"status", status,
			"error", err,
		)
		return false
	}
	telemetry.JobsProcessed.WithLabelValues(string(status)).Inc()
	return true
}
