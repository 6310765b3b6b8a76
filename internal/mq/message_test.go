package mq

import (
	"context"
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Ingestor/internal/domain"
)

func TestJobEnqueuedMessage_RoundTrip(t *testing.T) {
	job := domain.NewExecuteJob(domain.JobProperties{
		PipelineRunTaskID: 42,
		RunID:             7,
		RunNext:           true,
	})

	msg := NewJobEnqueuedMessage(job)
	if msg.Type != MessageTypeJobEnqueued {
		t.Errorf("expected type %s, got %s", MessageTypeJobEnqueued, msg.Type)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded Message
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	payload, err := ParsePayload[JobEnqueuedPayload](&decoded)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if payload.JobID != job.ID {
		t.Errorf("expected job id %s, got %s", job.ID, payload.JobID)
	}
	if payload.RunID != 7 || payload.PipelineRunTaskID != 42 {
		t.Errorf("unexpected payload %+v", payload)
	}
}

func TestJobEnqueuedPayload_WireNames(t *testing.T) {
	body, err := json.Marshal(JobEnqueuedPayload{RunID: 1, PipelineRunTaskID: 2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"job_id", "run_id", "pipeline_run_task_id"} {
		if _, ok := fields[key]; !ok {
			t.Errorf("missing field %q in %s", key, body)
		}
	}
}

func TestDecodeMessage_RawPayload(t *testing.T) {
	job := domain.NewExecuteJob(domain.JobProperties{PipelineRunTaskID: 5, RunID: 3})
	body, err := json.Marshal(NewJobEnqueuedMessage(job))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	msg, err := decodeMessage(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != MessageTypeJobEnqueued {
		t.Errorf("expected type %s, got %s", MessageTypeJobEnqueued, msg.Type)
	}
	if _, ok := msg.Payload.(json.RawMessage); !ok {
		t.Fatalf("expected raw payload, got %T", msg.Payload)
	}

	payload, err := ParsePayload[JobEnqueuedPayload](&msg)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if payload.JobID != job.ID || payload.PipelineRunTaskID != 5 {
		t.Errorf("unexpected payload %+v", payload)
	}
}

func TestDecodeMessage_Malformed(t *testing.T) {
	if _, err := decodeMessage([]byte("{not json")); err == nil {
		t.Fatal("expected error")
	}
}

func TestConsumer_FiltersTypes(t *testing.T) {
	var handled []MessageType
	c := NewConsumer(nil, nil, ConsumerConfig{
		Queue: string(QueueJobsReady),
		Types: []MessageType{MessageTypeJobEnqueued},
		Handler: func(_ context.Context, d *Delivery) error {
			handled = append(handled, d.Message.Type)
			return nil
		},
	})

	job := domain.NewExecuteJob(domain.JobProperties{PipelineRunTaskID: 1, RunID: 1})
	good, _ := json.Marshal(NewJobEnqueuedMessage(job))
	other, _ := json.Marshal(Message{ID: "x", Type: "run.created"})

	c.handle(context.Background(), amqp.Delivery{Body: good})
	c.handle(context.Background(), amqp.Delivery{Body: other})
	c.handle(context.Background(), amqp.Delivery{Body: []byte("garbage")})

	if len(handled) != 1 || handled[0] != MessageTypeJobEnqueued {
		t.Errorf("expected only job.enqueued to be handled, got %v", handled)
	}
}
