package mq

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Ingestor/internal/domain"
)

// MessageType: тип сообщения в очереди.
type MessageType string

// MessageTypeJobEnqueued: в scheduled_jobs появился job.
const MessageTypeJobEnqueued MessageType = "job.enqueued"

// Message: JSON-конверт всех сообщений брокера.
// После decodeMessage Payload содержит json.RawMessage.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	Payload   any         `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// JobEnqueuedPayload: подсказка воркеру: какой job и для какого узла.
// Сам job воркер всё равно забирает из БД.
type JobEnqueuedPayload struct {
	JobID             uuid.UUID `json:"job_id"`
	RunID             int64     `json:"run_id"`
	PipelineRunTaskID int64     `json:"pipeline_run_task_id"`
}

// NewJobEnqueuedMessage строит уведомление о job.
func NewJobEnqueuedMessage(job *domain.ScheduledJob) *Message {
	props := job.Settings.Properties
	return &Message{
		ID:   uuid.NewString(),
		Type: MessageTypeJobEnqueued,
		Payload: JobEnqueuedPayload{
			JobID:             job.ID,
			RunID:             props.RunID,
			PipelineRunTaskID: props.PipelineRunTaskID,
		},
		Timestamp: time.Now().UTC(),
	}
}

func decodeMessage(body []byte) (Message, error) {
	var env struct {
		Message
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return Message{}, fmt.Errorf("unmarshal message: %w", err)
	}
	msg := env.Message
	msg.Payload = env.Payload
	return msg, nil
}

// ParsePayload декодирует Payload сообщения в T. Работает и с принятым
// сообщением (json.RawMessage), и с только что построенным.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	raw, ok := msg.Payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(msg.Payload)
		if err != nil {
			return result, fmt.Errorf("marshal payload: %w", err)
		}
		raw = b
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
