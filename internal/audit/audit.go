// Package audit records room lifecycle and membership changes as an
// asynchronous trail. Events are enqueued from the write path and persisted
// by the background worker; a recording failure never affects the mutation
// that produced it.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/parley-chat/parley/internal/chat"
)

const (
	// QueueDefault is the queue audit tasks are enqueued on.
	QueueDefault = "default"
	// TaskTypeRecord is the task type for persisting one audit event.
	TaskTypeRecord = "audit:record"
)

type recordPayload struct {
	Event      chat.Event `json:"event"`
	OccurredAt time.Time  `json:"occurredAt"`
}

// NewRecordTask constructs an Asynq task for one event.
func NewRecordTask(event chat.Event, occurredAt time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(recordPayload{Event: event, OccurredAt: occurredAt})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRecord, data, asynq.Queue(QueueDefault)), nil
}

// Recorder implements chat.Recorder by enqueuing events for the worker.
type Recorder struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewRecorder constructs a Recorder on the given Asynq client.
func NewRecorder(client *asynq.Client, logger *slog.Logger) *Recorder {
	return &Recorder{client: client, logger: logger}
}

// Record enqueues the event. Errors are logged and swallowed; the trail
// must never fail the mutation it describes.
func (r *Recorder) Record(ctx context.Context, event chat.Event) {
	task, err := NewRecordTask(event, time.Now())
	if err == nil {
		_, err = r.client.EnqueueContext(ctx, task)
	}
	if err != nil {
		r.logger.Warn("audit event dropped",
			slog.String("kind", event.Kind),
			slog.String("roomId", event.RoomID),
			slog.Any("error", err))
	}
}

// Handler processes TaskTypeRecord tasks on the worker.
func Handler(repo *Repository) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload recordPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("audit: decode payload: %v: %w", err, asynq.SkipRetry)
		}
		return repo.Insert(ctx, Record{
			ID:         uuid.NewString(),
			Kind:       payload.Event.Kind,
			RoomID:     payload.Event.RoomID,
			Actor:      payload.Event.Actor,
			Target:     payload.Event.Target,
			OccurredAt: payload.OccurredAt,
		})
	}
}
