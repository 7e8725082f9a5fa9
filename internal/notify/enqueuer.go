package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/ImAdityaa12/storex-backend/internal/events"
)

// TaskClient is the slice of asynq.Client the enqueuer needs.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer hands email work to the task queue. It doubles as the auth
// module's reset mailer and as an event bus notifier.
type Enqueuer struct {
	Client TaskClient
}

// SendPasswordResetCode queues the reset code email.
func (e Enqueuer) SendPasswordResetCode(ctx context.Context, to, code string) error {
	if e.Client == nil {
		return errors.New("notify: task client not configured")
	}
	task, err := NewPasswordResetTask(to, code)
	if err != nil {
		return err
	}
	_, err = e.Client.EnqueueContext(ctx, task)
	return err
}

// Notify implements events.Notifier. Only topics with an email side
// effect are handled; everything else is ignored.
func (e Enqueuer) Notify(ctx context.Context, event events.Event) error {
	if e.Client == nil {
		return nil
	}
	switch event.Topic {
	case events.TopicOrderCreated:
		var payload struct {
			Email   string `json:"email"`
			OrderID string `json:"order_id"`
			Total   int64  `json:"total"`
		}
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return fmt.Errorf("notify: decode %s payload: %w", event.Topic, err)
		}
		if strings.TrimSpace(payload.Email) == "" {
			return nil
		}
		task, err := NewOrderCreatedTask(payload.Email, payload.OrderID, payload.Total)
		if err != nil {
			return err
		}
		_, err = e.Client.EnqueueContext(ctx, task)
		return err
	default:
		return nil
	}
}
