package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ImAdityaa12/storex-backend/internal/obs"
)

const (
	// TaskEmailPasswordReset carries a one-time reset code to a user.
	TaskEmailPasswordReset = "email:password_reset"
	// TaskEmailOrderCreated carries an order confirmation.
	TaskEmailOrderCreated = "email:order_created"
)

// PasswordResetPayload is the body of a password reset email task.
type PasswordResetPayload struct {
	To   string `json:"to"`
	Code string `json:"code"`
}

// OrderCreatedPayload is the body of an order confirmation task.
type OrderCreatedPayload struct {
	To      string `json:"to"`
	OrderID string `json:"order_id"`
	Total   int64  `json:"total"`
}

// NewPasswordResetTask builds the asynq task for a reset code email.
func NewPasswordResetTask(to, code string) (*asynq.Task, error) {
	payload, err := json.Marshal(PasswordResetPayload{To: to, Code: code})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEmailPasswordReset, payload,
		asynq.MaxRetry(3), asynq.Timeout(30*time.Second)), nil
}

// NewOrderCreatedTask builds the asynq task for an order confirmation email.
func NewOrderCreatedTask(to, orderID string, total int64) (*asynq.Task, error) {
	payload, err := json.Marshal(OrderCreatedPayload{To: to, OrderID: orderID, Total: total})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEmailOrderCreated, payload,
		asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// Worker processes email tasks from the queue.
type Worker struct {
	Mailer Mailer
}

// Register attaches all task handlers to the mux.
func (w *Worker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskEmailPasswordReset, w.HandlePasswordReset)
	mux.HandleFunc(TaskEmailOrderCreated, w.HandleOrderCreated)
}

func (w *Worker) HandlePasswordReset(ctx context.Context, task *asynq.Task) error {
	var payload PasswordResetPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	subject := "Your password reset code"
	body := fmt.Sprintf("Your password reset code is %s.\nIt expires shortly and can be used once.", payload.Code)
	if err := w.Mailer.Send(ctx, payload.To, subject, body); err != nil {
		countDelivery("password_reset", "error")
		return err
	}
	countDelivery("password_reset", "ok")
	return nil
}

func (w *Worker) HandleOrderCreated(ctx context.Context, task *asynq.Task) error {
	var payload OrderCreatedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	subject := "Order confirmed"
	body := fmt.Sprintf("Thanks for your order!\nOrder ID: %s\nTotal: %d\nPayment method: credit.", payload.OrderID, payload.Total)
	if err := w.Mailer.Send(ctx, payload.To, subject, body); err != nil {
		countDelivery("order_created", "error")
		return err
	}
	countDelivery("order_created", "ok")
	return nil
}

func countDelivery(template, result string) {
	if obs.EmailDeliveriesTotal != nil {
		obs.EmailDeliveriesTotal.WithLabelValues(template, result).Inc()
	}
}
