package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"trilex-backend/internal/model"
	"trilex-backend/internal/service"

	"github.com/hibiken/asynq"
)

// TypeNotify is the asynq task type carrying a NotifyRequest payload.
const TypeNotify = "notifications:notify"

func NewNotifyTask(req model.NotifyRequest) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeNotify, payload, asynq.MaxRetry(5)), nil
}

// HandleNotifyTask returns the asynq handler for TypeNotify. Payloads that can
// never succeed skip the retry queue.
func HandleNotifyTask(n Notifier) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var req model.NotifyRequest
		if err := json.Unmarshal(t.Payload(), &req); err != nil {
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		if _, err := n.Notify(ctx, req); err != nil {
			if permanent(err) {
				return fmt.Errorf("notify %s: %v: %w", req.RecipientID, err, asynq.SkipRetry)
			}
			return fmt.Errorf("notify %s: %w", req.RecipientID, err)
		}
		return nil
	}
}

func permanent(err error) bool {
	var verr *service.ValidationError
	return errors.As(err, &verr) || errors.Is(err, service.ErrUserNotFound)
}

// Worker consumes notification tasks from the asynq queues in Redis.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(redisURL string, concurrency int, n Notifier) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("asynq: parse redis url: %w", err)
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"notifications": 3, "default": 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			log.Printf("[Asynq] %s failed: %v", task.Type(), err)
		}),
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeNotify, HandleNotifyTask(n))
	return &Worker{server: srv, mux: mux}, nil
}

func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	log.Println("[Asynq] notification worker started")
	return nil
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
	log.Println("[Asynq] notification worker stopped")
}
