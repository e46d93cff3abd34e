package queue

import (
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Dispatcher enqueues cross-post work. It satisfies the orchestrator's
// dispatch contract so the publish path never blocks on the fan-out.
type Dispatcher struct {
	client *asynq.Client
}

func NewDispatcher(client *asynq.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

func (d *Dispatcher) Dispatch(postID string) error {
	payload, err := json.Marshal(CrossPostPayload{PostID: postID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(TaskTypeCrossPost, payload)
	if _, err := d.client.Enqueue(task, asynq.MaxRetry(3)); err != nil {
		return err
	}

	slog.Info("cross-post task enqueued", "post_id", postID)
	return nil
}
