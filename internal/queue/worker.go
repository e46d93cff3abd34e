package queue

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

func (q *Queue) HandleCrossPostTask(ctx context.Context, task *asynq.Task) error {
	var payload CrossPostPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	if err := q.cp.Send(ctx, payload.PostID); err != nil {
		slog.Error("cross-post send failed", "post_id", payload.PostID, "error", err)
		return err
	}
	return nil
}
