package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron"

	config "github.com/publora/publora/configs"
	"github.com/publora/publora/internal/models"
	"github.com/publora/publora/internal/repository"
	"github.com/publora/publora/internal/service"
)

// SchedulerWorker drains due scheduled posts. Overlapping ticks inside
// one process are suppressed by a single-flight guard; two separate
// worker processes are kept apart solely by the store's atomic claim.
type SchedulerWorker struct {
	cfg  config.Worker
	pr   repository.PostRepository
	orch service.PublishOrchestrator

	c      *cron.Cron
	tickMu sync.Mutex
}

func NewSchedulerWorker(cfg config.Worker, pr repository.PostRepository, orch service.PublishOrchestrator) *SchedulerWorker {
	return &SchedulerWorker{
		cfg:  cfg,
		pr:   pr,
		orch: orch,
	}
}

func (w *SchedulerWorker) Start() error {
	w.c = cron.New()
	if err := w.c.AddFunc("@every "+w.cfg.Interval.String(), w.Tick); err != nil {
		return err
	}
	w.c.Start()
	slog.Info("scheduler worker started", "interval", w.cfg.Interval.String(), "batch", w.cfg.BatchSize)
	return nil
}

func (w *SchedulerWorker) Stop() {
	if w.c != nil {
		w.c.Stop()
	}
}

// Tick claims one batch of due posts and processes them independently.
// A failure on one post never aborts the rest of the batch, and a
// store failure before the claim ends the tick without touching any
// row.
func (w *SchedulerWorker) Tick() {
	if !w.tickMu.TryLock() {
		slog.Info("previous tick still running, skipping")
		return
	}
	defer w.tickMu.Unlock()

	ctx := context.Background()

	// Claims abandoned by a crashed worker go back to scheduled once
	// their lease runs out.
	if n, err := w.pr.RequeueStale(ctx, time.Now().Add(-w.cfg.PublishingLease)); err != nil {
		slog.Error("stale publishing sweep failed", "error", err)
	} else if n > 0 {
		slog.Info("requeued stale publishing posts", "count", n)
	}

	posts, err := w.pr.ClaimDue(ctx, time.Now(), w.cfg.BatchSize)
	if err != nil {
		slog.Error("claim failed, ending tick", "error", err)
		return
	}

	for _, post := range posts {
		w.ProcessPost(ctx, post)
	}
}

// ProcessPost drives one claimed post through the orchestrator and
// persists the resulting state. Never panics out: worker liveness
// outranks any single post.
func (w *SchedulerWorker) ProcessPost(ctx context.Context, post *models.Post) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic while publishing post", "post_id", post.ID, "panic", r)
			if err := w.pr.UpdateStatus(ctx, models.PostStatusFailed, post.ID); err != nil {
				slog.Error("failed to mark post failed", "post_id", post.ID, "error", err)
			}
		}
	}()

	scope := models.Scope{UserID: post.UserID, TeamID: post.TeamID}

	outcome, err := w.orch.Publish(ctx, post, scope)
	if err != nil {
		slog.Error("publish failed before any platform call", "post_id", post.ID, "error", err)
		if err := w.pr.UpdateStatus(ctx, models.PostStatusFailed, post.ID); err != nil {
			slog.Error("failed to mark post failed", "post_id", post.ID, "error", err)
		}
		return
	}

	// Persist external ids of whatever succeeded, even on a partial
	// failure, so committed platform state stays auditable.
	if err := w.pr.SetExternalIDs(ctx, post.ID,
		outcome.ExternalID(models.PlatformInstagram),
		outcome.ExternalID(models.PlatformThreads),
		outcome.ExternalID(models.PlatformYoutube),
		outcome.ChainIDs(models.PlatformThreads)); err != nil {
		slog.Error("failed to record external ids", "post_id", post.ID, "error", err)
	}

	if outcome.Aggregate == service.AllSucceeded {
		if err := w.pr.MarkPosted(ctx, post.ID, time.Now()); err != nil {
			slog.Error("failed to mark post posted", "post_id", post.ID, "error", err)
		}
		return
	}

	slog.Error("post publish failed", "post_id", post.ID, "aggregate", string(outcome.Aggregate), "error", outcome.FirstError())
	if err := w.pr.UpdateStatus(ctx, models.PostStatusFailed, post.ID); err != nil {
		slog.Error("failed to mark post failed", "post_id", post.ID, "error", err)
	}
}
