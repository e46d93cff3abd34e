package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/publora/publora/internal/models"
	"github.com/publora/publora/internal/repository"
	"github.com/publora/publora/internal/transfer"
)

const storeRetryDelay = 500 * time.Millisecond

type PostService interface {
	Create(ctx context.Context, scope models.Scope, pc *transfer.PostCreation) (*models.Post, error)
	List(ctx context.Context, scope models.Scope) ([]*models.Post, error)
	Get(ctx context.Context, scope models.Scope, postID string) (*models.Post, error)
	Cancel(ctx context.Context, scope models.Scope, postID string) error
	Reschedule(ctx context.Context, scope models.Scope, postID string, scheduledFor time.Time) error
	Delete(ctx context.Context, scope models.Scope, postID string) error
}

type postService struct {
	pr       repository.PostRepository
	resolver AccountResolver
	th       ThreadsService
	orch     PublishOrchestrator
}

func NewPostService(
	pr repository.PostRepository,
	resolver AccountResolver,
	th ThreadsService,
	orch PublishOrchestrator) PostService {
	return &postService{
		pr:       pr,
		resolver: resolver,
		th:       th,
		orch:     orch,
	}
}

// Create validates a post request and either publishes it inline (no
// schedule) or persists it for the scheduler worker. On the immediate
// path the row exists only after every platform succeeded; a failure
// surfaces the platform error and nothing is persisted (credits
// already deducted are refunded by the orchestrator).
func (s *postService) Create(ctx context.Context, scope models.Scope, pc *transfer.PostCreation) (*models.Post, error) {
	if pc == nil {
		return nil, &ValidationError{Message: "post creation data is nil"}
	}
	if pc.Caption == "" && len(pc.MediaURLs) == 0 {
		return nil, &ValidationError{Field: "caption", Message: "caption or media is required"}
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, err
	}

	post := &models.Post{
		ID:            id,
		UserID:        scope.UserID,
		TeamID:        scope.TeamID,
		Caption:       pc.Caption,
		Title:         pc.Title,
		MediaURLs:     pc.MediaURLs,
		Platforms:     pc.Platforms,
		CrossPost:     pc.CrossPost,
		InstagramType: pc.InstagramType,
		ThreadsType:   pc.ThreadsType,
		YoutubeType:   pc.YoutubeType,
		ThreadParts:   pc.ThreadParts,
		Metadata:      models.PostMetadata{Version: 1},
	}

	if err := ValidateContent(post); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	if pc.ScheduledFor != "" {
		scheduledFor, err := time.Parse("2006-01-02T15:04", pc.ScheduledFor)
		if err != nil {
			err = fmt.Errorf("invalid scheduled time format: %w", err)
			slog.Info(err.Error())
			return nil, &ValidationError{Field: "scheduled_for", Message: err.Error()}
		}
		post.Status = models.PostStatusScheduled
		post.ScheduledFor = sql.NullTime{Time: scheduledFor, Valid: true}

		if err := s.pr.Create(ctx, nil, post); err != nil {
			return nil, fmt.Errorf("error creating post: %w", err)
		}
		return post, nil
	}

	outcome, err := s.orch.Publish(ctx, post, scope)
	if err != nil {
		return nil, err
	}
	if outcome.Aggregate != AllSucceeded {
		return nil, outcome.FirstError()
	}

	post.Status = models.PostStatusPosted
	post.PostedAt = sql.NullTime{Time: time.Now(), Valid: true}
	post.InstagramPostID = outcome.ExternalID(models.PlatformInstagram)
	post.ThreadsPostID = outcome.ExternalID(models.PlatformThreads)
	post.YoutubeVideoID = outcome.ExternalID(models.PlatformYoutube)
	post.ThreadsChainIDs = outcome.ChainIDs(models.PlatformThreads)

	if err := s.pr.Create(ctx, nil, post); err != nil {
		return nil, fmt.Errorf("error persisting published post: %w", err)
	}
	return post, nil
}

func (s *postService) List(ctx context.Context, scope models.Scope) ([]*models.Post, error) {
	posts, err := s.pr.ListByScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("error listing posts: %w", err)
	}
	return posts, nil
}

func (s *postService) Get(ctx context.Context, scope models.Scope, postID string) (*models.Post, error) {
	post, err := s.owned(ctx, scope, postID)
	if err != nil {
		return nil, err
	}
	return post, nil
}

// Cancel moves a pending post to deleted. Published posts cannot be
// cancelled; use Delete for those.
func (s *postService) Cancel(ctx context.Context, scope models.Scope, postID string) error {
	post, err := s.owned(ctx, scope, postID)
	if err != nil {
		return err
	}

	if post.Status == models.PostStatusPosted || post.Status == models.PostStatusDeleted {
		return ErrPostNotCancellable
	}

	return s.pr.UpdateStatus(ctx, models.PostStatusDeleted, postID)
}

func (s *postService) Reschedule(ctx context.Context, scope models.Scope, postID string, scheduledFor time.Time) error {
	post, err := s.owned(ctx, scope, postID)
	if err != nil {
		return err
	}

	if post.Status != models.PostStatusScheduled && post.Status != models.PostStatusFailed {
		return &ValidationError{Field: "status", Message: "only scheduled or failed posts can be rescheduled"}
	}

	return s.pr.UpdateSchedule(ctx, postID, scheduledFor)
}

// Delete soft-deletes a post. Threads posts are deleted remotely first
// using the recorded external ids; already-deleted posts succeed
// without another platform call unless unresolved Threads ids remain.
func (s *postService) Delete(ctx context.Context, scope models.Scope, postID string) error {
	post, err := s.owned(ctx, scope, postID)
	if err != nil {
		return err
	}

	remaining := post.ThreadsChainIDs
	if len(remaining) == 0 && post.ThreadsPostID != "" {
		remaining = []string{post.ThreadsPostID}
	}

	if post.Status == models.PostStatusDeleted && len(remaining) == 0 {
		return nil
	}

	if len(remaining) > 0 {
		if err := s.deleteOnThreads(ctx, scope, post, remaining); err != nil {
			slog.Error("remote threads deletion incomplete", "post_id", postID, "error", err)
		}
	}

	err = s.retryOnTransient(func() error {
		return s.pr.UpdateStatus(ctx, models.PostStatusDeleted, postID)
	})
	if err != nil {
		return fmt.Errorf("error removing post: %w", err)
	}
	return nil
}

func (s *postService) deleteOnThreads(ctx context.Context, scope models.Scope, post *models.Post, ids []string) error {
	acc, err := s.resolver.Resolve(ctx, scope, models.PlatformThreads)
	if err != nil {
		return err
	}

	var unresolved []string
	for _, id := range ids {
		if err := s.th.DeletePost(ctx, id, acc); err != nil {
			var pe *PlatformError
			// A remotely missing post counts as deleted.
			if errors.As(err, &pe) && pe.Code == ErrCodeNotFound {
				continue
			}
			unresolved = append(unresolved, id)
			slog.Error("threads delete failed", "external_id", id, "error", err)
		}
	}

	if err := s.pr.SetThreadsRefs(ctx, post.ID, "", unresolved); err != nil {
		return err
	}
	if len(unresolved) > 0 {
		return fmt.Errorf("%d threads posts still undeleted", len(unresolved))
	}
	return nil
}

func (s *postService) owned(ctx context.Context, scope models.Scope, postID string) (*models.Post, error) {
	if postID == "" {
		return nil, &ValidationError{Field: "post_id", Message: "post id is required"}
	}

	ok, err := s.pr.CheckOwner(ctx, postID, scope)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &ValidationError{Field: "post_id", Message: "post doesn't exist"}
	}

	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("error getting post: %w", err)
	}
	if post == nil {
		return nil, &ValidationError{Field: "post_id", Message: "post doesn't exist"}
	}
	return post, nil
}

// retryOnTransient retries a store operation once after a short fixed
// delay when the failure looks like a connectivity blip.
func (s *postService) retryOnTransient(op func() error) error {
	err := op()
	if err == nil || !repository.IsTransient(err) {
		return err
	}
	slog.Info("retrying store operation after transient error", "error", err)
	time.Sleep(storeRetryDelay)
	return op()
}
