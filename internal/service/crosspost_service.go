package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	config "github.com/publora/publora/configs"
	"github.com/publora/publora/internal/models"
	"github.com/publora/publora/internal/repository"
	"github.com/publora/publora/internal/transfer"
)

// CrossPostService mirrors a published post to the sibling fan-out
// collaborator. Strictly best-effort: every failure ends up in the
// post metadata, never in the caller's error path.
type CrossPostService interface {
	Send(ctx context.Context, postID string) error
}

type crossPostService struct {
	cfg    config.Config
	pr     repository.PostRepository
	client *http.Client
}

func NewCrossPostService(cfg config.Config, pr repository.PostRepository) CrossPostService {
	return &crossPostService{
		cfg:    cfg,
		pr:     pr,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *crossPostService) Send(ctx context.Context, postID string) error {
	post, err := s.pr.GetByID(ctx, postID)
	if err != nil {
		return err
	}
	if post == nil {
		return fmt.Errorf("post %s not found", postID)
	}

	target := models.CrossPostTarget{Enabled: post.CrossPost}
	if !post.CrossPost {
		target.Status = models.CrossPostDisabled
		return s.record(ctx, post, target)
	}
	if s.cfg.CrossPostURL == "" {
		target.Status = models.CrossPostSkipped
		return s.record(ctx, post, target)
	}

	mode := "single"
	if len(post.ThreadsChainIDs) > 1 {
		mode = "thread"
	}
	payload, err := json.Marshal(transfer.CrossPostRequest{
		Content: post.Caption,
		Media:   post.MediaURLs,
		Mode:    mode,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.cfg.CrossPostURL, bytes.NewBuffer(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			target.Status = models.CrossPostTimeout
		} else {
			target.Status = models.CrossPostFailed
		}
		target.Error = err.Error()
		slog.Error("cross-post request failed", "post_id", postID, "error", err)
		return s.record(ctx, post, target)
	}
	defer resp.Body.Close()

	var result transfer.CrossPostResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil || resp.StatusCode != http.StatusOK {
		target.Status = models.CrossPostFailed
		target.Error = fmt.Sprintf("fan-out returned status %d", resp.StatusCode)
		return s.record(ctx, post, target)
	}

	switch result.Status {
	case "posted":
		target.Status = models.CrossPostPosted
		target.ExternalID = result.ExternalID
	case "not_connected":
		target.Status = models.CrossPostNotConnected
	case "skipped":
		target.Status = models.CrossPostSkipped
	default:
		target.Status = models.CrossPostFailed
		target.Error = result.Status
	}
	return s.record(ctx, post, target)
}

func (s *crossPostService) record(ctx context.Context, post *models.Post, target models.CrossPostTarget) error {
	meta := post.Metadata
	if meta.Version == 0 {
		meta.Version = 1
	}
	if meta.CrossPost == nil {
		meta.CrossPost = make(map[string]models.CrossPostTarget)
	}
	meta.CrossPost["fanout"] = target
	return s.pr.UpdateMetadata(ctx, post.ID, meta)
}
