package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/publora/publora/internal/models"
)

// Aggregate outcome of one publish attempt across platforms.
type Aggregate string

const (
	AllSucceeded Aggregate = "all_succeeded"
	Partial      Aggregate = "partial"
	AllFailed    Aggregate = "all_failed"
)

type PlatformResult struct {
	Platform   string
	ExternalID string
	ChainIDs   []string
	Skipped    bool
	Err        error
}

// PublishOutcome is the explicit per-platform result list. External
// ids of platforms that succeeded are preserved even when a later
// platform failed, so a partial failure never erases committed
// external state from the record.
type PublishOutcome struct {
	Results   []PlatformResult
	Aggregate Aggregate
	Deducted  float64
	Refunded  bool
}

func (o *PublishOutcome) ExternalID(platform string) string {
	for _, r := range o.Results {
		if r.Platform == platform {
			return r.ExternalID
		}
	}
	return ""
}

func (o *PublishOutcome) ChainIDs(platform string) []string {
	for _, r := range o.Results {
		if r.Platform == platform {
			return r.ChainIDs
		}
	}
	return nil
}

// FirstError returns the failure that stopped the run, if any.
func (o *PublishOutcome) FirstError() error {
	for _, r := range o.Results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// CrossPostDispatcher hands a successful post off to the sibling
// fan-out pipeline, best-effort.
type CrossPostDispatcher interface {
	Dispatch(postID string) error
}

type PublishOrchestrator interface {
	Publish(ctx context.Context, post *models.Post, scope models.Scope) (*PublishOutcome, error)
}

type publishOrchestrator struct {
	resolver  AccountResolver
	ledger    CreditLedger
	ig        InstagramService
	th        ThreadsService
	yt        YoutubeService
	crossPost CrossPostDispatcher
}

func NewPublishOrchestrator(
	resolver AccountResolver,
	ledger CreditLedger,
	ig InstagramService,
	th ThreadsService,
	yt YoutubeService,
	crossPost CrossPostDispatcher) PublishOrchestrator {
	return &publishOrchestrator{
		resolver:  resolver,
		ledger:    ledger,
		ig:        ig,
		th:        th,
		yt:        yt,
		crossPost: crossPost,
	}
}

// Publish validates, deducts credits, then attempts each requested
// platform in the fixed order, stopping at the first failure. Errors
// returned directly (nil outcome) happened before any deduction; once
// credits are deducted the outcome carries the per-platform results
// and any failure triggers a best-effort refund.
func (p *publishOrchestrator) Publish(ctx context.Context, post *models.Post, scope models.Scope) (*PublishOutcome, error) {
	if err := ValidateContent(post); err != nil {
		return nil, err
	}

	// Every requested platform must have a live connection before any
	// external call or deduction happens.
	accounts := make(map[string]*ConnectedAccount, len(post.Platforms))
	for _, platform := range post.Platforms {
		acc, err := p.resolver.Resolve(ctx, scope, platform)
		if err != nil {
			return nil, err
		}
		accounts[platform] = acc
	}

	cost := CalculateCost(OpPublishPost, len(post.Platforms), post.CrossPost)
	if err := p.ledger.Check(ctx, scope, cost); err != nil {
		return nil, err
	}
	if err := p.ledger.Deduct(ctx, scope, cost, OpPublishPost); err != nil {
		return nil, err
	}

	outcome := &PublishOutcome{Deducted: cost}
	failed := false
	succeeded := 0

	for _, platform := range models.PublishOrder {
		acc, requested := accounts[platform]
		if !requested {
			continue
		}
		if failed {
			outcome.Results = append(outcome.Results, PlatformResult{Platform: platform, Skipped: true})
			continue
		}

		result := PlatformResult{Platform: platform}
		switch platform {
		case models.PlatformInstagram:
			result.ExternalID, result.Err = p.ig.PublishPost(ctx, post, acc)
		case models.PlatformThreads:
			result.ExternalID, result.ChainIDs, result.Err = p.th.PublishPost(ctx, post, acc)
		case models.PlatformYoutube:
			result.ExternalID, result.Err = p.yt.PublishVideo(ctx, post, acc)
		}

		if result.Err != nil {
			failed = true
			slog.Error("platform publish failed", "post_id", post.ID, "platform", platform, "error", result.Err)
		} else {
			succeeded++
			if platform == models.PlatformThreads && post.CrossPost && p.crossPost != nil {
				if err := p.crossPost.Dispatch(post.ID); err != nil {
					slog.Error("cross-post dispatch failed", "post_id", post.ID, "error", err)
				}
			}
		}
		outcome.Results = append(outcome.Results, result)
	}

	switch {
	case !failed:
		outcome.Aggregate = AllSucceeded
	case succeeded > 0:
		outcome.Aggregate = Partial
	default:
		outcome.Aggregate = AllFailed
	}

	if failed {
		p.ledger.Refund(ctx, scope, cost, "refund: "+OpPublishPost)
		outcome.Refunded = true
	}

	return outcome, nil
}

// ValidateContent applies the per-platform content rules before any
// side effect.
func ValidateContent(post *models.Post) error {
	if len(post.Platforms) == 0 {
		return &ValidationError{Field: "platforms", Message: "at least one platform is required"}
	}
	for _, platform := range post.Platforms {
		if !models.IsKnownPlatform(platform) {
			return &ValidationError{Field: "platforms", Message: fmt.Sprintf("unknown platform %q", platform)}
		}
	}

	for _, platform := range post.Platforms {
		switch platform {
		case models.PlatformInstagram:
			if len(post.MediaURLs) == 0 {
				return &ValidationError{Field: "media_urls", Message: "instagram requires at least one media item"}
			}
		case models.PlatformYoutube:
			hasVideo := false
			for _, ref := range post.MediaURLs {
				if maybeVideoURL(ref) {
					hasVideo = true
					break
				}
			}
			if !hasVideo {
				return &ValidationError{Field: "media_urls", Message: "youtube requires a video media item"}
			}
		case models.PlatformThreads:
			if post.ThreadsType == models.ThreadsTypeThread && len(post.ThreadParts) > 0 {
				if len(post.ThreadParts) < 2 {
					return &ValidationError{Field: "thread_parts", Message: "a thread needs at least 2 parts"}
				}
				for i, part := range post.ThreadParts {
					if part == "" {
						return &ValidationError{Field: "thread_parts", Message: fmt.Sprintf("part %d is empty", i+1)}
					}
					if utf8.RuneCountInString(part) > ThreadsPostLimit {
						return &ValidationError{Field: "thread_parts", Message: fmt.Sprintf("part %d exceeds %d characters", i+1, ThreadsPostLimit)}
					}
				}
			}
			if (post.ThreadsType == models.ThreadsTypeImage || post.ThreadsType == models.ThreadsTypeVideo) && len(post.MediaURLs) == 0 {
				return &ValidationError{Field: "media_urls", Message: "threads media post requires a media item"}
			}
		}
	}
	return nil
}

// maybeVideoURL reports whether a media reference could carry video
// content: a known video extension, or no extension at all (object
// keys and opaque URLs), which the upload path settles by sniffing.
func maybeVideoURL(ref string) bool {
	if isVideoURL(ref) {
		return true
	}
	name := ref
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return !strings.Contains(name, ".")
}
