package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/publora/publora/internal/models"
)

type fakeResolver struct {
	missing map[string]bool
}

func (f *fakeResolver) Resolve(ctx context.Context, scope models.Scope, platform string) (*ConnectedAccount, error) {
	if f.missing[platform] {
		return nil, &MissingConnectionError{Platform: platform}
	}
	return &ConnectedAccount{
		Account:     &models.SocialAccount{Platform: platform, AccountID: platform + "-acc"},
		AccessToken: "token",
	}, nil
}

type fakeLedger struct {
	available float64
	deducted  float64
	refunded  float64
}

func (f *fakeLedger) Balance(ctx context.Context, scope models.Scope) (float64, error) {
	return Round2(f.available), nil
}

func (f *fakeLedger) Check(ctx context.Context, scope models.Scope, amount float64) error {
	if f.available < amount {
		return &InsufficientCreditsError{Required: amount, Available: f.available}
	}
	return nil
}

func (f *fakeLedger) Deduct(ctx context.Context, scope models.Scope, amount float64, operation string) error {
	if f.available < amount {
		return &InsufficientCreditsError{Required: amount, Available: f.available}
	}
	f.available = Round2(f.available - amount)
	f.deducted += amount
	return nil
}

func (f *fakeLedger) Refund(ctx context.Context, scope models.Scope, amount float64, description string) {
	f.available = Round2(f.available + amount)
	f.refunded += amount
}

type fakeInstagram struct {
	id    string
	err   error
	calls int
}

func (f *fakeInstagram) PublishPost(ctx context.Context, post *models.Post, acc *ConnectedAccount) (string, error) {
	f.calls++
	return f.id, f.err
}

func (f *fakeInstagram) RefreshToken(ctx context.Context, account *models.SocialAccount) error {
	return nil
}

type fakeThreads struct {
	id    string
	chain []string
	err   error
	calls int
}

func (f *fakeThreads) PublishPost(ctx context.Context, post *models.Post, acc *ConnectedAccount) (string, []string, error) {
	f.calls++
	return f.id, f.chain, f.err
}

func (f *fakeThreads) DeletePost(ctx context.Context, externalID string, acc *ConnectedAccount) error {
	return nil
}

func (f *fakeThreads) RefreshToken(ctx context.Context, account *models.SocialAccount) error {
	return nil
}

type fakeYoutube struct {
	id    string
	err   error
	calls int
}

func (f *fakeYoutube) PublishVideo(ctx context.Context, post *models.Post, acc *ConnectedAccount) (string, error) {
	f.calls++
	return f.id, f.err
}

func (f *fakeYoutube) RefreshToken(ctx context.Context, account *models.SocialAccount) error {
	return nil
}

type fakeDispatcher struct {
	dispatched []string
}

func (f *fakeDispatcher) Dispatch(postID string) error {
	f.dispatched = append(f.dispatched, postID)
	return nil
}

func TestPublish_AllSucceeded(t *testing.T) {
	ledger := &fakeLedger{available: 10}
	ig := &fakeInstagram{id: "ig-1"}
	th := &fakeThreads{id: "th-1", chain: []string{"th-1", "th-2"}}
	yt := &fakeYoutube{id: "yt-1"}

	orch := NewPublishOrchestrator(&fakeResolver{}, ledger, ig, th, yt, nil)

	post := &models.Post{
		ID:        "p1",
		Caption:   "hello",
		MediaURLs: []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.mp4"},
		Platforms: []string{models.PlatformThreads, models.PlatformInstagram, models.PlatformYoutube},
	}

	outcome, err := orch.Publish(context.Background(), post, models.UserScope(1))
	require.NoError(t, err)

	assert.Equal(t, AllSucceeded, outcome.Aggregate)
	assert.Equal(t, "ig-1", outcome.ExternalID(models.PlatformInstagram))
	assert.Equal(t, "th-1", outcome.ExternalID(models.PlatformThreads))
	assert.Equal(t, "yt-1", outcome.ExternalID(models.PlatformYoutube))
	assert.Equal(t, []string{"th-1", "th-2"}, outcome.ChainIDs(models.PlatformThreads))
	assert.False(t, outcome.Refunded)
	assert.Equal(t, 2.00, ledger.deducted)
	assert.Equal(t, 0.0, ledger.refunded)

	// Instagram runs before threads regardless of request order.
	require.Len(t, outcome.Results, 3)
	assert.Equal(t, models.PlatformInstagram, outcome.Results[0].Platform)
	assert.Equal(t, models.PlatformThreads, outcome.Results[1].Platform)
	assert.Equal(t, models.PlatformYoutube, outcome.Results[2].Platform)
}

func TestPublish_PartialFailurePreservesExternalIDs(t *testing.T) {
	ledger := &fakeLedger{available: 10}
	ig := &fakeInstagram{id: "ig-1"}
	th := &fakeThreads{err: &PlatformError{Platform: models.PlatformThreads, Code: ErrCodeTokenExpired, Message: "expired"}}
	yt := &fakeYoutube{id: "yt-1"}

	orch := NewPublishOrchestrator(&fakeResolver{}, ledger, ig, th, yt, nil)

	post := &models.Post{
		ID:        "p1",
		Caption:   "hello",
		MediaURLs: []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/b.mp4"},
		Platforms: []string{models.PlatformInstagram, models.PlatformThreads, models.PlatformYoutube},
	}

	outcome, err := orch.Publish(context.Background(), post, models.UserScope(1))
	require.NoError(t, err)

	assert.Equal(t, Partial, outcome.Aggregate)
	assert.Equal(t, "ig-1", outcome.ExternalID(models.PlatformInstagram))
	assert.Equal(t, "", outcome.ExternalID(models.PlatformThreads))

	// Youtube comes after the failure and is never attempted.
	assert.Equal(t, 0, yt.calls)
	require.Len(t, outcome.Results, 3)
	assert.True(t, outcome.Results[2].Skipped)

	// Credits come back on failure.
	assert.True(t, outcome.Refunded)
	assert.Equal(t, 2.00, ledger.refunded)
	assert.Equal(t, 10.0, ledger.available)

	var pe *PlatformError
	require.ErrorAs(t, outcome.FirstError(), &pe)
	assert.Equal(t, ErrCodeTokenExpired, pe.Code)
}

func TestPublish_AllFailed(t *testing.T) {
	ledger := &fakeLedger{available: 10}
	ig := &fakeInstagram{err: &PlatformError{Platform: models.PlatformInstagram, Code: ErrCodeUnknown, Message: "boom"}}
	th := &fakeThreads{id: "th-1"}
	yt := &fakeYoutube{id: "yt-1"}

	orch := NewPublishOrchestrator(&fakeResolver{}, ledger, ig, th, yt, nil)

	post := &models.Post{
		ID:        "p1",
		Caption:   "hello",
		MediaURLs: []string{"https://cdn.example.com/a.jpg"},
		Platforms: []string{models.PlatformInstagram, models.PlatformThreads},
	}

	outcome, err := orch.Publish(context.Background(), post, models.UserScope(1))
	require.NoError(t, err)

	assert.Equal(t, AllFailed, outcome.Aggregate)
	assert.Equal(t, 0, th.calls)
	assert.True(t, outcome.Refunded)
}

func TestPublish_MissingConnectionBeforeDeduction(t *testing.T) {
	ledger := &fakeLedger{available: 10}
	ig := &fakeInstagram{id: "ig-1"}

	orch := NewPublishOrchestrator(&fakeResolver{missing: map[string]bool{models.PlatformThreads: true}}, ledger, ig, &fakeThreads{}, &fakeYoutube{}, nil)

	post := &models.Post{
		ID:        "p1",
		Caption:   "hello",
		MediaURLs: []string{"https://cdn.example.com/a.jpg"},
		Platforms: []string{models.PlatformInstagram, models.PlatformThreads},
	}

	outcome, err := orch.Publish(context.Background(), post, models.UserScope(1))
	require.Nil(t, outcome)

	var missing *MissingConnectionError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, models.PlatformThreads, missing.Platform)

	// No platform call and no money moved.
	assert.Equal(t, 0, ig.calls)
	assert.Equal(t, 0.0, ledger.deducted)
}

func TestPublish_InsufficientCreditsBeforePlatformCalls(t *testing.T) {
	ledger := &fakeLedger{available: 0.50}
	ig := &fakeInstagram{id: "ig-1"}

	orch := NewPublishOrchestrator(&fakeResolver{}, ledger, ig, &fakeThreads{}, &fakeYoutube{}, nil)

	post := &models.Post{
		ID:        "p1",
		Caption:   "hello",
		MediaURLs: []string{"https://cdn.example.com/a.jpg"},
		Platforms: []string{models.PlatformInstagram},
	}

	outcome, err := orch.Publish(context.Background(), post, models.UserScope(1))
	require.Nil(t, outcome)

	var insufficient *InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 0.50, insufficient.Available)
	assert.Equal(t, 0, ig.calls)
}

func TestPublish_CrossPostDispatchedAfterThreads(t *testing.T) {
	ledger := &fakeLedger{available: 10}
	dispatcher := &fakeDispatcher{}

	orch := NewPublishOrchestrator(&fakeResolver{}, ledger, &fakeInstagram{}, &fakeThreads{id: "th-1"}, &fakeYoutube{}, dispatcher)

	post := &models.Post{
		ID:        "p1",
		Caption:   "hello",
		Platforms: []string{models.PlatformThreads},
		CrossPost: true,
	}

	outcome, err := orch.Publish(context.Background(), post, models.UserScope(1))
	require.NoError(t, err)
	assert.Equal(t, AllSucceeded, outcome.Aggregate)
	assert.Equal(t, []string{"p1"}, dispatcher.dispatched)
	assert.Equal(t, 1.25, ledger.deducted)
}

func TestValidateContent(t *testing.T) {
	tests := []struct {
		name      string
		post      *models.Post
		wantField string
	}{
		{
			name:      "no platforms",
			post:      &models.Post{Caption: "x"},
			wantField: "platforms",
		},
		{
			name:      "unknown platform",
			post:      &models.Post{Caption: "x", Platforms: []string{"myspace"}},
			wantField: "platforms",
		},
		{
			name:      "instagram without media",
			post:      &models.Post{Caption: "x", Platforms: []string{models.PlatformInstagram}},
			wantField: "media_urls",
		},
		{
			name: "youtube without video",
			post: &models.Post{
				Caption:   "x",
				Platforms: []string{models.PlatformYoutube},
				MediaURLs: []string{"https://cdn.example.com/a.jpg"},
			},
			wantField: "media_urls",
		},
		{
			name: "thread with single part",
			post: &models.Post{
				Caption:     "x",
				Platforms:   []string{models.PlatformThreads},
				ThreadsType: models.ThreadsTypeThread,
				ThreadParts: []string{"only one"},
			},
			wantField: "thread_parts",
		},
		{
			name: "thread with empty part",
			post: &models.Post{
				Caption:     "x",
				Platforms:   []string{models.PlatformThreads},
				ThreadsType: models.ThreadsTypeThread,
				ThreadParts: []string{"first", ""},
			},
			wantField: "thread_parts",
		},
		{
			name: "threads image without media",
			post: &models.Post{
				Caption:     "x",
				Platforms:   []string{models.PlatformThreads},
				ThreadsType: models.ThreadsTypeImage,
			},
			wantField: "media_urls",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateContent(tt.post)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

func TestValidateContent_Valid(t *testing.T) {
	post := &models.Post{
		Caption:   "hello",
		Platforms: []string{models.PlatformInstagram, models.PlatformThreads, models.PlatformYoutube},
		MediaURLs: []string{"https://cdn.example.com/a.jpg", "https://cdn.example.com/clip.mp4"},
	}
	assert.NoError(t, ValidateContent(post))
}

func TestValidateContent_MultibyteThreadParts(t *testing.T) {
	// 400 characters is within the limit even though it is 1200 bytes.
	post := &models.Post{
		Caption:     "x",
		Platforms:   []string{models.PlatformThreads},
		ThreadsType: models.ThreadsTypeThread,
		ThreadParts: []string{strings.Repeat("字", 400), strings.Repeat("字", 400)},
	}
	assert.NoError(t, ValidateContent(post))

	post.ThreadParts = []string{strings.Repeat("字", 501), "tail"}
	var ve *ValidationError
	require.ErrorAs(t, ValidateContent(post), &ve)
	assert.Equal(t, "thread_parts", ve.Field)
}

func TestValidateContent_YoutubeExtensionlessRef(t *testing.T) {
	// Object keys without an extension are settled by sniffing at
	// upload time, so validation lets them through.
	post := &models.Post{
		Caption:   "x",
		Platforms: []string{models.PlatformYoutube},
		MediaURLs: []string{"r2://videos/clip-74h2"},
	}
	assert.NoError(t, ValidateContent(post))
}

func TestMaybeVideoURL(t *testing.T) {
	assert.True(t, maybeVideoURL("https://cdn.example.com/clip.mp4"))
	assert.True(t, maybeVideoURL("https://cdn.example.com/clip.MOV?sig=abc"))
	assert.True(t, maybeVideoURL("r2://videos/clip-74h2"))
	assert.True(t, maybeVideoURL("https://media.example.com/stream/74h2"))
	assert.False(t, maybeVideoURL("https://cdn.example.com/photo.jpg"))
	assert.False(t, maybeVideoURL("r2://images/photo.png"))
}

func TestPublishOutcome_FirstError(t *testing.T) {
	failure := errors.New("boom")
	outcome := &PublishOutcome{Results: []PlatformResult{
		{Platform: models.PlatformInstagram, ExternalID: "ig-1"},
		{Platform: models.PlatformThreads, Err: failure},
		{Platform: models.PlatformYoutube, Skipped: true},
	}}

	assert.Equal(t, failure, outcome.FirstError())
	assert.Equal(t, "ig-1", outcome.ExternalID(models.PlatformInstagram))
	assert.Equal(t, "", outcome.ExternalID(models.PlatformYoutube))
}
