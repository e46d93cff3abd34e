package job

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/publora/publora/internal/models"
	"github.com/publora/publora/internal/service"
)

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts []*models.SocialAccount
	statuses map[int64]string
}

func (f *fakeAccountRepo) Create(ctx context.Context, tx *sql.Tx, sa *models.SocialAccount) (int64, error) {
	return 0, errors.New("not used")
}

func (f *fakeAccountRepo) GetByScopeAndPlatform(ctx context.Context, scope models.Scope, platform string) (*models.SocialAccount, error) {
	return nil, errors.New("not used")
}

func (f *fakeAccountRepo) ListByTimeInterval(ctx context.Context, initialTime, finalTime time.Time) ([]*models.SocialAccount, error) {
	return f.accounts, nil
}

func (f *fakeAccountRepo) SetToken(ctx context.Context, id int64, sa *models.SocialAccount) error {
	return nil
}

func (f *fakeAccountRepo) SetStatus(ctx context.Context, id int64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statuses == nil {
		f.statuses = map[int64]string{}
	}
	f.statuses[id] = status
	return nil
}

type fakeRefresher struct {
	mu        sync.Mutex
	err       error
	refreshed []int64
}

func (f *fakeRefresher) RefreshToken(ctx context.Context, account *models.SocialAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshed = append(f.refreshed, account.ID)
	return f.err
}

type fakeIGRefresher struct{ fakeRefresher }

func (f *fakeIGRefresher) PublishPost(ctx context.Context, post *models.Post, acc *service.ConnectedAccount) (string, error) {
	return "", errors.New("not used")
}

type fakeTHRefresher struct{ fakeRefresher }

func (f *fakeTHRefresher) PublishPost(ctx context.Context, post *models.Post, acc *service.ConnectedAccount) (string, []string, error) {
	return "", nil, errors.New("not used")
}

func (f *fakeTHRefresher) DeletePost(ctx context.Context, externalID string, acc *service.ConnectedAccount) error {
	return errors.New("not used")
}

type fakeYTRefresher struct{ fakeRefresher }

func (f *fakeYTRefresher) PublishVideo(ctx context.Context, post *models.Post, acc *service.ConnectedAccount) (string, error) {
	return "", errors.New("not used")
}

func TestRefreshTokens_MarksFailedAccountsExpired(t *testing.T) {
	repo := &fakeAccountRepo{accounts: []*models.SocialAccount{
		{ID: 1, Platform: models.PlatformInstagram},
		{ID: 2, Platform: models.PlatformThreads},
		{ID: 3, Platform: models.PlatformYoutube},
	}}
	ig := &fakeIGRefresher{}
	th := &fakeTHRefresher{fakeRefresher{err: errors.New("token revoked upstream")}}
	yt := &fakeYTRefresher{}

	NewTokenRefreshJob(repo, ig, th, yt).RefreshTokens()

	assert.Equal(t, []int64{1}, ig.refreshed)
	assert.Equal(t, []int64{2}, th.refreshed)
	assert.Equal(t, []int64{3}, yt.refreshed)

	assert.Equal(t, map[int64]string{2: models.AccountStatusExpired}, repo.statuses)
}

func TestRefreshTokens_AllHealthy(t *testing.T) {
	repo := &fakeAccountRepo{accounts: []*models.SocialAccount{
		{ID: 7, Platform: models.PlatformYoutube},
	}}

	NewTokenRefreshJob(repo, &fakeIGRefresher{}, &fakeTHRefresher{}, &fakeYTRefresher{}).RefreshTokens()

	assert.Empty(t, repo.statuses)
}
