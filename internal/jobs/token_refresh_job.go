package job

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/publora/publora/internal/models"
	"github.com/publora/publora/internal/repository"
	"github.com/publora/publora/internal/service"
)

type TokenRefreshJob struct {
	sr repository.SocialAccountRepository
	ig service.InstagramService
	th service.ThreadsService
	yt service.YoutubeService
}

func NewTokenRefreshJob(
	sr repository.SocialAccountRepository,
	ig service.InstagramService,
	th service.ThreadsService,
	yt service.YoutubeService) *TokenRefreshJob {
	return &TokenRefreshJob{
		sr: sr,
		ig: ig,
		th: th,
		yt: yt,
	}
}

// RefreshTokens refreshes accounts whose tokens expire within the next
// half hour, a few at a time.
func (c *TokenRefreshJob) RefreshTokens() {
	ctx := context.Background()

	currentTime := time.Now()
	timeIn30Minutes := currentTime.Add(30 * time.Minute)

	accounts, err := c.sr.ListByTimeInterval(ctx, currentTime, timeIn30Minutes)
	if err != nil {
		slog.Info(err.Error())
		return
	}

	var wg sync.WaitGroup

	concurrencyLimit := 10
	semaphore := make(chan struct{}, concurrencyLimit)

	for _, acc := range accounts {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(acc *models.SocialAccount) {
			defer wg.Done()
			defer func() { <-semaphore }()

			var err error
			switch acc.Platform {
			case models.PlatformInstagram:
				err = c.ig.RefreshToken(ctx, acc)
			case models.PlatformThreads:
				err = c.th.RefreshToken(ctx, acc)
			case models.PlatformYoutube:
				err = c.yt.RefreshToken(ctx, acc)
			}
			if err != nil {
				slog.Info("unable to refresh token", "platform", acc.Platform, "account_id", acc.ID)
				// The token dies within the half hour anyway, so the
				// connection is flagged for a manual reconnect.
				if serr := c.sr.SetStatus(ctx, acc.ID, models.AccountStatusExpired); serr != nil {
					slog.Info("unable to mark account expired", "account_id", acc.ID, "error", serr)
				}
			}
		}(acc)
	}

	wg.Wait()
}
