package service

import (
	"context"
	"fmt"
	"log/slog"

	config "github.com/publora/publora/configs"
	"github.com/publora/publora/internal/models"
	"github.com/publora/publora/internal/repository"
	"github.com/publora/publora/pkg/utils"
)

// ConnectedAccount is a resolved account with tokens decrypted for use
// in a single publish attempt. Tokens never leave the process in this
// form.
type ConnectedAccount struct {
	Account      *models.SocialAccount
	AccessToken  string
	RefreshToken string
}

type AccountResolver interface {
	Resolve(ctx context.Context, scope models.Scope, platform string) (*ConnectedAccount, error)
}

type accountResolver struct {
	cfg config.Config
	sa  repository.SocialAccountRepository
}

func NewAccountResolver(cfg config.Config, sa repository.SocialAccountRepository) AccountResolver {
	return &accountResolver{cfg: cfg, sa: sa}
}

// Resolve returns the active connected account for a scope and
// platform, or a MissingConnectionError when none exists.
func (r *accountResolver) Resolve(ctx context.Context, scope models.Scope, platform string) (*ConnectedAccount, error) {
	acc, err := r.sa.GetByScopeAndPlatform(ctx, scope, platform)
	if err != nil {
		return nil, fmt.Errorf("resolving %s account: %w", platform, err)
	}
	if acc == nil {
		slog.Info("no connected account", "platform", platform, "user_id", scope.UserID)
		return nil, &MissingConnectionError{Platform: platform}
	}

	accessToken, err := utils.Decrypt(acc.AccessToken, []byte(r.cfg.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("decrypting access token: %w", err)
	}

	var refreshToken string
	if acc.RefreshToken != "" {
		refreshToken, err = utils.Decrypt(acc.RefreshToken, []byte(r.cfg.SecretKey))
		if err != nil {
			return nil, fmt.Errorf("decrypting refresh token: %w", err)
		}
	}

	return &ConnectedAccount{
		Account:      acc,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
