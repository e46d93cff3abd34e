package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	config "github.com/publora/publora/configs"
	"github.com/publora/publora/internal/models"
	"github.com/publora/publora/internal/repository"
	"github.com/publora/publora/pkg/utils"
)

// tokenExpirySkew forces a refresh shortly before the stored expiry so
// a long upload does not start with a token about to die.
const tokenExpirySkew = 5 * time.Minute

type YoutubeService interface {
	PublishVideo(ctx context.Context, post *models.Post, acc *ConnectedAccount) (string, error)
	RefreshToken(ctx context.Context, account *models.SocialAccount) error
}

type youtubeService struct {
	cfg   config.Config
	sa    repository.SocialAccountRepository
	media MediaService
}

func NewYoutubeService(cfg config.Config, sa repository.SocialAccountRepository, media MediaService) YoutubeService {
	return &youtubeService{cfg: cfg, sa: sa, media: media}
}

func (s *youtubeService) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     s.cfg.GoogleClientID,
		ClientSecret: s.cfg.GoogleClientSecret,
		Scopes:       []string{"https://www.googleapis.com/auth/youtube.upload"},
		Endpoint:     google.Endpoint,
	}
}

// PublishVideo streams the post's first video media to YouTube and
// returns the video id. A 401 during upload triggers exactly one
// forced refresh and a full retry.
func (s *youtubeService) PublishVideo(ctx context.Context, post *models.Post, acc *ConnectedAccount) (string, error) {
	accessToken, err := s.ensureToken(ctx, acc)
	if err != nil {
		return "", err
	}

	videoID, err := s.upload(ctx, post, accessToken)
	if err == nil {
		return videoID, nil
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 401 {
		slog.Info("youtube upload rejected with 401, refreshing token and retrying", "post_id", post.ID)
		accessToken, refreshErr := s.refreshNow(ctx, acc)
		if refreshErr != nil {
			return "", &PlatformError{Platform: models.PlatformYoutube, Code: ErrCodeTokenExpired, Message: refreshErr.Error()}
		}
		videoID, err = s.upload(ctx, post, accessToken)
		if err == nil {
			return videoID, nil
		}
	}

	return "", s.mapError(err)
}

func (s *youtubeService) upload(ctx context.Context, post *models.Post, accessToken string) (string, error) {
	mediaRef, err := s.pickVideoRef(ctx, post)
	if err != nil {
		return "", err
	}

	stream, err := s.media.ResolveStream(ctx, mediaRef)
	if err != nil {
		return "", fmt.Errorf("resolving media stream: %w", err)
	}
	defer stream.Close()

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	yt, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return "", fmt.Errorf("creating youtube service: %w", err)
	}

	title := post.Title
	if title == "" {
		title = firstLine(post.Caption)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: post.Caption,
			CategoryId:  "22",
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: "public",
		},
	}

	call := yt.Videos.Insert([]string{"snippet", "status"}, video)
	response, err := call.Media(stream).Context(ctx).Do()
	if err != nil {
		return "", err
	}

	slog.Info("published to youtube", "video_id", response.Id)
	return response.Id, nil
}

// pickVideoRef chooses the media reference to upload: extension match
// first, then content sniffing for extensionless references (object
// keys, opaque URLs).
func (s *youtubeService) pickVideoRef(ctx context.Context, post *models.Post) (string, error) {
	for _, ref := range post.MediaURLs {
		if isVideoURL(ref) {
			return ref, nil
		}
	}

	for _, ref := range post.MediaURLs {
		ok, err := s.media.IsVideo(ctx, ref)
		if err != nil {
			slog.Info("media sniff failed", "ref", ref, "error", err)
			continue
		}
		if ok {
			return ref, nil
		}
	}

	return "", &PlatformError{Platform: models.PlatformYoutube, Code: ErrCodeUnknown, Message: "no video media found"}
}

// ensureToken returns a usable access token, refreshing when the
// stored one is missing or inside the expiry skew.
func (s *youtubeService) ensureToken(ctx context.Context, acc *ConnectedAccount) (string, error) {
	if acc.AccessToken != "" && time.Until(acc.Account.TokenExpiresAt) > tokenExpirySkew {
		return acc.AccessToken, nil
	}
	token, err := s.refreshNow(ctx, acc)
	if err != nil {
		return "", &PlatformError{Platform: models.PlatformYoutube, Code: ErrCodeTokenExpired, Message: err.Error()}
	}
	return token, nil
}

// refreshNow exchanges the refresh token and persists the result.
func (s *youtubeService) refreshNow(ctx context.Context, acc *ConnectedAccount) (string, error) {
	if acc.RefreshToken == "" {
		return "", errors.New("no refresh token stored")
	}

	tokenSource := s.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: acc.RefreshToken})
	token, err := tokenSource.Token()
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	encrypted, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return "", err
	}

	if err := s.sa.SetToken(ctx, acc.Account.ID, &models.SocialAccount{
		AccessToken:    encrypted,
		TokenExpiresAt: token.Expiry,
	}); err != nil {
		return "", err
	}

	acc.AccessToken = token.AccessToken
	acc.Account.TokenExpiresAt = token.Expiry
	return token.AccessToken, nil
}

// RefreshToken refreshes a stored account's token out of band (used by
// the periodic refresh job).
func (s *youtubeService) RefreshToken(ctx context.Context, account *models.SocialAccount) error {
	refreshToken, err := utils.Decrypt(account.RefreshToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	tokenSource := s.oauthConfig().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := tokenSource.Token()
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	encrypted, err := utils.Encrypt([]byte(token.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	return s.sa.SetToken(ctx, account.ID, &models.SocialAccount{
		AccessToken:    encrypted,
		TokenExpiresAt: token.Expiry,
	})
}

func (s *youtubeService) mapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return MapProviderError(models.PlatformYoutube, apiErr.Code, apiErr.Message, err)
	}
	return MapProviderError(models.PlatformYoutube, 0, "", err)
}

func firstLine(text string) string {
	for i, r := range text {
		if r == '\n' {
			return text[:i]
		}
		if i >= 95 {
			return text[:i]
		}
	}
	return text
}
