package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	config "github.com/publora/publora/configs"
	"github.com/publora/publora/internal/models"
	"github.com/publora/publora/internal/repository"
	"github.com/publora/publora/internal/transfer"
	"github.com/publora/publora/pkg/utils"
)

const (
	instagramGraphURL = "https://graph.instagram.com/v21.0"

	containerPollInterval = 3 * time.Second
	containerPollAttempts = 20
)

type InstagramService interface {
	PublishPost(ctx context.Context, post *models.Post, acc *ConnectedAccount) (string, error)
	RefreshToken(ctx context.Context, account *models.SocialAccount) error
}

type instagramService struct {
	cfg    config.Config
	sa     repository.SocialAccountRepository
	client *http.Client
}

func NewInstagramService(cfg config.Config, sa repository.SocialAccountRepository) InstagramService {
	return &instagramService{
		cfg:    cfg,
		sa:     sa,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// PublishPost runs the container flow for the post's content type and
// returns the published media id.
func (s *instagramService) PublishPost(ctx context.Context, post *models.Post, acc *ConnectedAccount) (string, error) {
	accountID := acc.Account.AccountID
	token := acc.AccessToken

	var containerID string
	var err error

	switch post.InstagramType {
	case models.InstagramTypeCarousel:
		containerID, err = s.createCarousel(ctx, accountID, token, post)
	case models.InstagramTypeReel:
		containerID, err = s.createContainer(ctx, accountID, token, map[string]interface{}{
			"media_type":   "REELS",
			"video_url":    post.MediaURLs[0],
			"caption":      post.Caption,
			"access_token": token,
		})
		if err == nil {
			err = s.waitForContainer(ctx, containerID, token)
		}
	case models.InstagramTypeStory:
		payload := map[string]interface{}{
			"media_type":   "STORIES",
			"access_token": token,
		}
		if isVideoURL(post.MediaURLs[0]) {
			payload["video_url"] = post.MediaURLs[0]
		} else {
			payload["image_url"] = post.MediaURLs[0]
		}
		containerID, err = s.createContainer(ctx, accountID, token, payload)
		if err == nil && isVideoURL(post.MediaURLs[0]) {
			err = s.waitForContainer(ctx, containerID, token)
		}
	default: // feed
		containerID, err = s.createContainer(ctx, accountID, token, map[string]interface{}{
			"image_url":    post.MediaURLs[0],
			"caption":      post.Caption,
			"access_token": token,
		})
	}
	if err != nil {
		return "", err
	}

	return s.publishContainer(ctx, accountID, containerID, token)
}

// createCarousel creates N child containers (video children polled to
// readiness) before assembling the parent referencing all of them.
func (s *instagramService) createCarousel(ctx context.Context, accountID, token string, post *models.Post) (string, error) {
	children := make([]string, 0, len(post.MediaURLs))
	for _, mediaURL := range post.MediaURLs {
		payload := map[string]interface{}{
			"is_carousel_item": true,
			"access_token":     token,
		}
		video := isVideoURL(mediaURL)
		if video {
			payload["media_type"] = "VIDEO"
			payload["video_url"] = mediaURL
		} else {
			payload["image_url"] = mediaURL
		}

		childID, err := s.createContainer(ctx, accountID, token, payload)
		if err != nil {
			return "", fmt.Errorf("creating carousel child: %w", err)
		}
		if video {
			if err := s.waitForContainer(ctx, childID, token); err != nil {
				return "", err
			}
		}
		children = append(children, childID)
	}

	parentID, err := s.createContainer(ctx, accountID, token, map[string]interface{}{
		"media_type":   "CAROUSEL",
		"caption":      post.Caption,
		"children":     children,
		"access_token": token,
	})
	if err != nil {
		return "", fmt.Errorf("creating carousel parent: %w", err)
	}
	if err := s.waitForContainer(ctx, parentID, token); err != nil {
		return "", err
	}
	return parentID, nil
}

func (s *instagramService) createContainer(ctx context.Context, accountID, token string, payload map[string]interface{}) (string, error) {
	url := fmt.Sprintf("%s/%s/media", instagramGraphURL, accountID)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", MapProviderError(models.PlatformInstagram, 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.mapError(resp)
	}

	var result transfer.InstagramContainer
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if result.ID == "" {
		return "", MapProviderError(models.PlatformInstagram, resp.StatusCode, "no container ID returned", nil)
	}
	return result.ID, nil
}

// waitForContainer polls until the container is ready, failing closed
// after containerPollAttempts.
func (s *instagramService) waitForContainer(ctx context.Context, containerID, token string) error {
	url := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s", instagramGraphURL, containerID, token)

	for attempt := 0; attempt < containerPollAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return MapProviderError(models.PlatformInstagram, 0, "", err)
		}

		var status transfer.InstagramContainerStatus
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("error parsing container status: %w", err)
		}

		switch status.StatusCode {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return MapProviderError(models.PlatformInstagram, resp.StatusCode,
				fmt.Sprintf("container %s entered status %s", containerID, status.StatusCode), nil)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(containerPollInterval):
		}
	}

	return &PlatformError{
		Platform: models.PlatformInstagram,
		Code:     ErrCodeTransient,
		Message:  fmt.Sprintf("container %s not ready after %d attempts", containerID, containerPollAttempts),
	}
}

func (s *instagramService) publishContainer(ctx context.Context, accountID, containerID, token string) (string, error) {
	url := fmt.Sprintf("%s/%s/media_publish", instagramGraphURL, accountID)
	body, err := json.Marshal(map[string]string{
		"creation_id":  containerID,
		"access_token": token,
	})
	if err != nil {
		return "", fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", MapProviderError(models.PlatformInstagram, 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.mapError(resp)
	}

	var result transfer.InstagramContainer
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if result.ID == "" {
		return "", MapProviderError(models.PlatformInstagram, resp.StatusCode, "no media ID returned", nil)
	}

	slog.Info("published to instagram", "media_id", result.ID)
	return result.ID, nil
}

func (s *instagramService) mapError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp transfer.InstagramErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.IsTransient {
			return &PlatformError{Platform: models.PlatformInstagram, Code: ErrCodeTransient, Message: errResp.Error.Message}
		}
		return MapProviderError(models.PlatformInstagram, resp.StatusCode, errResp.Error.Message, nil)
	}
	return MapProviderError(models.PlatformInstagram, resp.StatusCode, string(body), nil)
}

// RefreshToken exchanges the stored long-lived token for a fresh one.
func (s *instagramService) RefreshToken(ctx context.Context, account *models.SocialAccount) error {
	decrypted, err := utils.Decrypt(account.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	url := fmt.Sprintf("https://graph.instagram.com/refresh_access_token?grant_type=ig_refresh_token&access_token=%s", decrypted)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result transfer.InstagramRefreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return err
	}

	encrypted, err := utils.Encrypt([]byte(result.AccessToken), []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	return s.sa.SetToken(ctx, account.ID, &models.SocialAccount{
		AccessToken:    encrypted,
		TokenExpiresAt: GetExpiresAt(result.ExpiresIn),
	})
}

func isVideoURL(url string) bool {
	lower := strings.ToLower(url)
	for _, ext := range []string{".mp4", ".mov", ".m4v", ".webm"} {
		if strings.HasSuffix(lower, ext) || strings.Contains(lower, ext+"?") {
			return true
		}
	}
	return false
}
