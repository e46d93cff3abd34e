package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/publora/publora/configs"
	"github.com/publora/publora/internal/models"
	"github.com/publora/publora/internal/repository"
	"github.com/publora/publora/internal/transfer"
	"github.com/publora/publora/pkg/utils"
)

const (
	threadsGraphURL = "https://graph.threads.net/v1.0"

	// ThreadsPostLimit is the per-post character limit used when
	// splitting an over-long caption into a chain.
	ThreadsPostLimit = 500
	// ThreadsMaxChainParts bounds how many posts one chain may span.
	ThreadsMaxChainParts = 30

	threadsPublishRetryDelay = 2 * time.Second
)

type ThreadsService interface {
	PublishPost(ctx context.Context, post *models.Post, acc *ConnectedAccount) (string, []string, error)
	DeletePost(ctx context.Context, externalID string, acc *ConnectedAccount) error
	RefreshToken(ctx context.Context, account *models.SocialAccount) error
}

type threadsService struct {
	cfg    config.Config
	sa     repository.SocialAccountRepository
	client *http.Client
}

func NewThreadsService(cfg config.Config, sa repository.SocialAccountRepository) ThreadsService {
	return &threadsService{
		cfg:    cfg,
		sa:     sa,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// PublishPost publishes a single post or a reply chain depending on
// the content type. For chains it returns the id of the first post
// plus the ordered ids of every part.
func (s *threadsService) PublishPost(ctx context.Context, post *models.Post, acc *ConnectedAccount) (string, []string, error) {
	accountID := s.resolveAccountID(ctx, acc)
	token := acc.AccessToken

	if post.ThreadsType == models.ThreadsTypeThread {
		return s.publishChain(ctx, accountID, token, post)
	}

	params := url.Values{}
	params.Set("text", post.Caption)
	switch post.ThreadsType {
	case models.ThreadsTypeImage:
		params.Set("media_type", "IMAGE")
		params.Set("image_url", post.MediaURLs[0])
	case models.ThreadsTypeVideo:
		params.Set("media_type", "VIDEO")
		params.Set("video_url", post.MediaURLs[0])
	default:
		params.Set("media_type", "TEXT")
	}

	containerID, err := s.createContainer(ctx, accountID, token, params)
	if err != nil {
		return "", nil, err
	}
	if post.ThreadsType == models.ThreadsTypeVideo {
		if err := s.waitForContainer(ctx, containerID, token); err != nil {
			return "", nil, err
		}
	}

	postID, err := s.publishContainer(ctx, accountID, containerID, token)
	if err != nil {
		return "", nil, err
	}
	return postID, nil, nil
}

// publishChain posts each part as a reply to the previous part's
// published id, forming one visible thread.
func (s *threadsService) publishChain(ctx context.Context, accountID, token string, post *models.Post) (string, []string, error) {
	parts := post.ThreadParts
	if len(parts) == 0 {
		var err error
		parts, err = SplitChain(post.Caption, ThreadsPostLimit, ThreadsMaxChainParts)
		if err != nil {
			return "", nil, err
		}
	}

	chainIDs := make([]string, 0, len(parts))
	var previousID string
	for i, part := range parts {
		params := url.Values{}
		params.Set("media_type", "TEXT")
		params.Set("text", part)
		if previousID != "" {
			params.Set("reply_to_id", previousID)
		}

		containerID, err := s.createContainer(ctx, accountID, token, params)
		if err != nil {
			return "", chainIDs, fmt.Errorf("creating chain part %d: %w", i+1, err)
		}

		postID, err := s.publishContainer(ctx, accountID, containerID, token)
		if err != nil {
			return "", chainIDs, fmt.Errorf("publishing chain part %d: %w", i+1, err)
		}
		chainIDs = append(chainIDs, postID)
		previousID = postID
	}

	return chainIDs[0], chainIDs, nil
}

// resolveAccountID asks the platform for the live account id, falling
// back to the stored id when the lookup is unavailable.
func (s *threadsService) resolveAccountID(ctx context.Context, acc *ConnectedAccount) string {
	reqURL := fmt.Sprintf("%s/me?fields=id,username&access_token=%s", threadsGraphURL, acc.AccessToken)

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return acc.Account.AccountID
	}
	resp, err := s.client.Do(req)
	if err != nil {
		slog.Info("threads profile lookup unavailable, using stored id", "error", err)
		return acc.Account.AccountID
	}
	defer resp.Body.Close()

	var profile transfer.ThreadsProfile
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&profile) != nil || profile.ID == "" {
		return acc.Account.AccountID
	}
	return profile.ID
}

func (s *threadsService) createContainer(ctx context.Context, accountID, token string, params url.Values) (string, error) {
	params.Set("access_token", token)
	reqURL := fmt.Sprintf("%s/%s/threads", threadsGraphURL, accountID)

	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, strings.NewReader(params.Encode()))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", MapProviderError(models.PlatformThreads, 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.mapError(resp)
	}

	var result transfer.ThreadsContainer
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if result.ID == "" {
		return "", MapProviderError(models.PlatformThreads, resp.StatusCode, "no container ID returned", nil)
	}
	return result.ID, nil
}

func (s *threadsService) waitForContainer(ctx context.Context, containerID, token string) error {
	reqURL := fmt.Sprintf("%s/%s?fields=status,error_message&access_token=%s", threadsGraphURL, containerID, token)

	for attempt := 0; attempt < containerPollAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
		if err != nil {
			return err
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return MapProviderError(models.PlatformThreads, 0, "", err)
		}

		var status transfer.ThreadsContainerStatus
		err = json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("error parsing container status: %w", err)
		}

		switch status.Status {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			msg := status.ErrorMessage
			if msg == "" {
				msg = fmt.Sprintf("container %s entered status %s", containerID, status.Status)
			}
			return MapProviderError(models.PlatformThreads, resp.StatusCode, msg, nil)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(containerPollInterval):
		}
	}

	return &PlatformError{
		Platform: models.PlatformThreads,
		Code:     ErrCodeTransient,
		Message:  fmt.Sprintf("container %s not ready after %d attempts", containerID, containerPollAttempts),
	}
}

// publishContainer publishes a ready container. When the provider
// reports the container as transiently missing, one retry happens
// after a short delay; a second miss means the connection is stale.
func (s *threadsService) publishContainer(ctx context.Context, accountID, containerID, token string) (string, error) {
	postID, err := s.publishOnce(ctx, accountID, containerID, token)
	if err == nil {
		return postID, nil
	}

	var pe *PlatformError
	if errors.As(err, &pe) && pe.Code == ErrCodeNotFound {
		slog.Info("threads container not visible yet, retrying publish", "container_id", containerID)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(threadsPublishRetryDelay):
		}
		postID, retryErr := s.publishOnce(ctx, accountID, containerID, token)
		if retryErr == nil {
			return postID, nil
		}
		return "", &PlatformError{
			Platform: models.PlatformThreads,
			Code:     ErrCodeNotFound,
			Message:  "container missing after retry, reconnect the Threads account",
		}
	}
	return "", err
}

func (s *threadsService) publishOnce(ctx context.Context, accountID, containerID, token string) (string, error) {
	params := url.Values{}
	params.Set("creation_id", containerID)
	params.Set("access_token", token)
	reqURL := fmt.Sprintf("%s/%s/threads_publish", threadsGraphURL, accountID)

	req, err := http.NewRequestWithContext(ctx, "POST", reqURL, strings.NewReader(params.Encode()))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", MapProviderError(models.PlatformThreads, 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", s.mapError(resp)
	}

	var result transfer.ThreadsContainer
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if result.ID == "" {
		return "", MapProviderError(models.PlatformThreads, resp.StatusCode, "no post ID returned", nil)
	}

	slog.Info("published to threads", "post_id", result.ID)
	return result.ID, nil
}

// DeletePost removes a published post on the platform side.
func (s *threadsService) DeletePost(ctx context.Context, externalID string, acc *ConnectedAccount) error {
	reqURL := fmt.Sprintf("%s/%s?access_token=%s", threadsGraphURL, externalID, acc.AccessToken)

	req, err := http.NewRequestWithContext(ctx, "DELETE", reqURL, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return MapProviderError(models.PlatformThreads, 0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return s.mapError(resp)
	}
	return nil
}

func (s *threadsService) mapError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp transfer.ThreadsErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return MapProviderError(models.PlatformThreads, resp.StatusCode, errResp.Error.Message, nil)
	}
	return MapProviderError(models.PlatformThreads, resp.StatusCode, string(body), nil)
}

// RefreshToken extends the long-lived Threads token.
func (s *threadsService) RefreshToken(ctx context.Context, account *models.SocialAccount) error {
	decrypted, err := utils.Decrypt(account.AccessToken, []byte(s.cfg.SecretKey))
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s/refresh_access_token?grant_type=th_refresh_token&access_token=%s", threadsGraphURL, decrypted)
	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("threads token refresh returned status %d", resp.StatusCode)
	}

	var result transfer.ThreadsRefreshResponse
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
