package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"

	cfg "github.com/publora/publora/configs"
)

type MediaService interface {
	// ResolveStream opens a readable stream for a media reference:
	// r2:// keys come from object storage, anything else over HTTP.
	ResolveStream(ctx context.Context, ref string) (io.ReadCloser, error)
	IsVideo(ctx context.Context, ref string) (bool, error)
}

type mediaService struct {
	config cfg.Config
	client *http.Client
}

func NewMediaService(config cfg.Config) MediaService {
	return &mediaService{
		config: config,
		client: &http.Client{Timeout: 10 * time.Minute},
	}
}

func (m *mediaService) r2Client(ctx context.Context) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(m.config.R2.AccessKey, m.config.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", m.config.R2.AccountID))
	}), nil
}

func (m *mediaService) ResolveStream(ctx context.Context, ref string) (io.ReadCloser, error) {
	if key, ok := strings.CutPrefix(ref, "r2://"); ok {
		client, err := m.r2Client(ctx)
		if err != nil {
			return nil, err
		}
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(m.config.R2.BucketName),
			Key:    aws.String(key),
		})
		if err != nil {
			slog.Info(err.Error())
			return nil, fmt.Errorf("fetching media object %s: %w", key, err)
		}
		return out.Body, nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", ref, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading media: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected response status: %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// IsVideo sniffs the first bytes of a media reference.
func (m *mediaService) IsVideo(ctx context.Context, ref string) (bool, error) {
	stream, err := m.ResolveStream(ctx, ref)
	if err != nil {
		return false, err
	}
	defer stream.Close()

	head := make([]byte, 262)
	n, err := io.ReadFull(stream, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return false, fmt.Errorf("reading media header: %w", err)
	}

	return filetype.IsVideo(head[:n]), nil
}
