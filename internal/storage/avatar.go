// Package storage mirrors provider-hosted avatar images into first-party
// blob storage so user profiles do not depend on provider CDN availability.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"social-login-service/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/doyensec/safeurl"
	"github.com/google/uuid"
)

// AvatarMirror copies a remote image to durable storage and returns its new
// URL. Implementations are best-effort collaborators: login flows log mirror
// failures and keep the provider-hosted URL instead of failing.
type AvatarMirror interface {
	Mirror(ctx context.Context, srcURL string) (string, error)
}

type S3AvatarMirror struct {
	api           *s3.Client
	httpClient    *http.Client
	bucket        string
	publicBaseURL string
	maxBytes      int64
}

func NewS3AvatarMirror(ctx context.Context, cfg *config.Config) (*S3AvatarMirror, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3ForcePathStyle
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
	})
	return &S3AvatarMirror{
		api:           api,
		httpClient:    newSafeHTTPClient(cfg.ProviderTimeout),
		bucket:        cfg.S3Bucket,
		publicBaseURL: strings.TrimRight(cfg.S3PublicBaseURL, "/"),
		maxBytes:      cfg.AvatarMaxBytes,
	}, nil
}

// newSafeHTTPClient builds an SSRF-guarded client: the avatar URL comes from
// a provider response and must never be allowed to reach private or
// link-local address space.
func newSafeHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()
	return safeurl.Client(cfg).Client
}

func (m *S3AvatarMirror) Mirror(ctx context.Context, srcURL string) (string, error) {
	if srcURL == "" {
		return "", errors.New("empty avatar url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return "", fmt.Errorf("build avatar request: %w", err)
	}
	res, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch avatar: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch avatar: status %d", res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, m.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read avatar: %w", err)
	}
	if int64(len(body)) > m.maxBytes {
		return "", fmt.Errorf("avatar exceeds %d bytes", m.maxBytes)
	}

	contentType := res.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	key := "avatars/" + uuid.NewString() + extensionFor(contentType)
	size := int64(len(body))
	_, err = m.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	return m.publicBaseURL + "/" + key, nil
}

func extensionFor(contentType string) string {
	switch {
	case strings.HasPrefix(contentType, "image/png"):
		return ".png"
	case strings.HasPrefix(contentType, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(contentType, "image/gif"):
		return ".gif"
	case strings.HasPrefix(contentType, "image/webp"):
		return ".webp"
	default:
		return ""
	}
}
