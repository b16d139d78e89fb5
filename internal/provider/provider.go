// Package provider converts provider-specific OAuth responses into a
// canonical identity profile so the rest of the service never sees a
// provider's wire shapes.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrProviderRejected means the provider answered with an explicit error
	// payload (e.g. invalid_grant on a reused authorization code).
	ErrProviderRejected = errors.New("provider rejected the request")
	// ErrUpstreamUnavailable covers network failures and timeouts.
	ErrUpstreamUnavailable = errors.New("provider unavailable")
	// ErrInvalidResponse covers responses whose shape cannot be decoded.
	ErrInvalidResponse = errors.New("invalid provider response")
)

const maxProfileBody = 1 << 20

// Profile is the canonical, provider-agnostic identity record. Raw keeps the
// untranslated payload for diagnostics; internal code never reads it.
type Profile struct {
	ExternalID      string
	Nickname        string
	ProfileImageURL string
	Raw             json.RawMessage
}

type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code, state string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, token *oauth2.Token) (*Profile, error)
}

// Options configures one adapter. The URL fields override the provider's
// fixed endpoints and exist for tests only.
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Timeout      time.Duration

	AuthURL    string
	TokenURL   string
	ProfileURL string
}

func (o Options) httpClient() *http.Client {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}

func classifyExchangeError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		code := retrieveErr.ErrorCode
		if code == "" && retrieveErr.Response != nil {
			code = retrieveErr.Response.Status
		}
		return fmt.Errorf("%w: %s", ErrProviderRejected, code)
	}
	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.As(err, &urlErr) {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	// the oauth2 package does not wrap transport errors, so match its message
	if strings.Contains(err.Error(), "cannot fetch token") {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
}

// getProfile performs the Bearer-authenticated profile fetch shared by all
// adapters. Transport failures are classified; status handling stays with the
// caller because error shapes differ per provider.
func getProfile(ctx context.Context, client *http.Client, profileURL, accessToken string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, profileURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	res, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, maxProfileBody))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	return body, res.StatusCode, nil
}

// externalID tolerates both numeric and string user identifiers; Kakao sends
// numbers, Naver sends strings.
type externalID string

func (f *externalID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = externalID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*f = externalID(n.String())
		return nil
	}
	return errors.New("unsupported id type")
}
