package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"api-contract-tester/internal/config"
)

// AuthenticationError marks a failure to obtain credentials. It is the
// only error class that aborts the discovery phase; everywhere else it
// fails a single test.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// Provider produces the HTTP headers a request needs to authenticate.
type Provider interface {
	ObtainAuthHeaders(ctx context.Context) (map[string]string, error)
}

// NewProvider selects the provider for the configured auth type. An empty
// type yields an anonymous provider with no headers.
func NewProvider(cfg config.AuthConfig) (Provider, error) {
	switch cfg.Type {
	case "", "none":
		return staticProvider{headers: map[string]string{}}, nil
	case "bearer":
		if cfg.Token == "" {
			return nil, &AuthenticationError{Reason: "bearer auth requires a token"}
		}
		return staticProvider{headers: map[string]string{
			cfg.Header: "Bearer " + cfg.Token,
		}}, nil
	case "apikey":
		if cfg.Token == "" {
			return nil, &AuthenticationError{Reason: "apikey auth requires a token"}
		}
		return staticProvider{headers: map[string]string{
			cfg.Header: cfg.Token,
		}}, nil
	case "oauth2":
		if cfg.TokenURL == "" || cfg.Username == "" {
			return nil, &AuthenticationError{Reason: "oauth2 auth requires token_url and username"}
		}
		return &oauth2Provider{
			cfg:    cfg,
			client: &http.Client{Timeout: 30 * time.Second},
		}, nil
	default:
		return nil, &AuthenticationError{Reason: fmt.Sprintf("unsupported auth type %q", cfg.Type)}
	}
}

type staticProvider struct {
	headers map[string]string
}

func (p staticProvider) ObtainAuthHeaders(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, len(p.headers))
	for k, v := range p.headers {
		out[k] = v
	}
	return out, nil
}

// oauth2Provider performs a password-grant exchange and caches the token
// until shortly before it expires. Concurrent runner invocations within a
// batch share one provider, hence the mutex.
type oauth2Provider struct {
	cfg    config.AuthConfig
	client *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (p *oauth2Provider) ObtainAuthHeaders(ctx context.Context) (map[string]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token == "" || time.Now().After(p.expires) {
		if err := p.refresh(ctx); err != nil {
			return nil, err
		}
	}
	return map[string]string{p.cfg.Header: "Bearer " + p.token}, nil
}

func (p *oauth2Provider) refresh(ctx context.Context) error {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", p.cfg.Username)
	form.Set("password", p.cfg.Password)
	if p.cfg.ClientID != "" {
		form.Set("client_id", p.cfg.ClientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return &AuthenticationError{Reason: "failed to build token request", Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return &AuthenticationError{Reason: "token request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &AuthenticationError{Reason: fmt.Sprintf("token endpoint returned status %d", resp.StatusCode)}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return &AuthenticationError{Reason: "failed to decode token response", Err: err}
	}
	if tok.AccessToken == "" {
		return &AuthenticationError{Reason: "token response carried no access_token"}
	}

	p.token = tok.AccessToken
	if tok.ExpiresIn > 0 {
		// Refresh a minute early so in-flight batches never carry a token
		// that expires mid-request.
		p.expires = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	} else {
		p.expires = time.Now().Add(time.Hour)
	}
	return nil
}
