package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/zulandar/autodialer/internal/channel"
)

// Credential is a time-bounded device access token.
type Credential struct {
	Identity string
	Token    string
	// ExpiresAt is read from the token's exp claim. Zero when the token is
	// opaque or carries no expiry.
	ExpiresAt time.Time
}

// Expired reports whether the credential has a known expiry before now.
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// TokenSource fetches device access tokens from the backend.
type TokenSource struct {
	BackendURL string
	WAFToken   string
	HTTPClient *http.Client
}

type tokenRequest struct {
	Identity   string `json:"identity"`
	CampaignID string `json:"campaignId,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Fetch requests a token for identity within campaignID.
func (s *TokenSource) Fetch(ctx context.Context, identity, campaignID string) (*Credential, error) {
	body, err := json.Marshal(tokenRequest{Identity: identity, CampaignID: campaignID})
	if err != nil {
		return nil, &CredentialError{Err: err}
	}
	url := strings.TrimRight(s.BackendURL, "/") + "/api/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &CredentialError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.WAFToken != "" {
		req.Header.Set(channel.WAFTokenHeader, s.WAFToken)
	}

	client := s.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &CredentialError{Err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &CredentialError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out tokenResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &CredentialError{Status: resp.StatusCode, Body: string(raw), Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Token == "" {
		return nil, &CredentialError{Status: resp.StatusCode, Body: string(raw), Err: fmt.Errorf("no token received from backend")}
	}
	return &Credential{Identity: identity, Token: out.Token, ExpiresAt: tokenExpiry(out.Token)}, nil
}

// tokenExpiry reads exp without verifying the signature.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// NewIdentity returns a fresh per-session device identity.
func NewIdentity(now time.Time) string {
	return fmt.Sprintf("user_%d_%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
}
