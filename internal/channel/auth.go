package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WAFTokenHeader carries the optional bot-challenge token to the backend.
const WAFTokenHeader = "x-aws-waf-token"

// Authorizer signs private channel subscriptions through the backend.
type Authorizer struct {
	BackendURL string
	Tenant     string
	Token      string
	WAFToken   string
	HTTPClient *http.Client
}

type authResponse struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

// endpoint returns the auth URL for one provider application.
func (a *Authorizer) endpoint(appID string) string {
	q := url.Values{}
	q.Set("tenant", a.Tenant)
	q.Set("token", a.Token)
	q.Set("app_id", appID)
	return strings.TrimRight(a.BackendURL, "/") + "/pusher/auth?" + q.Encode()
}

// Authorize returns the signature for subscribing socketID to channelName.
func (a *Authorizer) Authorize(ctx context.Context, appID, socketID, channelName string) (string, error) {
	form := url.Values{}
	form.Set("socket_id", socketID)
	form.Set("channel_name", channelName)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(appID), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("channel: build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if a.WAFToken != "" {
		req.Header.Set(WAFTokenHeader, a.WAFToken)
	}

	client := a.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: auth request: %w", ErrChannelSubscription, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: auth status %d: %s", ErrChannelSubscription, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out authResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("%w: decode auth response: %w", ErrChannelSubscription, err)
	}
	if out.Auth == "" {
		return "", fmt.Errorf("%w: auth response missing signature", ErrChannelSubscription)
	}
	return out.Auth, nil
}
