package client

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

// OAuth2Error carries the error code returned by the token endpoint
// (e.g. "invalid_client").
type OAuth2Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (e *OAuth2Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("oauth2: %s: %s", e.Code, e.Description)
	}
	return "oauth2: " + e.Code
}

// OAuth2TokenRequest obtains an access token via the resource-owner password
// grant with scope "api". The returned token goes into Config.OAuth2Token.
func OAuth2TokenRequest(ctx context.Context, rootURL, username, password, integratorKey string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", integratorKey)
	form.Set("username", username)
	form.Set("password", password)
	form.Set("scope", "api")

	body, err := oauth2Post(ctx, strings.TrimRight(rootURL, "/")+"/oauth2/token", form)
	if err != nil {
		return "", err
	}
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}
	return resp.AccessToken, nil
}

// OAuth2TokenRevoke invalidates a previously issued access token.
func OAuth2TokenRevoke(ctx context.Context, rootURL, token string) error {
	form := url.Values{}
	form.Set("token", token)
	_, err := oauth2Post(ctx, strings.TrimRight(rootURL, "/")+"/oauth2/revoke", form)
	return err
}

func oauth2Post(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpClient := &http.Client{Timeout: 30 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("oauth2 request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read oauth2 response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var oauthErr OAuth2Error
		if err := json.Unmarshal(body, &oauthErr); err == nil && oauthErr.Code != "" {
			return nil, &oauthErr
		}
		return nil, fmt.Errorf("%w: POST %s returned %d: %s",
			ErrUnexpectedStatus, endpoint, resp.StatusCode, truncateBody(body))
	}
	return body, nil
}
