package xapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"threadsmith/internal/logging"
	"threadsmith/internal/metrics"
	"threadsmith/internal/model"
)

// Guard wraps credential state with token-validity checking and transparent
// refresh. It is a guard against token expiry, not a hard authentication
// precondition: a true return is not proof of validity. The real call's own
// 401 stays authoritative.
type Guard struct {
	creds      model.Credentials
	baseURL    string
	httpClient *http.Client

	// justRefreshed suppresses exactly one validity probe after a refresh;
	// the new token may not be live system-wide yet when probed.
	justRefreshed bool
	changed       bool
}

func NewGuard(creds model.Credentials, baseURL string) *Guard {
	return &Guard{
		creds:      creds,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// AccessToken returns the current bearer token.
func (g *Guard) AccessToken() string { return g.creds.AccessToken }

// Credentials returns the current credential state for persistence.
func (g *Guard) Credentials() model.Credentials { return g.creds }

// Changed reports whether a refresh rotated the stored tokens since the
// guard was created. The caller must persist credentials when it is true.
func (g *Guard) Changed() bool { return g.changed }

// EnsureValid probes the identity endpoint and refreshes the access token if
// the probe reports unauthorized. Returns false only when a refresh was
// attempted and explicitly rejected. With no refresh token configured the
// token is assumed valid.
func (g *Guard) EnsureValid(ctx context.Context) bool {
	if g.creds.RefreshToken == "" {
		return true
	}
	if g.justRefreshed {
		g.justRefreshed = false
		return true
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/users/me", nil)
	if err != nil {
		return true
	}
	req.Header.Set("Authorization", "Bearer "+g.creds.AccessToken)
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return true
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		logging.Info("token_expired_refreshing", nil)
		return g.Refresh(ctx)
	}
	return true
}

// Refresh exchanges the stored refresh token for a new access token using
// HTTP Basic client authentication. Rotated refresh tokens are kept.
func (g *Guard) Refresh(ctx context.Context) bool {
	if g.creds.RefreshToken == "" {
		logging.Error("no_refresh_token", map[string]any{"hint": "run reauth"})
		return false
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {g.creds.RefreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return false
	}
	req.SetBasicAuth(g.creds.ClientID, g.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := g.httpClient.Do(req)
	if err != nil {
		logging.Error("token_refresh_error", map[string]any{"error": err.Error()})
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logging.Error("token_refresh_rejected", map[string]any{"status": resp.StatusCode})
		return false
	}
	var tok struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		logging.Error("token_refresh_decode_error", map[string]any{"error": err.Error()})
		return false
	}
	g.creds.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		g.creds.RefreshToken = tok.RefreshToken
	}
	g.justRefreshed = true
	g.changed = true
	metrics.TokenRefreshes.Inc()
	logging.Info("token_refreshed", nil)
	return true
}
