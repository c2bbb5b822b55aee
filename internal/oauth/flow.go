package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	// Scopes the tool needs: reading tweets, users, bookmarks, plus
	// offline.access so a refresh token is issued.
	Scopes = "tweet.read users.read bookmark.read offline.access"

	DefaultAuthorizeURL = "https://twitter.com/i/oauth2/authorize"
	DefaultTokenURL     = "https://api.twitter.com/2/oauth2/token"
)

// Flow runs the OAuth2 authorization-code grant with PKCE and HTTP Basic
// client authentication on the token exchange.
type Flow struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthorizeURL string
	TokenURL     string

	httpClient *http.Client
}

func NewFlow(clientID, clientSecret, redirectURI string) *Flow {
	return &Flow{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		AuthorizeURL: DefaultAuthorizeURL,
		TokenURL:     DefaultTokenURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Challenge holds the per-attempt PKCE material and CSRF state.
type Challenge struct {
	Verifier string
	State    string
}

// NewChallenge generates a fresh PKCE verifier and state nonce.
func NewChallenge() (Challenge, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return Challenge{}, err
	}
	return Challenge{
		Verifier: base64.RawURLEncoding.EncodeToString(raw),
		State:    uuid.NewString(),
	}, nil
}

// AuthorizeURLFor builds the browser URL for one challenge (S256 method).
func (f *Flow) AuthorizeURLFor(ch Challenge) string {
	sum := sha256.Sum256([]byte(ch.Verifier))
	q := url.Values{
		"response_type":         {"code"},
		"client_id":             {f.ClientID},
		"redirect_uri":          {f.RedirectURI},
		"scope":                 {Scopes},
		"state":                 {ch.State},
		"code_challenge":        {base64.RawURLEncoding.EncodeToString(sum[:])},
		"code_challenge_method": {"S256"},
	}
	return f.AuthorizeURL + "?" + q.Encode()
}

// WaitForCallback serves the redirect URI on addr until one authorization
// code arrives (with matching state) or ctx is cancelled.
func (f *Flow) WaitForCallback(ctx context.Context, addr string, ch Challenge) (string, error) {
	u, err := url.Parse(f.RedirectURI)
	if err != nil {
		return "", err
	}
	path := u.Path
	if path == "" {
		path = "/callback"
	}

	type result struct {
		code string
		err  error
	}
	done := make(chan result, 1)
	// Only the first outcome counts; a duplicate callback (browser retry,
	// double click) must not block its handler on the send.
	deliver := func(res result) {
		select {
		case done <- res:
		default:
		}
	}

	r := chi.NewRouter()
	r.Get(path, func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		if q.Get("state") != ch.State {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			deliver(result{err: errors.New("authorization state mismatch")})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			deliver(result{err: errors.New("no authorization code in callback")})
			return
		}
		fmt.Fprintln(w, "Authorized. You can close this tab.")
		deliver(result{code: code})
	})

	srv := &http.Server{Addr: addr, Handler: r}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	select {
	case res := <-done:
		return res.code, res.err
	case err := <-errCh:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ParseCallbackInput accepts either a pasted redirect URL or a bare
// authorization code, for the manual copy-paste path.
func ParseCallbackInput(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty authorization input")
	}
	if strings.HasPrefix(raw, "http") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", err
		}
		code := u.Query().Get("code")
		if code == "" {
			return "", errors.New("no authorization code in redirect URL")
		}
		return code, nil
	}
	return raw, nil
}

// Token is the response of a successful exchange.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Exchange trades the authorization code (plus the PKCE verifier) for tokens.
func (f *Flow) Exchange(ctx context.Context, code, verifier string) (Token, error) {
	var tok Token
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {f.RedirectURI},
		"code_verifier": {verifier},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tok, err
	}
	req.SetBasicAuth(f.ClientID, f.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return tok, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return tok, fmt.Errorf("token exchange failed: status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return tok, err
	}
	if tok.AccessToken == "" {
		return tok, errors.New("token exchange returned no access token")
	}
	return tok, nil
}
