package xapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"threadsmith/internal/model"
)

func TestEnsureValidWithoutRefreshToken(t *testing.T) {
	probes := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes++
	}))
	defer ts.Close()

	g := NewGuard(model.Credentials{AccessToken: "tok"}, ts.URL)
	if !g.EnsureValid(context.Background()) {
		t.Fatal("no refresh token configured: must assume valid")
	}
	if probes != 0 {
		t.Fatal("must not probe without a refresh token")
	}
}

func TestEnsureValidRefreshesOn401(t *testing.T) {
	var probeAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me":
			probeAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusUnauthorized)
		case "/oauth2/token":
			user, pass, ok := r.BasicAuth()
			if !ok || user != "cid" || pass != "csec" {
				t.Errorf("bad client auth: %q %q", user, pass)
			}
			if err := r.ParseForm(); err != nil {
				t.Error(err)
			}
			if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "old-refresh" {
				t.Errorf("bad form: %v", r.PostForm)
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"access_token":  "new-access",
				"refresh_token": "new-refresh",
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	g := NewGuard(model.Credentials{
		AccessToken:  "expired",
		RefreshToken: "old-refresh",
		ClientID:     "cid",
		ClientSecret: "csec",
	}, ts.URL)

	if !g.EnsureValid(context.Background()) {
		t.Fatal("refresh should have succeeded")
	}
	if probeAuth != "Bearer expired" {
		t.Fatalf("probe used %q", probeAuth)
	}
	if g.AccessToken() != "new-access" {
		t.Fatalf("access token = %q", g.AccessToken())
	}
	if g.Credentials().RefreshToken != "new-refresh" {
		t.Fatal("rotated refresh token not kept")
	}
	if !g.Changed() {
		t.Fatal("Changed must report the rotation")
	}
}

func TestEnsureValidSkipsProbeRightAfterRefresh(t *testing.T) {
	probes := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me":
			probes++
			w.WriteHeader(http.StatusUnauthorized)
		case "/oauth2/token":
			_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "fresh"})
		}
	}))
	defer ts.Close()

	g := NewGuard(model.Credentials{AccessToken: "x", RefreshToken: "r", ClientID: "c", ClientSecret: "s"}, ts.URL)
	if !g.EnsureValid(context.Background()) {
		t.Fatal("first ensure should refresh and succeed")
	}
	probesAfterRefresh := probes

	// The next check must short-circuit: the new token may not be live yet.
	if !g.EnsureValid(context.Background()) {
		t.Fatal("post-refresh ensure must pass")
	}
	if probes != probesAfterRefresh {
		t.Fatal("probe must be suppressed exactly once after a refresh")
	}

	// And only once: the third check probes again.
	_ = g.EnsureValid(context.Background())
	if probes == probesAfterRefresh {
		t.Fatal("suppression must be one-shot")
	}
}

func TestEnsureValidRefreshRejected(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/users/me":
			w.WriteHeader(http.StatusUnauthorized)
		case "/oauth2/token":
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer ts.Close()

	g := NewGuard(model.Credentials{AccessToken: "x", RefreshToken: "r", ClientID: "c", ClientSecret: "s"}, ts.URL)
	if g.EnsureValid(context.Background()) {
		t.Fatal("explicitly rejected refresh must return false")
	}
	if g.Changed() {
		t.Fatal("failed refresh must not mark credentials changed")
	}
}

func TestEnsureValidNetworkErrorAssumesValid(t *testing.T) {
	g := NewGuard(model.Credentials{AccessToken: "x", RefreshToken: "r"}, "http://127.0.0.1:1")
	if !g.EnsureValid(context.Background()) {
		t.Fatal("probe network error must not fail the guard")
	}
}
