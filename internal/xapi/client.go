package xapi

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

	"threadsmith/internal/metrics"
	"threadsmith/internal/model"
)

// API defines the X API operations the tool uses.
type API interface {
	Me(ctx context.Context) (string, error)
	FetchBookmarks(ctx context.Context, max int) ([]model.Post, error)
	FetchTweet(ctx context.Context, id string) (model.Post, error)
	SearchConversation(ctx context.Context, conversationID, authorID string) ([]model.Post, error)
}

// Client is an OAuth2 user-context client for X API v2. Every call goes
// through the credential guard and the rate governor; 429s are retried in a
// bounded loop, a 401 gets exactly one refresh-and-retry.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	guard           *Guard
	governor        *Governor
	maxQuotaRetries int

	userID string // cached after the first Me call
}

func NewClient(baseURL string, guard *Guard, governor *Governor, maxQuotaRetries int) *Client {
	if maxQuotaRetries <= 0 {
		maxQuotaRetries = 3
	}
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		httpClient:      &http.Client{Timeout: 15 * time.Second},
		guard:           guard,
		governor:        governor,
		maxQuotaRetries: maxQuotaRetries,
	}
}

// get runs one governed, guarded GET against rawURL. key is the quota clock
// the endpoint belongs to.
func (c *Client) get(ctx context.Context, key, rawURL string) (*http.Response, error) {
	refreshed := false
	for attempt := 0; ; attempt++ {
		if !c.guard.EnsureValid(ctx) {
			return nil, ErrAuthRejected
		}
		if err := c.governor.Acquire(ctx, key); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.guard.AccessToken())
		req.Header.Set("Accept", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.IncAPICall(key, "error")
			return nil, err
		}
		c.governor.Observe(key, resp.Header)
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			metrics.IncAPICall(key, "429")
			_ = resp.Body.Close()
			if attempt >= c.maxQuotaRetries {
				return nil, fmt.Errorf("%w: %s", ErrQuotaExhausted, key)
			}
			c.governor.SeedDefault(key)
			continue
		case resp.StatusCode == http.StatusUnauthorized:
			metrics.IncAPICall(key, "401")
			_ = resp.Body.Close()
			if refreshed || !c.guard.Refresh(ctx) {
				return nil, ErrAuthRejected
			}
			refreshed = true
			continue
		case resp.StatusCode == http.StatusNotFound:
			_ = resp.Body.Close()
			return nil, ErrNotFound
		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			_ = resp.Body.Close()
			metrics.IncAPICall(key, "error")
			return nil, fmt.Errorf("x api status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		metrics.IncAPICall(key, "ok")
		return resp, nil
	}
}

// Me returns the authenticated user's ID, cached after the first call.
func (c *Client) Me(ctx context.Context) (string, error) {
	if c.userID != "" {
		return c.userID, nil
	}
	resp, err := c.get(ctx, "users_me", c.baseURL+"/users/me")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var raw struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", err
	}
	if raw.Data.ID == "" {
		return "", errors.New("empty user id in response")
	}
	c.userID = raw.Data.ID
	return c.userID, nil
}

type rawPost struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	AuthorID       string `json:"author_id"`
	ConversationID string `json:"conversation_id"`
	CreatedAt      string `json:"created_at"`
}

type rawIncludes struct {
	Users []struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"users"`
}

func (in rawIncludes) usernames() map[string]string {
	m := make(map[string]string, len(in.Users))
	for _, u := range in.Users {
		m[u.ID] = u.Username
	}
	return m
}

func toPost(r rawPost, usernames map[string]string) model.Post {
	return model.Post{
		ID:             r.ID,
		Text:           r.Text,
		AuthorID:       r.AuthorID,
		AuthorUsername: usernames[r.AuthorID],
		ConversationID: r.ConversationID,
		CreatedAt:      r.CreatedAt,
	}
}

// FetchBookmarks returns the user's bookmarked tweets with author usernames
// attached from the expansion payload.
func (c *Client) FetchBookmarks(ctx context.Context, max int) ([]model.Post, error) {
	userID, err := c.Me(ctx)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/users/%s/bookmarks?max_results=%d&tweet.fields=conversation_id,created_at,author_id,text&expansions=author_id&user.fields=username",
		c.baseURL, url.PathEscape(userID), clamp(max, 1, 100))
	resp, err := c.get(ctx, "bookmarks", u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var raw struct {
		Data     []rawPost   `json:"data"`
		Includes rawIncludes `json:"includes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	names := raw.Includes.usernames()
	out := make([]model.Post, 0, len(raw.Data))
	for _, d := range raw.Data {
		out = append(out, toPost(d, names))
	}
	return out, nil
}

// FetchTweet fetches one tweet by ID.
func (c *Client) FetchTweet(ctx context.Context, id string) (model.Post, error) {
	var out model.Post
	if id == "" {
		return out, errors.New("empty tweet id")
	}
	u := fmt.Sprintf("%s/tweets/%s?tweet.fields=created_at,text,author_id,conversation_id&expansions=author_id&user.fields=username",
		c.baseURL, url.PathEscape(id))
	resp, err := c.get(ctx, "tweets", u)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	var raw struct {
		Data     *rawPost    `json:"data"`
		Includes rawIncludes `json:"includes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return out, err
	}
	if raw.Data == nil {
		return out, ErrNotFound
	}
	return toPost(*raw.Data, raw.Includes.usernames()), nil
}

// SearchConversation returns all non-retweet posts by authorID in the given
// conversation, newest first as the API delivers them. Recent search only
// covers roughly the last 7 days; older conversations come back empty, which
// the resolver treats as the trigger for its single-tweet fallback.
func (c *Client) SearchConversation(ctx context.Context, conversationID, authorID string) ([]model.Post, error) {
	q := fmt.Sprintf("conversation_id:%s from:%s -is:retweet", conversationID, authorID)
	u := fmt.Sprintf("%s/tweets/search/recent?query=%s&max_results=100&tweet.fields=created_at,text,author_id,conversation_id&sort_order=recency",
		c.baseURL, url.QueryEscape(q))
	resp, err := c.get(ctx, "search", u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var raw struct {
		Data []rawPost `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}
	out := make([]model.Post, 0, len(raw.Data))
	for _, d := range raw.Data {
		out = append(out, toPost(d, nil))
	}
	return out, nil
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
