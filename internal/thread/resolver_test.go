package thread

import (
	"context"
	"errors"
	"testing"

	"threadsmith/internal/model"
)

type fakeFetcher struct {
	searchPosts []model.Post
	searchErr   error
	single      model.Post
	singleErr   error

	searchCalls int
	fetchCalls  int
}

func (f *fakeFetcher) SearchConversation(ctx context.Context, conversationID, authorID string) ([]model.Post, error) {
	f.searchCalls++
	return f.searchPosts, f.searchErr
}

func (f *fakeFetcher) FetchTweet(ctx context.Context, id string) (model.Post, error) {
	f.fetchCalls++
	return f.single, f.singleErr
}

func TestResolveSortsSearchResults(t *testing.T) {
	f := &fakeFetcher{searchPosts: []model.Post{
		{ID: "111", ConversationID: "111", AuthorID: "42", CreatedAt: "2024-01-02T00:00:00Z"},
		{ID: "112", ConversationID: "111", AuthorID: "42", CreatedAt: "2024-01-01T00:00:00Z"},
	}}
	r := NewResolver(f)
	posts, err := r.Resolve(context.Background(), "111", "111", "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 2 || posts[0].ID != "112" || posts[1].ID != "111" {
		t.Fatalf("expected order [112 111], got %v", ids(posts))
	}
	if posts[0].CreatedAt > posts[1].CreatedAt {
		t.Fatal("output not sorted by created_at")
	}
	if f.fetchCalls != 0 {
		t.Fatal("single fetch must not run when search succeeds")
	}
}

func TestResolveDropsForeignPosts(t *testing.T) {
	f := &fakeFetcher{searchPosts: []model.Post{
		{ID: "1", ConversationID: "c", AuthorID: "42", CreatedAt: "2024-01-01T00:00:00Z"},
		{ID: "2", ConversationID: "c", AuthorID: "99", CreatedAt: "2024-01-02T00:00:00Z"},
		{ID: "3", ConversationID: "other", AuthorID: "42", CreatedAt: "2024-01-03T00:00:00Z"},
	}}
	posts, err := NewResolver(f).Resolve(context.Background(), "1", "c", "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != "1" {
		t.Fatalf("expected only post 1 retained, got %v", ids(posts))
	}
	for _, p := range posts {
		if p.ConversationID != "c" || p.AuthorID != "42" {
			t.Fatalf("invariant violated: %+v", p)
		}
	}
}

func TestResolveFallsBackToSingleFetch(t *testing.T) {
	f := &fakeFetcher{single: model.Post{ID: "111", ConversationID: "111", AuthorID: "42"}}
	posts, err := NewResolver(f).Resolve(context.Background(), "111", "111", "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != "111" {
		t.Fatalf("expected single-post thread [111], got %v", ids(posts))
	}
	if f.searchCalls != 1 || f.fetchCalls != 1 {
		t.Fatalf("expected one call per tier, got search=%d fetch=%d", f.searchCalls, f.fetchCalls)
	}
}

func TestResolveSearchErrorStillFallsBack(t *testing.T) {
	f := &fakeFetcher{
		searchErr: errors.New("network down"),
		single:    model.Post{ID: "7", ConversationID: "7", AuthorID: "42"},
	}
	posts, err := NewResolver(f).Resolve(context.Background(), "7", "7", "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 || posts[0].ID != "7" {
		t.Fatalf("expected fallback post, got %v", ids(posts))
	}
}

func TestResolveBothTiersFail(t *testing.T) {
	f := &fakeFetcher{
		searchErr: errors.New("search down"),
		singleErr: errors.New("fetch down"),
	}
	posts, err := NewResolver(f).Resolve(context.Background(), "1", "1", "42")
	if err == nil {
		t.Fatal("expected error when both tiers fail")
	}
	if len(posts) != 0 {
		t.Fatalf("expected empty result, got %v", ids(posts))
	}
	if f.searchCalls != 1 || f.fetchCalls != 1 {
		t.Fatal("each tier must be tried exactly once")
	}
}

func TestResolveIdempotent(t *testing.T) {
	f := &fakeFetcher{searchPosts: []model.Post{
		{ID: "b", ConversationID: "c", AuthorID: "a", CreatedAt: "2024-02-01T00:00:00Z"},
		{ID: "a", ConversationID: "c", AuthorID: "a", CreatedAt: "2024-01-01T00:00:00Z"},
	}}
	r := NewResolver(f)
	first, err := r.Resolve(context.Background(), "a", "c", "a")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Resolve(context.Background(), "a", "c", "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Fatal("repeated resolve changed length")
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("repeated resolve changed order at %d", i)
		}
	}
}

func ids(posts []model.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}
