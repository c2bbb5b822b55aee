package thread

import (
	"context"
	"fmt"
	"sort"

	"threadsmith/internal/logging"
	"threadsmith/internal/metrics"
	"threadsmith/internal/model"
)

// Fetcher is the slice of the API client the resolver needs.
type Fetcher interface {
	SearchConversation(ctx context.Context, conversationID, authorID string) ([]model.Post, error)
	FetchTweet(ctx context.Context, id string) (model.Post, error)
}

// Resolver turns a bookmarked tweet ID into the ordered set of same-author
// posts forming its thread. Strategies in strict priority order, each tried
// exactly once per call: conversation search, then single-tweet fetch.
type Resolver struct {
	api Fetcher
}

func NewResolver(api Fetcher) *Resolver {
	return &Resolver{api: api}
}

// Resolve returns the thread for tweetID sorted ascending by created_at.
// Search failure is expected for conversations older than the recent-search
// window and falls through to the single fetch, so every resolvable bookmark
// yields at least its own post. A non-nil error means both tiers failed and
// the caller must not mark the ID processed.
func (r *Resolver) Resolve(ctx context.Context, tweetID, conversationID, authorID string) ([]model.Post, error) {
	posts, err := r.api.SearchConversation(ctx, conversationID, authorID)
	if err != nil {
		logging.Warn("conversation_search_failed", map[string]any{"tweet_id": tweetID, "error": err.Error()})
	}
	if kept := keep(posts, conversationID, authorID); len(kept) > 0 {
		sortByCreatedAt(kept)
		metrics.ThreadsResolved.WithLabelValues("search").Inc()
		return kept, nil
	}

	logging.Warn("thread_search_empty_falling_back", map[string]any{"tweet_id": tweetID})
	p, err := r.api.FetchTweet(ctx, tweetID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", tweetID, err)
	}
	metrics.ThreadsResolved.WithLabelValues("single").Inc()
	return []model.Post{p}, nil
}

// keep retains posts belonging to the requested conversation and author.
// The search query already constrains both, but the invariant is enforced
// here rather than trusted.
func keep(posts []model.Post, conversationID, authorID string) []model.Post {
	out := posts[:0:0]
	for _, p := range posts {
		if p.ConversationID == conversationID && p.AuthorID == authorID {
			out = append(out, p)
		}
	}
	return out
}

func sortByCreatedAt(posts []model.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt < posts[j].CreatedAt
	})
}
