package syncer

import (
	"context"
	"fmt"

	"threadsmith/internal/logging"
	"threadsmith/internal/model"
	"threadsmith/internal/thread"
	"threadsmith/internal/util"
)

// API is the slice of the X client the syncer needs.
type API interface {
	FetchBookmarks(ctx context.Context, max int) ([]model.Post, error)
	FetchTweet(ctx context.Context, id string) (model.Post, error)
}

// Resolver reconstructs a thread from a bookmarked post.
type Resolver interface {
	Resolve(ctx context.Context, tweetID, conversationID, authorID string) ([]model.Post, error)
}

// Store is the persistence surface: the core reads the processed set before
// resolving and hands finished threads over, nothing more.
type Store interface {
	IsProcessed(ctx context.Context, tweetID string) (bool, error)
	MarkProcessed(ctx context.Context, tweetID string) error
	SaveThread(ctx context.Context, meta model.ThreadMetadata, markdown string) (string, error)
}

// Summarizer is the optional local LLM.
type Summarizer interface {
	Healthy(ctx context.Context) bool
	Summarize(ctx context.Context, threadText string) (string, error)
}

// Runner drives one bookmark sync: fetch, skip processed, resolve, persist.
type Runner struct {
	api        API
	resolver   Resolver
	store      Store
	summarizer Summarizer // nil when summarization is disabled
	maxResults int
}

func New(api API, resolver Resolver, store Store, summarizer Summarizer, maxResults int) *Runner {
	if maxResults <= 0 {
		maxResults = 50
	}
	return &Runner{api: api, resolver: resolver, store: store, summarizer: summarizer, maxResults: maxResults}
}

// Run syncs all new bookmarks and returns how many threads were saved.
func (r *Runner) Run(ctx context.Context) (int, error) {
	bookmarks, err := r.api.FetchBookmarks(ctx, r.maxResults)
	if err != nil {
		return 0, fmt.Errorf("fetch bookmarks: %w", err)
	}
	logging.Info("bookmarks_fetched", map[string]any{"count": len(bookmarks)})

	saved := 0
	for _, b := range bookmarks {
		done, err := r.store.IsProcessed(ctx, b.ID)
		if err != nil {
			return saved, err
		}
		if done {
			continue
		}
		ok, err := r.ProcessPost(ctx, b)
		if err != nil {
			if ctx.Err() != nil {
				return saved, err
			}
			// One failed bookmark stays unprocessed and never stops the run.
			logging.Warn("bookmark_skipped", map[string]any{"tweet_id": b.ID, "error": err.Error()})
			continue
		}
		if ok {
			saved++
		}
	}
	logging.Info("sync_complete", map[string]any{"saved": saved})
	return saved, nil
}

// ProcessPost resolves and persists one bookmarked post. The ID is marked
// processed only after the thread was saved; an unresolved post is reported
// as a warning and left for a future run.
func (r *Runner) ProcessPost(ctx context.Context, b model.Post) (bool, error) {
	conversationID := b.ConversationID
	if conversationID == "" {
		conversationID = b.ID
	}

	posts, err := r.resolver.Resolve(ctx, b.ID, conversationID, b.AuthorID)
	if err != nil {
		return false, err
	}
	if len(posts) == 0 {
		return false, fmt.Errorf("thread %s resolved empty", b.ID)
	}
	if len(posts) == 1 && conversationID != b.ID {
		logging.Warn("partial_thread_single_post", map[string]any{"tweet_id": b.ID})
	}

	// Recent search carries no user expansion; backfill usernames from the
	// bookmark so metadata and rendering have them.
	if b.AuthorUsername != "" {
		for i := range posts {
			if posts[i].AuthorUsername == "" && posts[i].AuthorID == b.AuthorID {
				posts[i].AuthorUsername = b.AuthorUsername
			}
		}
	}

	meta := thread.BuildMetadata(posts, b.ID)
	markdown := thread.RenderClean(posts, meta.AuthorUsername)
	if r.summarizer != nil && r.summarizer.Healthy(ctx) {
		if note, err := r.summarizer.Summarize(ctx, thread.RenderText(posts)); err == nil && note != "" {
			markdown = note
		} else if err != nil {
			logging.Warn("summarize_failed_keeping_clean_render", map[string]any{"tweet_id": b.ID, "error": err.Error()})
		}
	}

	loc, err := r.store.SaveThread(ctx, meta, markdown)
	if err != nil {
		return false, fmt.Errorf("save thread %s: %w", b.ID, err)
	}
	if err := r.store.MarkProcessed(ctx, b.ID); err != nil {
		return false, err
	}
	logging.Info("thread_saved", map[string]any{
		"tweet_id": b.ID,
		"posts":    len(posts),
		"location": loc,
		"preview":  util.Truncate(util.NormalizeWhitespace(posts[0].Text), 80),
	})
	return true, nil
}

// ProcessURL resolves and persists a single tweet given a status URL or a
// bare ID.
func (r *Runner) ProcessURL(ctx context.Context, raw string) error {
	id := thread.ExtractTweetID(raw)
	if id == "" {
		return fmt.Errorf("could not extract tweet id from %q", raw)
	}
	done, err := r.store.IsProcessed(ctx, id)
	if err != nil {
		return err
	}
	if done {
		logging.Info("already_processed", map[string]any{"tweet_id": id})
		return nil
	}
	p, err := r.api.FetchTweet(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch tweet %s: %w", id, err)
	}
	if _, err := r.ProcessPost(ctx, p); err != nil {
		return err
	}
	return nil
}
