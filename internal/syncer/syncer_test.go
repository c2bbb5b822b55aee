package syncer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"threadsmith/internal/model"
)

type fakeAPI struct {
	bookmarks []model.Post
	fetchErr  error
}

func (f *fakeAPI) FetchBookmarks(ctx context.Context, max int) ([]model.Post, error) {
	return f.bookmarks, nil
}

func (f *fakeAPI) FetchTweet(ctx context.Context, id string) (model.Post, error) {
	if f.fetchErr != nil {
		return model.Post{}, f.fetchErr
	}
	return model.Post{ID: id, Text: "t", AuthorID: "42", AuthorUsername: "jane", ConversationID: id, CreatedAt: "2024-01-01T00:00:00Z"}, nil
}

type fakeResolver struct {
	threads map[string][]model.Post
	err     error
}

func (f *fakeResolver) Resolve(ctx context.Context, tweetID, conversationID, authorID string) ([]model.Post, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.threads[tweetID], nil
}

type fakeStore struct {
	processed map[string]bool
	saved     map[string]model.ThreadMetadata
	markdowns map[string]string
	saveErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		processed: make(map[string]bool),
		saved:     make(map[string]model.ThreadMetadata),
		markdowns: make(map[string]string),
	}
}

func (f *fakeStore) IsProcessed(ctx context.Context, id string) (bool, error) {
	return f.processed[id], nil
}

func (f *fakeStore) MarkProcessed(ctx context.Context, id string) error {
	f.processed[id] = true
	return nil
}

func (f *fakeStore) SaveThread(ctx context.Context, meta model.ThreadMetadata, markdown string) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saved[meta.TweetID] = meta
	f.markdowns[meta.TweetID] = markdown
	return "loc/" + meta.TweetID, nil
}

func bookmark(id string) model.Post {
	return model.Post{ID: id, Text: "bookmarked", AuthorID: "42", AuthorUsername: "jane", ConversationID: id, CreatedAt: "2024-01-01T00:00:00Z"}
}

func TestRunSavesAndMarksNewBookmarks(t *testing.T) {
	api := &fakeAPI{bookmarks: []model.Post{bookmark("1"), bookmark("2")}}
	res := &fakeResolver{threads: map[string][]model.Post{
		"1": {{ID: "1", AuthorID: "42", ConversationID: "1", Text: "a", CreatedAt: "2024-01-01T00:00:00Z"}},
		"2": {{ID: "2", AuthorID: "42", ConversationID: "2", Text: "b", CreatedAt: "2024-01-01T00:00:00Z"}},
	}}
	st := newFakeStore()
	saved, err := New(api, res, st, nil, 50).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if saved != 2 {
		t.Fatalf("saved = %d", saved)
	}
	for _, id := range []string{"1", "2"} {
		if !st.processed[id] {
			t.Fatalf("id %s not marked processed", id)
		}
		if _, ok := st.saved[id]; !ok {
			t.Fatalf("id %s not saved", id)
		}
	}
}

func TestRunSkipsProcessedBookmarks(t *testing.T) {
	api := &fakeAPI{bookmarks: []model.Post{bookmark("1")}}
	res := &fakeResolver{threads: map[string][]model.Post{
		"1": {{ID: "1", AuthorID: "42", ConversationID: "1", CreatedAt: "2024-01-01T00:00:00Z"}},
	}}
	st := newFakeStore()
	st.processed["1"] = true
	saved, err := New(api, res, st, nil, 50).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if saved != 0 {
		t.Fatalf("saved = %d, want 0", saved)
	}
	if len(st.saved) != 0 {
		t.Fatal("processed bookmark must not be re-saved")
	}
}

func TestRunUnresolvedBookmarkNotMarked(t *testing.T) {
	api := &fakeAPI{bookmarks: []model.Post{bookmark("1")}}
	res := &fakeResolver{err: errors.New("both tiers failed")}
	st := newFakeStore()
	saved, err := New(api, res, st, nil, 50).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if saved != 0 {
		t.Fatalf("saved = %d", saved)
	}
	if st.processed["1"] {
		t.Fatal("unresolved bookmark must stay unprocessed for a future run")
	}
}

func TestProcessPostSaveFailureNotMarked(t *testing.T) {
	res := &fakeResolver{threads: map[string][]model.Post{
		"1": {{ID: "1", AuthorID: "42", ConversationID: "1", CreatedAt: "2024-01-01T00:00:00Z"}},
	}}
	st := newFakeStore()
	st.saveErr = errors.New("disk full")
	_, err := New(&fakeAPI{}, res, st, nil, 50).ProcessPost(context.Background(), bookmark("1"))
	if err == nil {
		t.Fatal("expected save error")
	}
	if st.processed["1"] {
		t.Fatal("failed save must not mark the id processed")
	}
}

func TestProcessPostBackfillsUsernames(t *testing.T) {
	// Search results carry no usernames; the bookmark does.
	res := &fakeResolver{threads: map[string][]model.Post{
		"1": {
			{ID: "1", AuthorID: "42", ConversationID: "1", Text: "a", CreatedAt: "2024-01-01T00:00:00Z"},
			{ID: "2", AuthorID: "42", ConversationID: "1", Text: "b", CreatedAt: "2024-01-02T00:00:00Z"},
		},
	}}
	st := newFakeStore()
	ok, err := New(&fakeAPI{}, res, st, nil, 50).ProcessPost(context.Background(), bookmark("1"))
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	meta := st.saved["1"]
	if meta.AuthorUsername != "jane" {
		t.Fatalf("username = %q", meta.AuthorUsername)
	}
	if meta.URL != "https://x.com/jane/status/1" {
		t.Fatalf("url = %q", meta.URL)
	}
	if !strings.Contains(st.markdowns["1"], "# Thread by @jane") {
		t.Fatalf("markdown = %q", st.markdowns["1"])
	}
}

type fakeSummarizer struct {
	healthy bool
	note    string
	err     error
}

func (f *fakeSummarizer) Healthy(ctx context.Context) bool { return f.healthy }
func (f *fakeSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	return f.note, f.err
}

func TestProcessPostUsesSummaryWhenAvailable(t *testing.T) {
	res := &fakeResolver{threads: map[string][]model.Post{
		"1": {{ID: "1", AuthorID: "42", ConversationID: "1", Text: "a", CreatedAt: "2024-01-01T00:00:00Z"}},
	}}
	st := newFakeStore()
	sum := &fakeSummarizer{healthy: true, note: "# Summary"}
	if _, err := New(&fakeAPI{}, res, st, sum, 50).ProcessPost(context.Background(), bookmark("1")); err != nil {
		t.Fatal(err)
	}
	if st.markdowns["1"] != "# Summary" {
		t.Fatalf("markdown = %q", st.markdowns["1"])
	}
}

func TestProcessPostSummaryFailureFallsBackToCleanRender(t *testing.T) {
	res := &fakeResolver{threads: map[string][]model.Post{
		"1": {{ID: "1", AuthorID: "42", ConversationID: "1", Text: "hello", CreatedAt: "2024-01-01T00:00:00Z"}},
	}}
	st := newFakeStore()
	sum := &fakeSummarizer{healthy: true, err: errors.New("model crashed")}
	if _, err := New(&fakeAPI{}, res, st, sum, 50).ProcessPost(context.Background(), bookmark("1")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(st.markdowns["1"], "hello") {
		t.Fatalf("expected clean render fallback, got %q", st.markdowns["1"])
	}
}

func TestProcessURL(t *testing.T) {
	res := &fakeResolver{threads: map[string][]model.Post{
		"123": {{ID: "123", AuthorID: "42", ConversationID: "123", Text: "x", CreatedAt: "2024-01-01T00:00:00Z"}},
	}}
	st := newFakeStore()
	r := New(&fakeAPI{}, res, st, nil, 50)
	if err := r.ProcessURL(context.Background(), "https://x.com/jane/status/123"); err != nil {
		t.Fatal(err)
	}
	if !st.processed["123"] {
		t.Fatal("url thread not marked processed")
	}

	if err := r.ProcessURL(context.Background(), "garbage"); err == nil {
		t.Fatal("expected error for unparseable input")
	}
}
