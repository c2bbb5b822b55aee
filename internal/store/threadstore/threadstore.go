package threadstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"threadsmith/internal/model"
	"threadsmith/internal/util"
)

// ErrNoThread is returned when a requested thread is not stored.
var ErrNoThread = errors.New("thread not found")

// DB is the durable thread store. One row per thread keyed
// (author_username, tweet_id), a companion markdown rendering, and the
// processed-ID set that makes sync idempotent across runs.
type DB struct {
	sql *sql.DB
	// threadsDir, when set, receives a <author>_<tweet_id>.md file per save.
	threadsDir string
}

func Open(path, threadsDir string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		return nil, err
	}
	db := &DB{sql: d, threadsDir: threadsDir}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	if threadsDir != "" {
		if err := os.MkdirAll(threadsDir, 0o755); err != nil {
			_ = d.Close()
			return nil, err
		}
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS threads (
	  author_username TEXT NOT NULL,
	  tweet_id TEXT NOT NULL,
	  conversation_id TEXT NOT NULL,
	  author_id TEXT NOT NULL,
	  tweet_count INTEGER NOT NULL,
	  first_tweet_time TEXT,
	  last_tweet_time TEXT,
	  url TEXT,
	  payload TEXT NOT NULL,
	  markdown TEXT,
	  saved_at INTEGER NOT NULL,
	  PRIMARY KEY (author_username, tweet_id)
	);
	CREATE INDEX IF NOT EXISTS idx_threads_saved ON threads(saved_at);
	CREATE TABLE IF NOT EXISTS processed (
	  tweet_id TEXT PRIMARY KEY,
	  processed_at INTEGER NOT NULL
	);
	`)
	return err
}

// IsProcessed reports whether tweetID was already synced.
func (d *DB) IsProcessed(ctx context.Context, tweetID string) (bool, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT 1 FROM processed WHERE tweet_id=?`, tweetID)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkProcessed records tweetID in the durable processed set.
func (d *DB) MarkProcessed(ctx context.Context, tweetID string) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO processed(tweet_id, processed_at) VALUES(?,?) ON CONFLICT(tweet_id) DO NOTHING`,
		tweetID, time.Now().Unix())
	return err
}

// SaveThread upserts one thread record plus its markdown rendering and, when
// a threads dir is configured, exports the markdown as a companion file.
// Returns the location of the saved record.
func (d *DB) SaveThread(ctx context.Context, meta model.ThreadMetadata, markdown string) (string, error) {
	if meta.TweetID == "" {
		return "", errors.New("no tweet id in metadata")
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	_, err = d.sql.ExecContext(ctx, `
	INSERT INTO threads(author_username, tweet_id, conversation_id, author_id, tweet_count,
	  first_tweet_time, last_tweet_time, url, payload, markdown, saved_at)
	VALUES(?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT(author_username, tweet_id) DO UPDATE SET
	  conversation_id=excluded.conversation_id, author_id=excluded.author_id,
	  tweet_count=excluded.tweet_count, first_tweet_time=excluded.first_tweet_time,
	  last_tweet_time=excluded.last_tweet_time, url=excluded.url,
	  payload=excluded.payload, markdown=excluded.markdown, saved_at=excluded.saved_at`,
		meta.AuthorUsername, meta.TweetID, meta.ConversationID, meta.AuthorID, meta.TweetCount,
		meta.FirstTweetTime, meta.LastTweetTime, meta.URL, string(payload), markdown, time.Now().Unix())
	if err != nil {
		return "", err
	}
	loc := fmt.Sprintf("threads/%s_%s", meta.AuthorUsername, meta.TweetID)
	if d.threadsDir != "" && markdown != "" {
		name := fmt.Sprintf("%s_%s.md", util.Slugify(meta.AuthorUsername), meta.TweetID)
		path := filepath.Join(d.threadsDir, name)
		if err := os.WriteFile(path, []byte(markdown), 0o644); err != nil {
			return "", err
		}
		loc = path
	}
	return loc, nil
}

// LoadThread returns the stored metadata and markdown for tweetID.
func (d *DB) LoadThread(ctx context.Context, tweetID string) (model.ThreadMetadata, string, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT payload, COALESCE(markdown,'') FROM threads WHERE tweet_id=?`, tweetID)
	var payload, markdown string
	if err := row.Scan(&payload, &markdown); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ThreadMetadata{}, "", ErrNoThread
		}
		return model.ThreadMetadata{}, "", err
	}
	var meta model.ThreadMetadata
	if err := json.Unmarshal([]byte(payload), &meta); err != nil {
		return model.ThreadMetadata{}, "", err
	}
	return meta, markdown, nil
}

// ThreadInfo is one row of the thread listing.
type ThreadInfo struct {
	TweetID        string
	AuthorUsername string
	TweetCount     int
	URL            string
	SavedAt        time.Time
}

// ListThreads returns saved threads, most recent first.
func (d *DB) ListThreads(ctx context.Context) ([]ThreadInfo, error) {
	rows, err := d.sql.QueryContext(ctx,
		`SELECT tweet_id, author_username, tweet_count, COALESCE(url,''), saved_at FROM threads ORDER BY saved_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ThreadInfo
	for rows.Next() {
		var t ThreadInfo
		var savedAt int64
		if err := rows.Scan(&t.TweetID, &t.AuthorUsername, &t.TweetCount, &t.URL, &savedAt); err != nil {
			return nil, err
		}
		t.SavedAt = time.Unix(savedAt, 0).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// Stats summarizes store contents.
type Stats struct {
	Threads   int
	Processed int
}

func (d *DB) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	if err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM threads`).Scan(&s.Threads); err != nil {
		return s, err
	}
	if err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed`).Scan(&s.Processed); err != nil {
		return s, err
	}
	return s, nil
}
