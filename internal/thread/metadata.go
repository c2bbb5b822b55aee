package thread

import (
	"fmt"

	"threadsmith/internal/model"
)

// BuildMetadata derives the persistence-ready summary for a resolved thread.
// Pure function: author and conversation come from the first post, times from
// the first and last posts of the already-sorted slice.
func BuildMetadata(posts []model.Post, tweetID string) model.ThreadMetadata {
	if len(posts) == 0 {
		return model.ThreadMetadata{}
	}
	first := posts[0]
	last := posts[len(posts)-1]

	username := first.AuthorUsername
	if username == "" {
		username = "unknown"
	}
	conversationID := first.ConversationID
	if conversationID == "" {
		conversationID = tweetID
	}
	authorID := first.AuthorID
	if authorID == "" {
		authorID = "unknown"
	}

	return model.ThreadMetadata{
		TweetID:        tweetID,
		ConversationID: conversationID,
		AuthorID:       authorID,
		AuthorUsername: username,
		TweetCount:     len(posts),
		FirstTweetTime: first.CreatedAt,
		LastTweetTime:  last.CreatedAt,
		URL:            fmt.Sprintf("https://x.com/%s/status/%s", username, tweetID),
		Tweets:         posts,
	}
}
