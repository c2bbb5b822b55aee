package model

// Post represents a subset of X tweet fields used by the tool.
// CreatedAt keeps the API's RFC3339 string; ISO-8601 strings order
// lexicographically, which is all thread sorting needs.
type Post struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	AuthorID       string `json:"author_id"`
	AuthorUsername string `json:"author_username,omitempty"`
	ConversationID string `json:"conversation_id"`
	CreatedAt      string `json:"created_at"`
}

// ThreadMetadata is the persistence-ready summary of one resolved thread.
// Built once after resolution succeeds and never mutated afterward.
type ThreadMetadata struct {
	TweetID        string `json:"tweet_id"`
	ConversationID string `json:"conversation_id"`
	AuthorID       string `json:"author_id"`
	AuthorUsername string `json:"author_username"`
	TweetCount     int    `json:"tweet_count"`
	FirstTweetTime string `json:"first_tweet_time"`
	LastTweetTime  string `json:"last_tweet_time"`
	URL            string `json:"url"`
	Tweets         []Post `json:"tweets"`
}

// Credentials is the OAuth2 credential state for one account. It is the
// only mutable entity that must be written back to config after a refresh.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
}
