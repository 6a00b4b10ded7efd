// Package api defines the request and response shapes of the HTTP surface.
package api

import (
	"time"

	"github.com/google/uuid"
)

type StartThreadRequest struct {
	UserName string `json:"user_name"`
	ParentID string `json:"parent_id,omitempty"`
}

type StartThreadResponse struct {
	ThreadID uuid.UUID `json:"thread_id"`
}

type MessageRequest struct {
	Content string `json:"content"`
}

type MessageResponse struct {
	Replies       []string `json:"replies"`
	Files         []string `json:"files"`
	AwaitingInput bool     `json:"awaiting_input"`
}

type HistoryParams struct {
	Limit  int `schema:"limit"`
	Offset int `schema:"offset"`
}

type HistoryItem struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type TweetRequest struct {
	Text      string `json:"text"`
	MediaPath string `json:"media_path,omitempty"`
}

type TweetResponse struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	MediaID   string    `json:"media_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"url"`
}

type QueueTweetResponse struct {
	TaskID uuid.UUID `json:"task_id"`
}

type TweetTaskStatus struct {
	TaskID         uuid.UUID  `json:"task_id"`
	Status         string     `json:"status"`
	TweetID        string     `json:"tweet_id,omitempty"`
	TweetURL       string     `json:"tweet_url,omitempty"`
	Error          string     `json:"error,omitempty"`
	CreationTime   time.Time  `json:"creation_time"`
	CompletionTime *time.Time `json:"completion_time,omitempty"`
}
