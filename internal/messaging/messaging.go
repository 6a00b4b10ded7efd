// Package messaging moves queued tweet tasks between the API and the posting
// worker, over RabbitMQ in production and an in-memory queue in tests and
// single-process deployments.
package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TweetQueue      = "tweet_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// TweetTaskPayload references a TweetTask row by id; the row carries the tweet
// text and media path so the queue message stays small.
type TweetTaskPayload struct {
	TaskID uuid.UUID `json:"task_id"`
}

type Publisher interface {
	PublishTweetTask(ctx context.Context, payload TweetTaskPayload) error

	Close()
}

type Receiver interface {
	Tasks() <-chan Task

	Close()
}
