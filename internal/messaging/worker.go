package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"lucid-agent/internal/database"
	"lucid-agent/internal/twitter"

	"gorm.io/gorm"
)

// TweetPoster is the slice of the twitter client the worker needs. It exists
// so tests can run the worker against a fake.
type TweetPoster interface {
	PostTweet(ctx context.Context, text string) (twitter.PostResult, error)

	PostTweetWithMedia(ctx context.Context, text, mediaPath string) (twitter.PostResult, error)
}

// TweetWorker consumes queued tweet tasks, posts them, and records the outcome
// on the TweetTask row.
type TweetWorker struct {
	db          *gorm.DB
	receiver    Receiver
	poster      TweetPoster
	concurrency int
	wg          sync.WaitGroup
}

func NewTweetWorker(db *gorm.DB, receiver Receiver, poster TweetPoster, concurrency int) *TweetWorker {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
		slog.Info("worker concurrency not specified, defaulting to cpu count", "concurrency", concurrency)
	}
	return &TweetWorker{db: db, receiver: receiver, poster: poster, concurrency: concurrency}
}

// Start launches the worker goroutines. They run until the receiver's task
// channel closes or ctx is cancelled.
func (w *TweetWorker) Start(ctx context.Context) {
	slog.Info("starting tweet workers", "concurrency", w.concurrency)

	w.wg.Add(w.concurrency)
	for i := 0; i < w.concurrency; i++ {
		go func(id int) {
			defer w.wg.Done()
			w.run(ctx, id)
		}(i)
	}
}

// Wait blocks until all worker goroutines have exited.
func (w *TweetWorker) Wait() {
	w.wg.Wait()
}

func (w *TweetWorker) run(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("tweet worker stopping", "worker", id)
			return
		case task, ok := <-w.receiver.Tasks():
			if !ok {
				slog.Info("task channel closed, tweet worker stopping", "worker", id)
				return
			}
			w.handleTask(ctx, task)
		}
	}
}

func (w *TweetWorker) handleTask(ctx context.Context, task Task) {
	var payload TweetTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		slog.Error("error decoding tweet task payload, rejecting", "error", err)
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting task", "error", err)
		}
		return
	}

	var row database.TweetTask
	if err := w.db.WithContext(ctx).First(&row, "id = ?", payload.TaskID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Error("tweet task row not found, rejecting", "task_id", payload.TaskID)
			if err := task.Reject(); err != nil {
				slog.Error("error rejecting task", "task_id", payload.TaskID, "error", err)
			}
			return
		}

		// Transient database error, leave the message for redelivery.
		slog.Error("error loading tweet task, nacking", "task_id", payload.TaskID, "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error nacking task", "task_id", payload.TaskID, "error", err)
		}
		return
	}

	if err := database.UpdateTweetTaskStatus(ctx, w.db, row.ID, database.TaskRunning); err != nil {
		if err := task.Nack(); err != nil {
			slog.Error("error nacking task", "task_id", row.ID, "error", err)
		}
		return
	}

	var result twitter.PostResult
	var postErr error
	if row.MediaPath.Valid && row.MediaPath.String != "" {
		result, postErr = w.poster.PostTweetWithMedia(ctx, row.Text, row.MediaPath.String)
	} else {
		result, postErr = w.poster.PostTweet(ctx, row.Text)
	}

	if postErr != nil {
		slog.Error("error posting tweet", "task_id", row.ID, "error", postErr)
		if err := database.FailTweetTask(ctx, w.db, row.ID, postErr.Error()); err != nil {
			slog.Error("error recording tweet failure", "task_id", row.ID, "error", err)
		}
	} else {
		slog.Info("tweet posted", "task_id", row.ID, "tweet_id", result.ID)
		if err := database.CompleteTweetTask(ctx, w.db, row.ID, result.ID, result.URL); err != nil {
			slog.Error("error recording tweet completion", "task_id", row.ID, "error", err)
		}
	}

	// The outcome is recorded on the row either way, so the message is done.
	if err := task.Ack(); err != nil {
		slog.Error("error acking task", "task_id", row.ID, "error", err)
	}
}
