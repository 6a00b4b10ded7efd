package database

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func UpdateTweetTaskStatus(ctx context.Context, txn *gorm.DB, taskId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if status == TaskCompleted || status == TaskFailed {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&TweetTask{ID: taskId}).Updates(updates).Error; err != nil {
		slog.Error("error updating tweet task status", "task_id", taskId, "status", status, "error", err)
		return err
	}
	return nil
}

func CompleteTweetTask(ctx context.Context, txn *gorm.DB, taskId uuid.UUID, tweetId, tweetURL string) error {
	updates := map[string]any{
		"status":          TaskCompleted,
		"tweet_id":        sql.NullString{String: tweetId, Valid: true},
		"tweet_url":       sql.NullString{String: tweetURL, Valid: true},
		"completion_time": time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Model(&TweetTask{ID: taskId}).Updates(updates).Error; err != nil {
		slog.Error("error completing tweet task", "task_id", taskId, "error", err)
		return err
	}
	return nil
}

func FailTweetTask(ctx context.Context, txn *gorm.DB, taskId uuid.UUID, errorMessage string) error {
	updates := map[string]any{
		"status":          TaskFailed,
		"error":           sql.NullString{String: errorMessage, Valid: true},
		"completion_time": time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Model(&TweetTask{ID: taskId}).Updates(updates).Error; err != nil {
		slog.Error("error failing tweet task", "task_id", taskId, "error", err)
		return err
	}
	return nil
}
