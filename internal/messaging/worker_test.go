package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"lucid-agent/internal/database"
	"lucid-agent/internal/twitter"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakePoster struct {
	mu       sync.Mutex
	posted   []string
	mediaFor map[string]string
	err      error
}

func (p *fakePoster) PostTweet(ctx context.Context, text string) (twitter.PostResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return twitter.PostResult{}, p.err
	}
	p.posted = append(p.posted, text)
	id := fmt.Sprintf("tweet-%d", len(p.posted))
	return twitter.PostResult{ID: id, Text: text, URL: twitter.TweetURL(id)}, nil
}

func (p *fakePoster) PostTweetWithMedia(ctx context.Context, text, mediaPath string) (twitter.PostResult, error) {
	result, err := p.PostTweet(ctx, text)
	if err != nil {
		return twitter.PostResult{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mediaFor == nil {
		p.mediaFor = make(map[string]string)
	}
	p.mediaFor[text] = mediaPath
	result.MediaID = "media-1"
	return result, nil
}

func setupWorkerTest(t *testing.T, poster TweetPoster) (*gorm.DB, *InMemoryQueue) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())

	queue := NewInMemoryQueue()
	worker := NewTweetWorker(db, queue, poster, 1)

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	t.Cleanup(func() {
		cancel()
		worker.Wait()
	})

	return db, queue
}

func queueTweetTask(t *testing.T, db *gorm.DB, queue *InMemoryQueue, task database.TweetTask) uuid.UUID {
	t.Helper()

	task.ID = uuid.New()
	task.Status = database.TaskQueued
	task.CreationTime = time.Now().UTC()
	require.NoError(t, db.Create(&task).Error)
	require.NoError(t, queue.PublishTweetTask(context.Background(), TweetTaskPayload{TaskID: task.ID}))
	return task.ID
}

func waitForStatus(t *testing.T, db *gorm.DB, taskID uuid.UUID, want ...string) database.TweetTask {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var row database.TweetTask
		require.NoError(t, db.First(&row, "id = ?", taskID).Error)
		for _, status := range want {
			if row.Status == status {
				return row
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached status %v", taskID, want)
	return database.TweetTask{}
}

func TestTweetWorkerCompletesTask(t *testing.T) {
	poster := &fakePoster{}
	db, queue := setupWorkerTest(t, poster)

	taskID := queueTweetTask(t, db, queue, database.TweetTask{Text: "hello from the worker"})

	row := waitForStatus(t, db, taskID, database.TaskCompleted)
	assert.Equal(t, "tweet-1", row.TweetID.String)
	assert.Equal(t, twitter.TweetURL("tweet-1"), row.TweetURL.String)
	assert.True(t, row.CompletionTime.Valid)
	assert.Equal(t, []string{"hello from the worker"}, poster.posted)
}

func TestTweetWorkerPostsMedia(t *testing.T) {
	poster := &fakePoster{}
	db, queue := setupWorkerTest(t, poster)

	taskID := queueTweetTask(t, db, queue, database.TweetTask{
		Text:      "with media",
		MediaPath: sql.NullString{String: "/tmp/img.png", Valid: true},
	})

	waitForStatus(t, db, taskID, database.TaskCompleted)
	assert.Equal(t, "/tmp/img.png", poster.mediaFor["with media"])
}

func TestTweetWorkerRecordsFailure(t *testing.T) {
	poster := &fakePoster{err: fmt.Errorf("rate limited")}
	db, queue := setupWorkerTest(t, poster)

	taskID := queueTweetTask(t, db, queue, database.TweetTask{Text: "doomed"})

	row := waitForStatus(t, db, taskID, database.TaskFailed)
	assert.Contains(t, row.Error.String, "rate limited")
	assert.True(t, row.CompletionTime.Valid)
	assert.False(t, row.TweetID.Valid)
}

func TestTweetWorkerSkipsMissingRow(t *testing.T) {
	poster := &fakePoster{}
	db, queue := setupWorkerTest(t, poster)

	// A payload referencing a row that was never created must not reach the
	// poster.
	require.NoError(t, queue.PublishTweetTask(context.Background(), TweetTaskPayload{TaskID: uuid.New()}))

	taskID := queueTweetTask(t, db, queue, database.TweetTask{Text: "real task"})
	waitForStatus(t, db, taskID, database.TaskCompleted)

	assert.Equal(t, []string{"real task"}, poster.posted)
}
