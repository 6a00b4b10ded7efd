package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lucid-agent/internal/database"
	"lucid-agent/internal/storage"
)

// ThreadEnvironment is the hosted implementation of Environment: message
// history and agent state live in the database, file artifacts go to the
// object store under the thread's prefix.
type ThreadEnvironment struct {
	db     *gorm.DB
	store  storage.ObjectStore
	bucket string
	thread ThreadInfo

	replies []string
	files   []string
}

var _ Environment = (*ThreadEnvironment)(nil)

func LoadThreadEnvironment(ctx context.Context, db *gorm.DB, store storage.ObjectStore, bucket string, threadID uuid.UUID) (*ThreadEnvironment, error) {
	var thread database.Thread
	if err := db.WithContext(ctx).Where("id = ?", threadID).First(&thread).Error; err != nil {
		return nil, fmt.Errorf("could not load thread %s: %w", threadID, err)
	}

	info := ThreadInfo{ID: thread.ID, UserName: thread.UserName}
	if thread.ParentID.Valid {
		parentID := thread.ParentID.UUID
		info.ParentID = &parentID
	}

	return &ThreadEnvironment{
		db:     db,
		store:  store,
		bucket: bucket,
		thread: info,
	}, nil
}

func (e *ThreadEnvironment) Thread() ThreadInfo {
	return e.thread
}

func (e *ThreadEnvironment) ListMessages(ctx context.Context) ([]Message, error) {
	var rows []database.Message
	err := e.db.WithContext(ctx).
		Where("thread_id = ?", e.thread.ID).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("could not load messages for thread %s: %w", e.thread.ID, err)
	}

	messages := make([]Message, len(rows))
	for i, row := range rows {
		messages[i] = Message{Role: row.Role, Content: row.Content}
	}
	return messages, nil
}

func (e *ThreadEnvironment) AddReply(ctx context.Context, text string) error {
	row := database.Message{
		ID:        uuid.New(),
		ThreadID:  e.thread.ID,
		Role:      database.RoleAssistant,
		Content:   text,
		Timestamp: time.Now().UTC(),
	}
	if err := e.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("could not save reply: %w", err)
	}

	e.replies = append(e.replies, text)
	return nil
}

func (e *ThreadEnvironment) WriteFile(ctx context.Context, name string, content []byte) error {
	key := path.Join(e.thread.ID.String(), name)
	if err := e.store.PutObject(ctx, e.bucket, key, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("could not write artifact %s: %w", key, err)
	}

	e.files = append(e.files, key)
	return nil
}

func (e *ThreadEnvironment) RequestUserInput(ctx context.Context) error {
	err := e.db.WithContext(ctx).
		Model(&database.Thread{ID: e.thread.ID}).
		Update("awaiting_input", true).Error
	if err != nil {
		return fmt.Errorf("could not mark thread awaiting input: %w", err)
	}
	return nil
}

func (e *ThreadEnvironment) GetAgentData(ctx context.Context, key string) (json.RawMessage, error) {
	var row database.AgentData
	err := e.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not load agent data for %s: %w", key, err)
	}
	return json.RawMessage(row.Value), nil
}

func (e *ThreadEnvironment) SaveAgentData(ctx context.Context, key string, value json.RawMessage) error {
	row := database.AgentData{
		Key:       key,
		Value:     datatypes.JSON(value),
		UpdatedAt: time.Now().UTC(),
	}

	err := e.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("could not save agent data for %s: %w", key, err)
	}
	return nil
}

// Replies returns the replies emitted during this turn, in order.
func (e *ThreadEnvironment) Replies() []string {
	return e.replies
}

// Files returns the artifact keys written during this turn.
func (e *ThreadEnvironment) Files() []string {
	return e.files
}
