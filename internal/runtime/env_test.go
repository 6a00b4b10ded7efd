package runtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"lucid-agent/internal/database"
	"lucid-agent/internal/storage"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testBucket = "artifacts"

func setupEnvTest(t *testing.T) (*gorm.DB, storage.ObjectStore) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())

	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.CreateBucket(context.Background(), testBucket))

	return db, store
}

func createThread(t *testing.T, db *gorm.DB, parentID *uuid.UUID) uuid.UUID {
	t.Helper()

	thread := database.Thread{
		ID:           uuid.New(),
		UserName:     "tester",
		CreationTime: time.Now().UTC(),
	}
	if parentID != nil {
		thread.ParentID = uuid.NullUUID{UUID: *parentID, Valid: true}
	}
	require.NoError(t, db.Create(&thread).Error)
	return thread.ID
}

func TestLoadThreadEnvironmentUnknownThread(t *testing.T) {
	db, store := setupEnvTest(t)

	_, err := LoadThreadEnvironment(context.Background(), db, store, testBucket, uuid.New())
	require.Error(t, err)
}

func TestThreadEnvironmentMessages(t *testing.T) {
	db, store := setupEnvTest(t)
	threadID := createThread(t, db, nil)

	env, err := LoadThreadEnvironment(context.Background(), db, store, testBucket, threadID)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, db.Create(&database.Message{
		ID: uuid.New(), ThreadID: threadID, Role: database.RoleUser, Content: "second", Timestamp: now,
	}).Error)
	require.NoError(t, db.Create(&database.Message{
		ID: uuid.New(), ThreadID: threadID, Role: database.RoleUser, Content: "first", Timestamp: now.Add(-time.Minute),
	}).Error)

	require.NoError(t, env.AddReply(context.Background(), "a reply"))

	messages, err := env.ListMessages(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, 3)

	// Ordered by timestamp, not insertion.
	assert.Equal(t, "first", messages[0].Content)
	assert.Equal(t, "second", messages[1].Content)
	assert.Equal(t, Message{Role: database.RoleAssistant, Content: "a reply"}, messages[2])

	assert.Equal(t, []string{"a reply"}, env.Replies())
}

func TestThreadEnvironmentWriteFile(t *testing.T) {
	db, store := setupEnvTest(t)
	threadID := createThread(t, db, nil)

	env, err := LoadThreadEnvironment(context.Background(), db, store, testBucket, threadID)
	require.NoError(t, err)

	require.NoError(t, env.WriteFile(context.Background(), "result.txt", []byte("summary text")))

	key := threadID.String() + "/result.txt"
	assert.Equal(t, []string{key}, env.Files())

	data, err := store.GetObject(context.Background(), testBucket, key)
	require.NoError(t, err)
	assert.Equal(t, "summary text", string(data))
}

func TestThreadEnvironmentRequestUserInput(t *testing.T) {
	db, store := setupEnvTest(t)
	threadID := createThread(t, db, nil)

	env, err := LoadThreadEnvironment(context.Background(), db, store, testBucket, threadID)
	require.NoError(t, err)

	require.NoError(t, env.RequestUserInput(context.Background()))

	var thread database.Thread
	require.NoError(t, db.First(&thread, "id = ?", threadID).Error)
	assert.True(t, thread.AwaitingInput)
}

func TestThreadEnvironmentAgentDataUpsert(t *testing.T) {
	db, store := setupEnvTest(t)
	threadID := createThread(t, db, nil)

	env, err := LoadThreadEnvironment(context.Background(), db, store, testBucket, threadID)
	require.NoError(t, err)

	key := env.Thread().StateKey()

	// Missing key reads as nil without error.
	data, err := env.GetAgentData(context.Background(), key)
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, env.SaveAgentData(context.Background(), key, json.RawMessage(`{"api_key":"one"}`)))
	require.NoError(t, env.SaveAgentData(context.Background(), key, json.RawMessage(`{"api_key":"two"}`)))

	data, err = env.GetAgentData(context.Background(), key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"api_key":"two"}`, string(data))

	var count int64
	require.NoError(t, db.Model(&database.AgentData{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestChildThreadSharesParentState(t *testing.T) {
	db, store := setupEnvTest(t)
	parentID := createThread(t, db, nil)
	childID := createThread(t, db, &parentID)

	parentEnv, err := LoadThreadEnvironment(context.Background(), db, store, testBucket, parentID)
	require.NoError(t, err)
	childEnv, err := LoadThreadEnvironment(context.Background(), db, store, testBucket, childID)
	require.NoError(t, err)

	assert.Equal(t, parentEnv.Thread().StateKey(), childEnv.Thread().StateKey())

	require.NoError(t, parentEnv.SaveAgentData(context.Background(), parentEnv.Thread().StateKey(), json.RawMessage(`{"api_key":"shared"}`)))

	data, err := childEnv.GetAgentData(context.Background(), childEnv.Thread().StateKey())
	require.NoError(t, err)
	assert.JSONEq(t, `{"api_key":"shared"}`, string(data))
}
