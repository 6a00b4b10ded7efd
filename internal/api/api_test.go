package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"lucid-agent/internal/agent"
	"lucid-agent/internal/database"
	"lucid-agent/internal/messaging"
	"lucid-agent/internal/storage"
	"lucid-agent/internal/twitter"
	"lucid-agent/pkg/api"
)

const testBucket = "artifacts"

type testPoster struct {
	err error
}

func (p *testPoster) PostTweet(ctx context.Context, text string) (twitter.PostResult, error) {
	if p.err != nil {
		return twitter.PostResult{}, p.err
	}
	return twitter.PostResult{
		ID:        "555",
		Text:      text,
		CreatedAt: time.Now().UTC(),
		URL:       twitter.TweetURL("555"),
	}, nil
}

func (p *testPoster) PostTweetWithMedia(ctx context.Context, text, mediaPath string) (twitter.PostResult, error) {
	result, err := p.PostTweet(ctx, text)
	if err != nil {
		return twitter.PostResult{}, err
	}
	result.MediaID = "media-1"
	return result, nil
}

func newLucidStub(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"}) //nolint:errcheck
	})
	mux.HandleFunc("/create_api_key", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"api_key": "key-1", "user_id": "user-1"}) //nolint:errcheck
	})
	mux.HandleFunc("/generate_keyword_news_summary", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"success": true, "insight_id": 7}) //nolint:errcheck
	})
	mux.HandleFunc("/insights/7", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": 7, "content": "Policy makers met today."}) //nolint:errcheck
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

type testEnv struct {
	db     *gorm.DB
	server *httptest.Server
	queue  *messaging.InMemoryQueue
	poster *testPoster
}

func setupAPI(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.GetMigrator(db).Migrate())

	store, err := storage.NewLocalObjectStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.CreateBucket(context.Background(), testBucket))

	lucidStub := newLucidStub(t)

	queue := messaging.NewInMemoryQueue()
	poster := &testPoster{}
	worker := messaging.NewTweetWorker(db, queue, poster, 1)

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)
	t.Cleanup(func() {
		cancel()
		worker.Wait()
	})

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		NewAgentService(db, store, testBucket, agent.New(lucidStub.URL, "")).AddRoutes(r)
		NewTweetService(db, poster, queue).AddRoutes(r)
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	return &testEnv{db: db, server: server, queue: queue, poster: poster}
}

func (e *testEnv) post(t *testing.T, path string, body, out any) int {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	res, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	if out != nil && res.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(raw, out))
	}
	return res.StatusCode
}

func (e *testEnv) get(t *testing.T, path string, out any) int {
	t.Helper()

	res, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()

	if out != nil && res.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(res.Body).Decode(out))
	}
	return res.StatusCode
}

func (e *testEnv) startThread(t *testing.T) uuid.UUID {
	t.Helper()

	var resp api.StartThreadResponse
	code := e.post(t, "/api/v1/threads", api.StartThreadRequest{UserName: "tester"}, &resp)
	require.Equal(t, http.StatusOK, code)
	require.NotEqual(t, uuid.Nil, resp.ThreadID)
	return resp.ThreadID
}

func TestHealthEndpoint(t *testing.T) {
	env := setupAPI(t)

	var resp api.HealthResponse
	code := env.get(t, "/api/v1/health", &resp)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", resp.Status)
}

func TestStartThread(t *testing.T) {
	env := setupAPI(t)

	threadID := env.startThread(t)

	var row database.Thread
	require.NoError(t, env.db.First(&row, "id = ?", threadID).Error)
	assert.Equal(t, "tester", row.UserName)
	assert.False(t, row.ParentID.Valid)
}

func TestStartChildThread(t *testing.T) {
	env := setupAPI(t)

	parentID := env.startThread(t)

	var resp api.StartThreadResponse
	code := env.post(t, "/api/v1/threads", api.StartThreadRequest{UserName: "tester", ParentID: parentID.String()}, &resp)
	require.Equal(t, http.StatusOK, code)

	var row database.Thread
	require.NoError(t, env.db.First(&row, "id = ?", resp.ThreadID).Error)
	assert.Equal(t, parentID, row.ParentID.UUID)
}

func TestStartThreadUnknownParent(t *testing.T) {
	env := setupAPI(t)

	code := env.post(t, "/api/v1/threads", api.StartThreadRequest{ParentID: uuid.NewString()}, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestEmptyMessageYieldsWelcome(t *testing.T) {
	env := setupAPI(t)
	threadID := env.startThread(t)

	var resp api.MessageResponse
	code := env.post(t, fmt.Sprintf("/api/v1/threads/%s/messages", threadID), api.MessageRequest{}, &resp)
	require.Equal(t, http.StatusOK, code)

	require.Len(t, resp.Replies, 1)
	assert.Contains(t, resp.Replies[0], "Welcome to the News Copilot!")
	assert.True(t, resp.AwaitingInput)
}

func TestMessageTurnProducesSummary(t *testing.T) {
	env := setupAPI(t)
	threadID := env.startThread(t)

	var resp api.MessageResponse
	code := env.post(t,
		fmt.Sprintf("/api/v1/threads/%s/messages", threadID),
		api.MessageRequest{Content: "AI regulation topics: policy, tech timespan: 7d"},
		&resp,
	)
	require.Equal(t, http.StatusOK, code)

	require.Len(t, resp.Replies, 2)
	assert.Contains(t, resp.Replies[0], "Processing your request")
	assert.Contains(t, resp.Replies[1], "# News Summary: ai regulation")
	assert.Contains(t, resp.Replies[1], "**Topics:** policy, tech")
	assert.Contains(t, resp.Replies[1], "Policy makers met today.")

	assert.Contains(t, resp.Files, fmt.Sprintf("%s/result.html", threadID))
	assert.Contains(t, resp.Files, fmt.Sprintf("%s/result.txt", threadID))
	assert.True(t, resp.AwaitingInput)
}

func TestGetHistory(t *testing.T) {
	env := setupAPI(t)
	threadID := env.startThread(t)

	code := env.post(t,
		fmt.Sprintf("/api/v1/threads/%s/messages", threadID),
		api.MessageRequest{Content: "latest tech news"},
		nil,
	)
	require.Equal(t, http.StatusOK, code)

	var history []api.HistoryItem
	code = env.get(t, fmt.Sprintf("/api/v1/threads/%s/history", threadID), &history)
	require.Equal(t, http.StatusOK, code)

	require.Len(t, history, 3)
	assert.Equal(t, database.RoleUser, history[0].Role)
	assert.Equal(t, "latest tech news", history[0].Content)
	assert.Equal(t, database.RoleAssistant, history[1].Role)
	assert.Contains(t, history[1].Content, "Processing your request")
	assert.Equal(t, database.RoleAssistant, history[2].Role)
	assert.Contains(t, history[2].Content, "# News Summary:")

	// Pagination skips past the user and interim messages.
	var page []api.HistoryItem
	code = env.get(t, fmt.Sprintf("/api/v1/threads/%s/history?limit=1&offset=2", threadID), &page)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, page, 1)
	assert.Contains(t, page[0].Content, "# News Summary:")
}

func TestGetHistoryUnknownThread(t *testing.T) {
	env := setupAPI(t)

	code := env.get(t, fmt.Sprintf("/api/v1/threads/%s/history", uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPostTweet(t *testing.T) {
	env := setupAPI(t)

	var resp api.TweetResponse
	code := env.post(t, "/api/v1/tweets", api.TweetRequest{Text: "fresh summary"}, &resp)
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, "555", resp.ID)
	assert.Equal(t, "fresh summary", resp.Text)
	assert.Equal(t, twitter.TweetURL("555"), resp.URL)
}

func TestPostTweetEmptyText(t *testing.T) {
	env := setupAPI(t)

	code := env.post(t, "/api/v1/tweets", api.TweetRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPostTweetUpstreamFailure(t *testing.T) {
	env := setupAPI(t)
	env.poster.err = fmt.Errorf("rate limited")

	code := env.post(t, "/api/v1/tweets", api.TweetRequest{Text: "doomed"}, nil)
	assert.Equal(t, http.StatusBadGateway, code)
}

func TestQueueTweet(t *testing.T) {
	env := setupAPI(t)

	var resp api.QueueTweetResponse
	code := env.post(t, "/api/v1/tweets/queue", api.TweetRequest{Text: "queued summary"}, &resp)
	require.Equal(t, http.StatusOK, code)
	require.NotEqual(t, uuid.Nil, resp.TaskID)

	deadline := time.Now().Add(5 * time.Second)
	var status api.TweetTaskStatus
	for time.Now().Before(deadline) {
		code = env.get(t, fmt.Sprintf("/api/v1/tweets/%s", resp.TaskID), &status)
		require.Equal(t, http.StatusOK, code)
		if status.Status == database.TaskCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, database.TaskCompleted, status.Status)
	assert.Equal(t, "555", status.TweetID)
	assert.Equal(t, twitter.TweetURL("555"), status.TweetURL)
	require.NotNil(t, status.CompletionTime)
}

func TestGetTweetTaskUnknown(t *testing.T) {
	env := setupAPI(t)

	code := env.get(t, fmt.Sprintf("/api/v1/tweets/%s", uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, code)
}
