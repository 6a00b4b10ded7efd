package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"lucid-agent/internal/agent"
	"lucid-agent/internal/database"
	"lucid-agent/internal/runtime"
	"lucid-agent/internal/storage"
	"lucid-agent/pkg/api"
)

const defaultHistoryLimit = 50

// AgentService exposes the conversation surface: thread creation, message
// turns, and history. Each message runs one full agent turn synchronously.
type AgentService struct {
	db     *gorm.DB
	store  storage.ObjectStore
	bucket string
	agent  *agent.Agent
}

func NewAgentService(db *gorm.DB, store storage.ObjectStore, bucket string, a *agent.Agent) *AgentService {
	return &AgentService{
		db:     db,
		store:  store,
		bucket: bucket,
		agent:  a,
	}
}

func (s *AgentService) AddRoutes(r chi.Router) {
	r.Route("/threads", func(r chi.Router) {
		r.Post("/", RestHandler(s.StartThread))
		r.Post("/{thread_id}/messages", RestHandler(s.SendMessage))
		r.Get("/{thread_id}/history", RestHandler(s.GetHistory))
	})
	r.Get("/health", RestHandler(s.Health))
}

func (s *AgentService) Health(r *http.Request) (any, error) {
	return api.HealthResponse{Status: "healthy"}, nil
}

func (s *AgentService) StartThread(r *http.Request) (any, error) {
	req, err := ParseRequest[api.StartThreadRequest](r)
	if err != nil {
		return nil, err
	}

	thread := database.Thread{
		ID:           uuid.New(),
		UserName:     req.UserName,
		CreationTime: time.Now().UTC(),
	}

	if req.ParentID != "" {
		parentID, err := uuid.Parse(req.ParentID)
		if err != nil {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid parent_id '%s' provided: %w", req.ParentID, err)
		}

		var parent database.Thread
		if err := s.db.Where("id = ?", parentID).First(&parent).Error; err != nil {
			return nil, CodedErrorf(http.StatusNotFound, "parent thread %s not found", parentID)
		}
		thread.ParentID = uuid.NullUUID{UUID: parentID, Valid: true}
	}

	if err := s.db.Create(&thread).Error; err != nil {
		return nil, err
	}

	return api.StartThreadResponse{ThreadID: thread.ID}, nil
}

func (s *AgentService) SendMessage(r *http.Request) (any, error) {
	threadID, err := URLParamUUID(r, "thread_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.MessageRequest](r)
	if err != nil {
		return nil, err
	}
	content := strings.TrimSpace(req.Content)

	var thread database.Thread
	if err := s.db.Where("id = ?", threadID).First(&thread).Error; err != nil {
		return nil, CodedErrorf(http.StatusNotFound, "thread %s not found", threadID)
	}

	ctx := r.Context()

	// An empty content starts the turn without a user message, which yields
	// the welcome reply on a fresh thread.
	if content != "" {
		message := database.Message{
			ID:        uuid.New(),
			ThreadID:  threadID,
			Role:      database.RoleUser,
			Content:   content,
			Timestamp: time.Now().UTC(),
		}
		if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
			return nil, err
		}
	}

	if err := s.db.WithContext(ctx).Model(&database.Thread{ID: threadID}).Update("awaiting_input", false).Error; err != nil {
		return nil, err
	}

	env, err := runtime.LoadThreadEnvironment(ctx, s.db, s.store, s.bucket, threadID)
	if err != nil {
		return nil, err
	}

	s.agent.Run(ctx, env)

	if err := s.db.WithContext(ctx).Where("id = ?", threadID).First(&thread).Error; err != nil {
		return nil, err
	}

	return api.MessageResponse{
		Replies:       env.Replies(),
		Files:         env.Files(),
		AwaitingInput: thread.AwaitingInput,
	}, nil
}

func (s *AgentService) GetHistory(r *http.Request) (any, error) {
	threadID, err := URLParamUUID(r, "thread_id")
	if err != nil {
		return nil, err
	}

	params, err := ParseRequestQueryParams[api.HistoryParams](r)
	if err != nil {
		return nil, err
	}
	if params.Limit <= 0 {
		params.Limit = defaultHistoryLimit
	}

	var thread database.Thread
	if err := s.db.Where("id = ?", threadID).First(&thread).Error; err != nil {
		return nil, CodedErrorf(http.StatusNotFound, "thread %s not found", threadID)
	}

	var rows []database.Message
	err = s.db.
		Where("thread_id = ?", threadID).
		Order("timestamp ASC").
		Limit(params.Limit).
		Offset(params.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	history := make([]api.HistoryItem, len(rows))
	for i, row := range rows {
		history[i] = api.HistoryItem{
			Role:      row.Role,
			Content:   row.Content,
			Timestamp: row.Timestamp,
		}
	}

	return history, nil
}
