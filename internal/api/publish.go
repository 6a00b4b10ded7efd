package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"lucid-agent/internal/database"
	"lucid-agent/internal/messaging"
	"lucid-agent/internal/twitter"
	"lucid-agent/pkg/api"
)

// TweetService publishes summaries to Twitter, either synchronously or through
// the durable task queue.
type TweetService struct {
	db        *gorm.DB
	poster    messaging.TweetPoster
	publisher messaging.Publisher
}

func NewTweetService(db *gorm.DB, poster messaging.TweetPoster, publisher messaging.Publisher) *TweetService {
	return &TweetService{
		db:        db,
		poster:    poster,
		publisher: publisher,
	}
}

func (s *TweetService) AddRoutes(r chi.Router) {
	r.Route("/tweets", func(r chi.Router) {
		r.Post("/", RestHandler(s.PostTweet))
		r.Post("/queue", RestHandler(s.QueueTweet))
		r.Get("/{task_id}", RestHandler(s.GetTweetTask))
	})
}

func (s *TweetService) PostTweet(r *http.Request) (any, error) {
	req, err := ParseRequest[api.TweetRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Text == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "tweet text must not be empty")
	}

	ctx := r.Context()

	var result twitter.PostResult
	var postErr error
	if req.MediaPath != "" {
		result, postErr = s.poster.PostTweetWithMedia(ctx, req.Text, req.MediaPath)
	} else {
		result, postErr = s.poster.PostTweet(ctx, req.Text)
	}
	if postErr != nil {
		return nil, CodedError(http.StatusBadGateway, postErr)
	}

	return api.TweetResponse{
		ID:        result.ID,
		Text:      result.Text,
		MediaID:   result.MediaID,
		CreatedAt: result.CreatedAt,
		URL:       result.URL,
	}, nil
}

func (s *TweetService) QueueTweet(r *http.Request) (any, error) {
	req, err := ParseRequest[api.TweetRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Text == "" {
		return nil, CodedErrorf(http.StatusBadRequest, "tweet text must not be empty")
	}

	ctx := r.Context()

	task := database.TweetTask{
		ID:           uuid.New(),
		Text:         req.Text,
		Status:       database.TaskQueued,
		CreationTime: time.Now().UTC(),
	}
	if req.MediaPath != "" {
		task.MediaPath = sql.NullString{String: req.MediaPath, Valid: true}
	}

	if err := s.db.WithContext(ctx).Create(&task).Error; err != nil {
		return nil, err
	}

	if err := s.publisher.PublishTweetTask(ctx, messaging.TweetTaskPayload{TaskID: task.ID}); err != nil {
		if failErr := database.FailTweetTask(ctx, s.db, task.ID, err.Error()); failErr != nil {
			return nil, failErr
		}
		return nil, err
	}

	return api.QueueTweetResponse{TaskID: task.ID}, nil
}

func (s *TweetService) GetTweetTask(r *http.Request) (any, error) {
	taskID, err := URLParamUUID(r, "task_id")
	if err != nil {
		return nil, err
	}

	var task database.TweetTask
	if err := s.db.Where("id = ?", taskID).First(&task).Error; err != nil {
		return nil, CodedErrorf(http.StatusNotFound, "tweet task %s not found", taskID)
	}

	status := api.TweetTaskStatus{
		TaskID:       task.ID,
		Status:       task.Status,
		TweetID:      task.TweetID.String,
		TweetURL:     task.TweetURL.String,
		Error:        task.Error.String,
		CreationTime: task.CreationTime,
	}
	if task.CompletionTime.Valid {
		completion := task.CompletionTime.Time
		status.CompletionTime = &completion
	}

	return status, nil
}
