package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"lucid-agent/cmd"
	"lucid-agent/internal/agent"
	"lucid-agent/internal/api"
	"lucid-agent/internal/database"
	"lucid-agent/internal/messaging"
	"lucid-agent/internal/storage"
	"lucid-agent/internal/twitter"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"
)

type Config struct {
	Root        string `env:"ROOT" envDefault:"./lucid-agent"`
	Port        int    `env:"PORT" envDefault:"3001"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:""`

	LucidAPIURL string `env:"LUCID_API_URL" envDefault:"http://localhost:8002"`
	LucidAPIKey string `env:"LUCID_API_KEY" envDefault:""`

	RabbitMQURL string `env:"RABBITMQ_URL" envDefault:""`

	ArtifactBucket    string `env:"ARTIFACT_BUCKET" envDefault:"artifacts"`
	S3Endpoint        string `env:"S3_ENDPOINT" envDefault:""`
	S3Region          string `env:"S3_REGION" envDefault:""`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID" envDefault:""`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY" envDefault:""`

	WorkerConcurrency int `env:"WORKER_CONCURRENCY" envDefault:"0"`
}

func createDatabase(cfg Config) *gorm.DB {
	databaseURL := cfg.DatabaseURL
	if databaseURL == "" {
		databaseURL = filepath.Join(cfg.Root, "db", "lucid-agent.db")
	}

	db, err := database.NewDatabase(databaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := database.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	return db
}

func createObjectStore(cfg Config) storage.ObjectStore {
	if cfg.S3Endpoint != "" || cfg.S3AccessKeyID != "" {
		store, err := storage.NewS3ObjectStore(storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			log.Fatalf("failed to create s3 object store: %v", err)
		}
		return store
	}

	store, err := storage.NewLocalObjectStore(filepath.Join(cfg.Root, "storage"))
	if err != nil {
		log.Fatalf("failed to create local object store: %v", err)
	}
	return store
}

// createQueue returns the tweet task queue. With no broker configured it runs
// in memory and re-publishes tasks that were still queued at last shutdown.
func createQueue(cfg Config, db *gorm.DB) (messaging.Publisher, messaging.Receiver) {
	if cfg.RabbitMQURL != "" {
		publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("failed to create rabbitmq publisher: %v", err)
		}
		receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("failed to create rabbitmq receiver: %v", err)
		}
		return publisher, receiver
	}

	queue := messaging.NewInMemoryQueue()

	var pending []database.TweetTask
	if err := db.Where("status = ?", database.TaskQueued).Find(&pending).Error; err != nil {
		log.Fatalf("failed to fetch pending tweet tasks: %v", err)
	}
	for _, task := range pending {
		if err := queue.PublishTweetTask(context.Background(), messaging.TweetTaskPayload{TaskID: task.ID}); err != nil {
			log.Fatalf("failed to re-publish tweet task: %v", err)
		}
	}
	if len(pending) > 0 {
		slog.Info("re-published pending tweet tasks", "count", len(pending))
	}

	return queue, queue
}

func createServer(cfg Config, db *gorm.DB, store storage.ObjectStore, poster messaging.TweetPoster, publisher messaging.Publisher) *http.Server {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	agentHandler := api.NewAgentService(db, store, cfg.ArtifactBucket, agent.New(cfg.LucidAPIURL, cfg.LucidAPIKey))
	tweetHandler := api.NewTweetService(db, poster, publisher)

	r.Route("/api/v1", func(r chi.Router) {
		agentHandler.AddRoutes(r)
		tweetHandler.AddRoutes(r)
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}
}

func main() {
	cmd.LoadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	var twitterCreds twitter.Credentials
	if err := env.Parse(&twitterCreds); err != nil {
		log.Fatalf("error parsing twitter credentials: %v", err)
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := os.MkdirAll(cfg.Root, os.ModePerm); err != nil {
		log.Fatalf("error creating root directory: %v", err)
	}

	f, err := os.OpenFile(filepath.Join(cfg.Root, "agent.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	log.SetOutput(io.MultiWriter(f, os.Stderr))

	slog.Info("starting agent backend", "root", cfg.Root, "port", cfg.Port, "lucid_api_url", cfg.LucidAPIURL)

	db := createDatabase(cfg)

	store := createObjectStore(cfg)
	if err := store.CreateBucket(context.Background(), cfg.ArtifactBucket); err != nil {
		log.Fatalf("failed to create artifact bucket: %v", err)
	}

	publisher, receiver := createQueue(cfg, db)
	defer publisher.Close()

	poster := twitter.NewClient(twitterCreds)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	worker := messaging.NewTweetWorker(db, receiver, poster, cfg.WorkerConcurrency)
	worker.Start(workerCtx)

	server := createServer(cfg, db, store, poster, publisher)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("error shutting down server", "error", err)
		}

		stopWorker()
		receiver.Close()
	}()

	slog.Info("starting http server", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	worker.Wait()
	slog.Info("server stopped")
}
