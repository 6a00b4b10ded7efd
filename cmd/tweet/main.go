// The tweet command posts a single tweet from the command line, either
// directly or through the durable task queue.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"time"

	"lucid-agent/cmd"
	"lucid-agent/internal/database"
	"lucid-agent/internal/messaging"
	"lucid-agent/internal/twitter"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL" envDefault:"./lucid-agent/db/lucid-agent.db"`
	RabbitMQURL string `env:"RABBITMQ_URL" envDefault:""`
}

func main() {
	var text, media string
	var queued bool
	flag.StringVar(&text, "text", "", "tweet text")
	flag.StringVar(&media, "media", "", "path to a media file to attach")
	flag.BoolVar(&queued, "queue", false, "enqueue the tweet instead of posting directly")
	cmd.LoadEnvFile()

	if text == "" {
		log.Fatal("-text is required")
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	var creds twitter.Credentials
	if err := env.Parse(&creds); err != nil {
		log.Fatalf("error parsing twitter credentials: %v", err)
	}

	ctx := context.Background()

	if queued {
		enqueue(ctx, cfg, text, media)
		return
	}

	client := twitter.NewClient(creds)

	var result twitter.PostResult
	var err error
	if media != "" {
		result, err = client.PostTweetWithMedia(ctx, text, media)
	} else {
		result, err = client.PostTweet(ctx, text)
	}
	if err != nil {
		log.Fatalf("error posting tweet: %v", err)
	}

	fmt.Printf("tweet posted: %s\n", result.URL)
}

func enqueue(ctx context.Context, cfg Config, text, media string) {
	if cfg.RabbitMQURL == "" {
		log.Fatal("RABBITMQ_URL must be set to enqueue tweets")
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("error connecting to database: %v", err)
	}
	if err := database.GetMigrator(db).Migrate(); err != nil {
		log.Fatalf("error migrating database: %v", err)
	}

	publisher, err := messaging.NewRabbitMQPublisher(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("error connecting to rabbitmq: %v", err)
	}
	defer publisher.Close()

	task := database.TweetTask{
		ID:           uuid.New(),
		Text:         text,
		Status:       database.TaskQueued,
		CreationTime: time.Now().UTC(),
	}
	if media != "" {
		task.MediaPath = sql.NullString{String: media, Valid: true}
	}

	if err := db.Create(&task).Error; err != nil {
		log.Fatalf("error creating tweet task: %v", err)
	}

	if err := publisher.PublishTweetTask(ctx, messaging.TweetTaskPayload{TaskID: task.ID}); err != nil {
		log.Fatalf("error publishing tweet task: %v", err)
	}

	fmt.Printf("tweet task queued: %s\n", task.ID)
}
