package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/auction-sentry/internal/application/bid"
	"github.com/auction-sentry/internal/application/dispatch"
	"github.com/auction-sentry/internal/application/ingest"
	"github.com/auction-sentry/internal/application/registry"
	"github.com/auction-sentry/internal/application/reminder"
	"github.com/auction-sentry/internal/config"
	"github.com/auction-sentry/internal/infrastructure/discord"
	"github.com/auction-sentry/internal/infrastructure/dynamo"
	jwtinfra "github.com/auction-sentry/internal/infrastructure/jwt"
	"github.com/auction-sentry/internal/infrastructure/openai"
	snsinfra "github.com/auction-sentry/internal/infrastructure/sns"
	transporthttp "github.com/auction-sentry/internal/transport/http"
	transportkafka "github.com/auction-sentry/internal/transport/kafka"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()

	// Bootstrap DynamoDB archive tables (creates them if they don't exist).
	dynamoClient := dynamo.NewClient(cfg)
	dynamo.Bootstrap(context.Background(), dynamoClient, cfg.DynamoTables)

	// JWT provider (optional — graceful fallback if keys are missing).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}

	// Discord sender. Without a bot token notifications are logged only.
	sender := discord.NewSender(cfg)
	var dispatchSender dispatch.Sender = sender
	if !sender.IsConfigured() {
		log.Println("WARN: Discord bot token not set, notifications will be logged only")
		dispatchSender = logSender{}
	}

	// SNS ops alerter (optional — graceful fallback).
	var alerter dispatch.Alerter
	if cfg.SNSAlertTopicARN != "" {
		if a, err := snsinfra.NewAlerter(cfg); err == nil {
			alerter = a
		} else {
			log.Printf("WARN: SNS alerter not available: %v", err)
		}
	}

	// Summarization gate (optional — without a key posts are admitted as-is).
	var summarizer ingest.Summarizer
	if s := openai.NewSummarizer(cfg); s.IsConfigured() {
		summarizer = s
	} else {
		log.Println("WARN: OpenAI key not set, summarization gate disabled")
	}

	dispatcher := dispatch.New(dispatchSender, alerter, dispatch.Config{
		MaxAttempts: cfg.DispatchMaxAttempts,
		Rate:        rate.Limit(cfg.DispatchRate),
		Burst:       cfg.DispatchBurst,
	})

	auctionRepo := dynamo.NewAuctionRepo(dynamoClient, cfg.DynamoTables.Auctions, cfg.PostRetention)
	bidRepo := dynamo.NewBidRepo(dynamoClient, cfg.DynamoTables.Bids)

	reg := registry.New(cfg.PostRetention, auctionRepo)
	ingestSvc := ingest.NewService(reg, summarizer, cfg.SummaryTimeout, dispatcher)
	reminderSvc := reminder.NewService(dispatcher)
	bidSvc := bid.NewService(reg, bidRepo, dispatcher)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go dispatcher.Run(ctx)
	go reminderSvc.Run(ctx)
	go ingestSvc.Run(ctx)
	go reg.RunJanitor(ctx, cfg.JanitorInterval)

	// Kafka post feed (optional — HTTP ingestion always available).
	if cfg.KafkaBrokers != "" {
		consumer := transportkafka.NewConsumer(cfg, ingestSvc)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Printf("kafka consumer stopped: %v", err)
			}
		}()
	}

	deps := &transporthttp.Deps{
		Registry:    reg,
		IngestSvc:   ingestSvc,
		ReminderSvc: reminderSvc,
		BidSvc:      bidSvc,
		PostArchive: auctionRepo,
		BidArchive:  bidRepo,
		JWTProvider: jwtProvider,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s)", cfg.AppPort, cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}

// logSender stands in for Discord when no bot token is configured.
type logSender struct{}

func (logSender) Send(_ context.Context, channelID, text string) error {
	log.Printf("notification (dry-run) channel=%s: %s", channelID, text)
	return nil
}
