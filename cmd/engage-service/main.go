package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/crafthub/engage/internal/auth"
	"github.com/crafthub/engage/internal/config"
	"github.com/crafthub/engage/internal/events"
	"github.com/crafthub/engage/internal/httpserver"
	"github.com/crafthub/engage/internal/identity"
	"github.com/crafthub/engage/internal/notify"
	"github.com/crafthub/engage/internal/payment"
	"github.com/crafthub/engage/internal/service"
	"github.com/crafthub/engage/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("db ping: %v", err)
	}

	engageStore := store.NewPGStore(db)
	directory := identity.NewPGDirectory(db)

	payments, err := payment.NewHTTPClient(payment.HTTPClientConfig{
		BaseURL: cfg.PaymentBaseURL,
		APIKey:  cfg.PaymentAPIKey,
		Timeout: cfg.PaymentTimeout,
		Retries: cfg.PaymentRetries,
	})
	if err != nil {
		log.Fatalf("payment client init: %v", err)
	}

	notifier := notify.New(engageStore, cfg.NotifyTimeout)

	var journal events.Journal
	if len(cfg.KafkaBrokers) > 0 {
		journal = events.NewPGJournal(db)
	}

	verifier, err := auth.NewVerifier(cfg.AuthSecret)
	if err != nil {
		log.Fatalf("auth init: %v", err)
	}

	svc := service.New(engageStore, directory, payments, notifier, journal, service.Config{
		Currency: cfg.Currency,
	})

	streamCtx, stopStreamer := context.WithCancel(context.Background())
	defer stopStreamer()
	if journal != nil {
		producer, err := events.NewKafkaProducer(events.KafkaProducerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("kafka producer init: %v", err)
		}
		var archiver events.Archiver
		if cfg.ArchiveBucket != "" {
			s3Archiver, err := events.NewS3Archiver(streamCtx, cfg.ArchiveBucket, cfg.ArchivePrefix)
			if err != nil {
				log.Fatalf("s3 archiver init: %v", err)
			}
			archiver = s3Archiver
		}
		streamer := events.NewStreamer(journal, producer, archiver, events.StreamerConfig{
			BatchSize:      cfg.StreamBatchSize,
			PollInterval:   cfg.StreamPollInterval,
			MaxConcurrency: cfg.StreamMaxConcurrency,
		})
		go func() {
			if err := streamer.Run(streamCtx); err != nil && err != context.Canceled {
				log.Printf("event streamer stopped: %v", err)
			}
		}()
	} else {
		log.Printf("ENGAGE_KAFKA_BROKERS unset; lifecycle event streaming disabled")
	}

	server := httpserver.New(svc, engageStore, verifier)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("engagement service listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	shutdown(httpServer, stopStreamer)
}

func shutdown(s *http.Server, stopStreamer context.CancelFunc) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	stopStreamer()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
