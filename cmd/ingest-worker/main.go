// Package main consumes queued ingestion jobs from the Redis stream.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"kb-rag-api/internal/application/retrieval"
	"kb-rag-api/internal/config"
	"kb-rag-api/internal/infrastructure/messaging"
	"kb-rag-api/internal/wire"
	apperrors "kb-rag-api/pkg/errors"
	"kb-rag-api/pkg/logger"
	"kb-rag-api/pkg/tracer"
)

const dlqAlertThreshold = 100

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "ingest-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
		Insecure:    cfg.Observability.Tracing.Insecure,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	core, cleanup, err := wire.InitializeCore(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize core", err)
	}
	defer cleanup()
	if core.Data.RedisClient == nil {
		logger.Fatal(ctx, "ingest-worker requires redis", errors.New("redis client not configured"))
	}

	sc := cfg.Messaging.RedisStream
	stream := messaging.StreamIngest
	if sc.Stream != "" {
		stream = messaging.Stream(sc.Stream)
	}
	group := messaging.ConsumerGroupIngestWorker
	if sc.ConsumerGroup != "" {
		group = messaging.ConsumerGroup(sc.ConsumerGroup)
	}

	consumer := messaging.NewConsumer(core.Data.RedisClient.Redis(), messaging.ConsumerConfig{
		Stream:        stream,
		Group:         group,
		ConsumerName:  hostnameConsumerName(),
		BlockTimeout:  sc.BlockTimeout,
		ClaimInterval: sc.ClaimInterval,
		RetryLimit:    sc.RetryLimit,
		Backoff: messaging.BackoffConfig{
			Initial:    sc.RetryBackoff.Initial,
			Max:        sc.RetryBackoff.Max,
			Multiplier: sc.RetryBackoff.Multiplier,
		},
	})
	consumer.RegisterHandler(messaging.TypeIngest, ingestHandler(core.Indexer))

	if err := consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}
	go consumer.MonitorDLQ(ctx, dlqAlertThreshold)

	logger.Info(ctx, "ingest-worker started", "stream", string(stream), "group", string(group))
	<-ctx.Done()

	logger.Info(context.Background(), "ingest-worker shutting down")
	consumer.Stop()
}

// documentIngester is the part of retrieval.Indexer the worker needs.
type documentIngester interface {
	Ingest(ctx context.Context, text, source, category string) (*retrieval.IngestResult, error)
}

// ingestHandler indexes one queued document. Bad input is permanent; backend failures are retried.
func ingestHandler(indexer documentIngester) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		var job messaging.IngestJob
		if err := msg.UnmarshalPayload(&job); err != nil {
			return messaging.Permanent(fmt.Errorf("decode ingest job: %w", err))
		}
		res, err := indexer.Ingest(ctx, job.Text, job.Source, job.Category)
		if err != nil {
			if isBadInput(err) {
				return messaging.Permanent(err)
			}
			return err
		}
		logger.Info(ctx, "queued document ingested",
			"source", res.Source,
			"category", res.Category,
			"chunks", res.ChunksCreated,
		)
		return nil
	}
}

func isBadInput(err error) bool {
	return errors.Is(err, retrieval.ErrEmptyDocument) ||
		errors.Is(err, retrieval.ErrNoChunks) ||
		errors.Is(err, retrieval.ErrVectorDisabled) ||
		apperrors.IsCode(err, apperrors.CodeInvalidParam)
}

func hostnameConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
