// Package wire assembles the application from configuration.
//
// Providers follow one shape: they return the component plus a cleanup func,
// and optional backends come back nil with a warning instead of an error.
package wire

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kb-rag-api/internal/application/chat"
	"kb-rag-api/internal/application/conversation"
	"kb-rag-api/internal/application/ephemeral"
	"kb-rag-api/internal/application/retrieval"
	"kb-rag-api/internal/config"
	"kb-rag-api/internal/domain/repository"
	"kb-rag-api/internal/infrastructure/embedding"
	"kb-rag-api/internal/infrastructure/llm"
	"kb-rag-api/internal/infrastructure/messaging"
	"kb-rag-api/internal/infrastructure/persistence/embedded"
	"kb-rag-api/internal/infrastructure/persistence/milvus"
	"kb-rag-api/internal/infrastructure/persistence/postgres"
	"kb-rag-api/internal/infrastructure/persistence/redis"
	"kb-rag-api/internal/interfaces/http/handler"
	"kb-rag-api/internal/interfaces/http/router"
	"kb-rag-api/pkg/logger"
)

const (
	backendMemory   = "memory"
	backendRedis    = "redis"
	backendPostgres = "postgres"

	chatWorkflow = "kb_chat"
)

// DataLayer holds the backend clients. Any of them may be nil when not configured.
type DataLayer struct {
	RedisClient  *redis.Client
	PgClient     *postgres.Client
	Catalog      repository.DocumentRepository
	MilvusClient *milvus.Client
	Embedded     *embedded.Store
}

// Core is everything below the transport layer.
type Core struct {
	Config   *config.Config
	Data     *DataLayer
	Embedder retrieval.Embedder
	Vector   retrieval.VectorStore
	Engine   *retrieval.Engine
	Indexer  *retrieval.Indexer
	Sessions *conversation.Manager
	Chat     *chat.Service
}

type cleanupStack []func()

func (s *cleanupStack) push(f func()) {
	if f != nil {
		*s = append(*s, f)
	}
}

func (s cleanupStack) run() {
	for i := len(s) - 1; i >= 0; i-- {
		s[i]()
	}
}

// InitializeCore builds the retrieval, ingestion and chat services.
func InitializeCore(ctx context.Context, cfg *config.Config) (*Core, func(), error) {
	var cleanups cleanupStack
	fail := func(err error) (*Core, func(), error) {
		cleanups.run()
		return nil, nil, err
	}

	redisClient, cleanup, err := ProvideRedisClientOptional(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	cleanups.push(cleanup)

	pgClient, cleanup := ProvidePostgresClientOptional(ctx, cfg)
	cleanups.push(cleanup)

	data := &DataLayer{RedisClient: redisClient, PgClient: pgClient}
	if pgClient != nil {
		data.Catalog = postgres.NewDocumentRepository(pgClient)
	}

	embedder := ProvideEmbedderOptional(ctx, cfg)

	vector, cleanup, err := ProvideVectorStore(ctx, cfg, embedder, data)
	if err != nil {
		return fail(err)
	}
	cleanups.push(cleanup)

	sessions, err := ProvideConversationManager(cfg, redisClient, pgClient)
	if err != nil {
		return fail(err)
	}
	documents, cleanup, err := ProvideEphemeralStore(ctx, cfg, redisClient)
	if err != nil {
		return fail(err)
	}
	cleanups.push(cleanup)

	engine := retrieval.NewEngine(embedder, vector, cfg.RAG.TopK)
	indexer := retrieval.NewIndexer(embedder, vector, data.Catalog, retrieval.IndexerConfig{
		ChunkSize:       cfg.RAG.ChunkSize,
		ChunkOverlap:    cfg.RAG.ChunkOverlap,
		DefaultCategory: cfg.RAG.DefaultCategory,
		Concurrency:     cfg.Ingest.Concurrency,
	})

	svc := chat.NewService(engine, ProvideCompleter(cfg), sessions, documents, chat.Config{
		SystemPrompt: cfg.RAG.SystemPrompt,
		TopK:         cfg.RAG.TopK,
		HistoryTurns: cfg.RAG.HistoryTurns,
		EphemeralTTL: cfg.Ephemeral.TTL,
		MaxFileBytes: cfg.Ephemeral.MaxFileBytes(),
	})

	return &Core{
		Config:   cfg,
		Data:     data,
		Embedder: embedder,
		Vector:   vector,
		Engine:   engine,
		Indexer:  indexer,
		Sessions: sessions,
		Chat:     svc,
	}, cleanups.run, nil
}

// InitializeApp builds the HTTP router on top of InitializeCore.
func InitializeApp(ctx context.Context, cfg *config.Config, version string) (*router.Router, func(), error) {
	core, cleanup, err := InitializeCore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var (
		publisher handler.JobPublisher
		limiter   *redis.RateLimiter
	)
	if rc := core.Data.RedisClient; rc != nil {
		publisher = ProvideMessagingProducer(rc, cfg)
		limiter = redis.NewRateLimiter(rc)
	}

	maxBytes := cfg.Ephemeral.MaxFileBytes()
	h := router.Handlers{
		Health:    handler.NewHealthHandler(version, ProvideHealthDependencies(cfg, core.Data)...),
		Chat:      handler.NewChatHandler(core.Chat),
		Documents: handler.NewDocumentHandler(core.Indexer, publisher, core.Data.Catalog, maxBytes),
		Ephemeral: handler.NewEphemeralHandler(core.Chat, maxBytes),
	}

	if limiter == nil {
		// a typed nil would defeat the middleware's nil check
		return router.New(cfg, h, nil), cleanup, nil
	}
	return router.New(cfg, h, limiter), cleanup, nil
}

// RedisRequired reports whether a configured feature cannot run without Redis.
func RedisRequired(cfg *config.Config) bool {
	return strings.EqualFold(cfg.Conversation.Persistence, backendRedis) ||
		strings.EqualFold(cfg.Ephemeral.Backend, backendRedis)
}

// ProvideRedisClientOptional fails only when a configured feature requires Redis.
func ProvideRedisClientOptional(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	client, err := redis.NewClient(&cfg.Cache.Redis)
	if err != nil {
		if RedisRequired(cfg) {
			return nil, nil, fmt.Errorf("redis: %w", err)
		}
		logger.Warn(ctx, "redis not available, async ingestion and rate limiting disabled", "error", err.Error())
		return nil, func() {}, nil
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvidePostgresClientOptional returns nil unless postgres is enabled, reachable and migrated.
func ProvidePostgresClientOptional(ctx context.Context, cfg *config.Config) (*postgres.Client, func()) {
	if !cfg.Database.Postgres.Enabled {
		return nil, func() {}
	}
	client, err := postgres.NewClient(&cfg.Database.Postgres)
	if err != nil {
		logger.Warn(ctx, "postgres not available, document catalog disabled", "error", err.Error())
		return nil, func() {}
	}
	if err := client.Migrate(ctx); err != nil {
		logger.Warn(ctx, "postgres migration failed, document catalog disabled", "error", err.Error())
		_ = client.Close()
		return nil, func() {}
	}
	return client, func() { _ = client.Close() }
}

// ProvideEmbedderOptional returns nil when no provider can be built; vector features then report disabled.
func ProvideEmbedderOptional(ctx context.Context, cfg *config.Config) retrieval.Embedder {
	e, err := embedding.NewFromConfig(ctx, &cfg.Embedding)
	if err != nil {
		logger.Warn(ctx, "embedding not available, vector features disabled", "error", err.Error())
		return nil
	}
	logger.Info(ctx, "embedding provider ready", "provider", e.Name(), "dimension", e.Dimension())
	return e
}

// ProvideVectorStore opens the configured backend sized to the embedder's dimension.
func ProvideVectorStore(ctx context.Context, cfg *config.Config, embedder retrieval.Embedder, data *DataLayer) (retrieval.VectorStore, func(), error) {
	if embedder == nil {
		return nil, func() {}, nil
	}
	dim := embedder.Dimension()

	switch strings.ToLower(cfg.Vector.Backend) {
	case config.VectorBackendMilvus:
		client, err := milvus.NewClient(ctx, &cfg.Vector.Milvus)
		if err != nil {
			logger.Warn(ctx, "milvus not available, vector features disabled", "error", err.Error())
			return nil, func() {}, nil
		}
		data.MilvusClient = client
		store := milvus.NewStore(milvus.NewRepository(client), cfg.Vector.Collection, dim)
		return store, func() { _ = client.Close() }, nil

	case config.VectorBackendEmbedded, "":
		store, err := embedded.Open(cfg.Vector.Embedded, cfg.Vector.Collection, dim)
		if err != nil {
			return nil, nil, err
		}
		data.Embedded = store
		return store, func() { _ = store.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
}

func ProvideConversationManager(cfg *config.Config, redisClient *redis.Client, pgClient *postgres.Client) (*conversation.Manager, error) {
	switch strings.ToLower(cfg.Conversation.Persistence) {
	case backendPostgres:
		if pgClient == nil {
			return nil, fmt.Errorf("conversation persistence postgres requires database.postgres.enabled")
		}
		var store conversation.TurnStore = postgres.NewConversationTurnRepository(pgClient)
		return conversation.NewManager(store, cfg.Conversation.MaxStoredTurns), nil
	case backendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("conversation persistence redis requires a redis client")
		}
		store := conversation.NewKVTurnStore(redis.NewCache(redisClient), cfg.Conversation.TTL, redis.IsNil)
		return conversation.NewManager(store, cfg.Conversation.MaxStoredTurns), nil
	case backendMemory, "":
		return conversation.NewManager(nil, cfg.Conversation.MaxStoredTurns), nil
	}
	return nil, fmt.Errorf("unknown conversation persistence %q", cfg.Conversation.Persistence)
}

// ProvideEphemeralStore returns the configured store. The memory store gets a janitor stopped by cleanup.
func ProvideEphemeralStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client) (ephemeral.Store, func(), error) {
	switch strings.ToLower(cfg.Ephemeral.Backend) {
	case backendRedis:
		if redisClient == nil {
			return nil, nil, fmt.Errorf("ephemeral backend redis requires a redis client")
		}
		return redis.NewEphemeralStore(redisClient), func() {}, nil
	case backendMemory, "":
		store := ephemeral.NewMemoryStore()
		jctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		go store.RunJanitor(jctx, janitorInterval(cfg.Ephemeral.TTL))
		return store, cancel, nil
	}
	return nil, nil, fmt.Errorf("unknown ephemeral backend %q", cfg.Ephemeral.Backend)
}

func janitorInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = ephemeral.DefaultTTL
	}
	return min(max(ttl/4, 10*time.Second), 5*time.Minute)
}

func ProvideCompleter(cfg *config.Config) *llm.Completer {
	return llm.NewCompleter(llm.NewEinoFactory(&cfg.LLM), cfg.LLM.DefaultProvider, chatWorkflow)
}

func ProvideMessagingProducer(redisClient *redis.Client, cfg *config.Config) *messaging.Producer {
	maxLen := cfg.Messaging.RedisStream.MaxLen
	if maxLen <= 0 {
		maxLen = 100000
	}
	return messaging.NewProducer(redisClient.Redis(), int64(maxLen))
}

// ProvideHealthDependencies lists readiness checks. The vector backend is required; the rest are optional.
func ProvideHealthDependencies(cfg *config.Config, data *DataLayer) []handler.Dependency {
	deps := make([]handler.Dependency, 0, 3)

	switch {
	case data.MilvusClient != nil:
		deps = append(deps, handler.Dependency{Name: "milvus", Checker: data.MilvusClient, Required: true})
	case data.Embedded != nil:
		deps = append(deps, handler.Dependency{Name: "vector_store", Checker: data.Embedded, Required: true})
	default:
		deps = append(deps, handler.Dependency{Name: "vector_store", Required: true})
	}

	if data.RedisClient != nil {
		deps = append(deps, handler.Dependency{Name: "redis", Checker: data.RedisClient, Required: RedisRequired(cfg)})
	} else {
		deps = append(deps, handler.Dependency{Name: "redis", Required: RedisRequired(cfg)})
	}
	if data.PgClient != nil {
		deps = append(deps, handler.Dependency{Name: "postgres", Checker: data.PgClient})
	}
	return deps
}
