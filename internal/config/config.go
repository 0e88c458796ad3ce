// Package config loads and holds application configuration.
package config

import (
	"fmt"
	"time"
)

// Config is the configuration root.
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Database      DatabaseConfig      `yaml:"database" mapstructure:"database"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Vector        VectorConfig        `yaml:"vector" mapstructure:"vector"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Embedding     EmbeddingConfig     `yaml:"embedding" mapstructure:"embedding"`
	RAG           RAGConfig           `yaml:"rag" mapstructure:"rag"`
	Conversation  ConversationConfig  `yaml:"conversation" mapstructure:"conversation"`
	Ephemeral     EphemeralConfig     `yaml:"ephemeral" mapstructure:"ephemeral"`
	Ingest        IngestConfig        `yaml:"ingest" mapstructure:"ingest"`
	Messaging     MessagingConfig     `yaml:"messaging" mapstructure:"messaging"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
}

type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
}

type ServerConfig struct {
	HTTP HTTPServerConfig `yaml:"http" mapstructure:"http"`
}

type HTTPServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// Addr returns host:port for net/http.
func (c HTTPServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DatabaseConfig struct {
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig backs the document catalog and, optionally, conversation history. Disabled leaves both out.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

type CacheConfig struct {
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`
}

type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

const (
	VectorBackendEmbedded = "embedded"
	VectorBackendMilvus   = "milvus"
)

// VectorConfig selects and configures the vector store backend.
type VectorConfig struct {
	Backend    string         `yaml:"backend" mapstructure:"backend"`
	Collection string         `yaml:"collection" mapstructure:"collection"`
	Milvus     MilvusConfig   `yaml:"milvus" mapstructure:"milvus"`
	Embedded   EmbeddedConfig `yaml:"embedded" mapstructure:"embedded"`
}

type MilvusConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	CollectionPrefix   string `yaml:"collection_prefix" mapstructure:"collection_prefix"`
	HNSWM              int    `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	HNSWEfConstruction int    `yaml:"hnsw_ef_construction" mapstructure:"hnsw_ef_construction"`
	SearchEf           int    `yaml:"search_ef" mapstructure:"search_ef"`
}

// EmbeddedConfig configures the SQLite + in-memory HNSW backend.
type EmbeddedConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	HNSWM    int    `yaml:"hnsw_m" mapstructure:"hnsw_m"`
	EfSearch int    `yaml:"ef_search" mapstructure:"ef_search"`
}

type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
}

type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

const (
	EmbeddingProviderAuto   = "auto"
	EmbeddingProviderLocal  = "local"
	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderGemini = "gemini"
)

// EmbeddingConfig selects one provider for the lifetime of the process.
type EmbeddingConfig struct {
	Provider       string                `yaml:"provider" mapstructure:"provider"`
	PoolSize       int                   `yaml:"pool_size" mapstructure:"pool_size"`
	QueryCacheSize int                   `yaml:"query_cache_size" mapstructure:"query_cache_size"`
	Local          LocalEmbeddingConfig  `yaml:"local" mapstructure:"local"`
	OpenAI         RemoteEmbeddingConfig `yaml:"openai" mapstructure:"openai"`
	Gemini         RemoteEmbeddingConfig `yaml:"gemini" mapstructure:"gemini"`
}

type LocalEmbeddingConfig struct {
	Enabled   bool `yaml:"enabled" mapstructure:"enabled"`
	Dimension int  `yaml:"dimension" mapstructure:"dimension"`
}

type RemoteEmbeddingConfig struct {
	APIKey         string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL        string        `yaml:"base_url" mapstructure:"base_url"`
	Model          string        `yaml:"model" mapstructure:"model"`
	Dimension      int           `yaml:"dimension" mapstructure:"dimension"`
	BatchSize      int           `yaml:"batch_size" mapstructure:"batch_size"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSec float64       `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int           `yaml:"burst" mapstructure:"burst"`
}

// RAGConfig holds chunking, ranking and prompt settings.
type RAGConfig struct {
	ChunkSize       int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap    int    `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
	TopK            int    `yaml:"top_k" mapstructure:"top_k"`
	HistoryTurns    int    `yaml:"history_turns" mapstructure:"history_turns"`
	DefaultCategory string `yaml:"default_category" mapstructure:"default_category"`
	SystemPrompt    string `yaml:"system_prompt" mapstructure:"system_prompt"`
}

type ConversationConfig struct {
	MaxStoredTurns int           `yaml:"max_stored_turns" mapstructure:"max_stored_turns"`
	Persistence    string        `yaml:"persistence" mapstructure:"persistence"` // memory|redis|postgres
	TTL            time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

type EphemeralConfig struct {
	Backend       string        `yaml:"backend" mapstructure:"backend"` // memory|redis
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	MaxFileSizeMB int           `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb"`
}

// MaxFileBytes is MaxFileSizeMB in bytes.
func (c EphemeralConfig) MaxFileBytes() int64 {
	return int64(c.MaxFileSizeMB) << 20
}

type IngestConfig struct {
	Concurrency int      `yaml:"concurrency" mapstructure:"concurrency"`
	Extensions  []string `yaml:"extensions" mapstructure:"extensions"`
}

type MessagingConfig struct {
	RedisStream RedisStreamConfig `yaml:"redis_stream" mapstructure:"redis_stream"`
}

type RedisStreamConfig struct {
	Stream        string        `yaml:"stream" mapstructure:"stream"`
	ConsumerGroup string        `yaml:"consumer_group" mapstructure:"consumer_group"`
	MaxLen        int           `yaml:"max_len" mapstructure:"max_len"`
	BlockTimeout  time.Duration `yaml:"block_timeout" mapstructure:"block_timeout"`
	ClaimInterval time.Duration `yaml:"claim_interval" mapstructure:"claim_interval"`
	RetryLimit    int           `yaml:"retry_limit" mapstructure:"retry_limit"`
	RetryBackoff  BackoffConfig `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial" mapstructure:"initial"`
	Max        time.Duration `yaml:"max" mapstructure:"max"`
	Multiplier float64       `yaml:"multiplier" mapstructure:"multiplier"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	Insecure   bool    `yaml:"insecure" mapstructure:"insecure"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
}

// RateLimitConfig drives the Redis sliding-window limiter.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Requests int           `yaml:"requests" mapstructure:"requests"`
	Window   time.Duration `yaml:"window" mapstructure:"window"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}
