// Package config provides configuration management for the paper search engine.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PAPERSEARCH"

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Config holds all configuration for the paper search engine.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Database contains PostgreSQL connection settings.
	Database DatabaseConfig `mapstructure:"database"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Kafka contains event publishing and batch request consumption settings.
	Kafka KafkaConfig `mapstructure:"kafka"`
	// PaperSources contains provider API configurations.
	PaperSources PaperSourcesConfig `mapstructure:"paper_sources"`
	// Resilience contains per-provider timeout, retry and breaker settings.
	Resilience ResilienceConfig `mapstructure:"resilience"`
	// Cache contains provider result cache settings.
	Cache CacheConfig `mapstructure:"cache"`
	// Expansion contains query expansion settings.
	Expansion ExpansionConfig `mapstructure:"expansion"`
	// Ranking contains ranking weights and semantic re-rank settings.
	Ranking RankingConfig `mapstructure:"ranking"`
	// LLM contains chat model settings for query rewriting.
	LLM LLMConfig `mapstructure:"llm"`
	// Embedding contains embedding model settings.
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	// PDF contains full-text download and extraction settings.
	PDF PDFConfig `mapstructure:"pdf"`
	// Ingestion contains ingestion pipeline settings.
	Ingestion IngestionConfig `mapstructure:"ingestion"`
	// Batch contains batch search pacing settings.
	Batch BatchConfig `mapstructure:"batch"`
	// Qdrant contains Qdrant vector store settings.
	Qdrant QdrantConfig `mapstructure:"qdrant"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response. Batch
	// requests hold the connection for the whole batch.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Enabled turns persistence on. Without a database the engine still
	// searches, but ingestion is unavailable.
	Enabled bool `mapstructure:"enabled"`
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is the database password (use environment variable in production).
	Password string `mapstructure:"password"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// MaxConns is the maximum number of connections in the pool (default: 20).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 2).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationPath is the path to migration files (relative or absolute).
	MigrationPath string `mapstructure:"migration_path"`
	// MigrationAutoRun enables automatic migration on startup (default: false).
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
	// StatementCacheCapacity is the size of the prepared statement cache.
	StatementCacheCapacity int `mapstructure:"statement_cache_capacity"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// KafkaConfig holds Kafka settings.
type KafkaConfig struct {
	// Enabled controls whether events are published and batch requests consumed.
	Enabled bool `mapstructure:"enabled"`
	// Brokers is the list of Kafka broker addresses.
	Brokers []string `mapstructure:"brokers"`
	// EventsTopic receives paper.ingested and search.batch_completed events.
	EventsTopic string `mapstructure:"events_topic"`
	// RequestsTopic carries search.requested events for the worker.
	RequestsTopic string `mapstructure:"requests_topic"`
	// GroupID is the consumer group of the worker.
	GroupID string `mapstructure:"group_id"`
	// BatchSize is the maximum number of messages to batch before sending.
	BatchSize int `mapstructure:"batch_size"`
	// BatchTimeout is the maximum time to wait for a batch to fill before sending.
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// PaperSourcesConfig holds configuration for all paper source APIs.
type PaperSourcesConfig struct {
	// SemanticScholar contains Semantic Scholar API settings.
	SemanticScholar PaperSourceConfig `mapstructure:"semantic_scholar"`
	// OpenAlex contains OpenAlex API settings.
	OpenAlex PaperSourceConfig `mapstructure:"openalex"`
	// Scopus contains Scopus API settings.
	Scopus PaperSourceConfig `mapstructure:"scopus"`
	// PubMed contains PubMed API settings.
	PubMed PaperSourceConfig `mapstructure:"pubmed"`
	// BioRxiv contains bioRxiv API settings.
	BioRxiv PaperSourceConfig `mapstructure:"biorxiv"`
	// ArXiv contains arXiv API settings.
	ArXiv PaperSourceConfig `mapstructure:"arxiv"`
	// Unpaywall contains the open-access PDF resolver settings.
	Unpaywall UnpaywallConfig `mapstructure:"unpaywall"`
}

// PaperSourceConfig holds configuration for a single paper source API.
type PaperSourceConfig struct {
	// Enabled controls whether this source is used.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key (loaded from environment variable, e.g. PAPERSEARCH_PAPER_SOURCES_SEMANTIC_SCHOLAR_API_KEY).
	APIKey string `mapstructure:"-"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Email identifies the caller to providers with a polite pool.
	Email string `mapstructure:"email"`
	// Timeout is the transport timeout for API calls.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// MaxResults is the maximum results per query.
	MaxResults int `mapstructure:"max_results"`
}

// UnpaywallConfig holds the Unpaywall resolver configuration.
type UnpaywallConfig struct {
	// Enabled controls whether missing PDF links are resolved during ingestion.
	Enabled bool `mapstructure:"enabled"`
	// Email is required by Unpaywall on every request.
	Email string `mapstructure:"email"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Timeout is the request timeout.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// ScrapeLandingPages enables the citation_pdf_url fallback.
	ScrapeLandingPages bool `mapstructure:"scrape_landing_pages"`
}

// ResilienceConfig holds the per-provider call policy.
type ResilienceConfig struct {
	// Timeout bounds one provider attempt.
	Timeout time.Duration `mapstructure:"timeout"`
	// FastTimeout replaces Timeout in fast mode.
	FastTimeout time.Duration `mapstructure:"fast_timeout"`
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int `mapstructure:"max_attempts"`
	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	// BackoffMultiplier controls exponential growth of the backoff.
	BackoffMultiplier float64 `mapstructure:"backoff_multiplier"`
	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
	// MaxRetryAfter caps a provider-declared Retry-After.
	MaxRetryAfter time.Duration `mapstructure:"max_retry_after"`
	// FailureThreshold is the number of consecutive failures that opens a breaker.
	FailureThreshold int `mapstructure:"failure_threshold"`
	// Cooldown is how long an open breaker rejects calls.
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// CacheConfig holds provider result cache settings.
type CacheConfig struct {
	// Enabled turns the cache on.
	Enabled bool `mapstructure:"enabled"`
	// TTL is how long a provider response stays valid.
	TTL time.Duration `mapstructure:"ttl"`
	// Capacity is the maximum number of cached responses.
	Capacity int `mapstructure:"capacity"`
}

// ExpansionConfig holds query expansion settings.
type ExpansionConfig struct {
	// MaxVariants bounds the number of variants, original included.
	MaxVariants int `mapstructure:"max_variants"`
	// DisableSynonyms turns the abbreviation table off.
	DisableSynonyms bool `mapstructure:"disable_synonyms"`
	// Synonyms adds to or overrides the built-in abbreviation table.
	Synonyms map[string]string `mapstructure:"synonyms"`
	// UseLLM adds chat-model paraphrases when an LLM API key is set.
	UseLLM bool `mapstructure:"use_llm"`
}

// RankingConfig holds ranking settings.
type RankingConfig struct {
	// RelevanceWeight, AuthorityWeight and RecencyWeight combine the signals.
	RelevanceWeight float64 `mapstructure:"relevance_weight"`
	AuthorityWeight float64 `mapstructure:"authority_weight"`
	RecencyWeight   float64 `mapstructure:"recency_weight"`
	// BM25K1 and BM25B are the BM25 saturation and length normalization parameters.
	BM25K1 float64 `mapstructure:"bm25_k1"`
	BM25B  float64 `mapstructure:"bm25_b"`
	// TitleWeight multiplies title term frequencies.
	TitleWeight float64 `mapstructure:"title_weight"`
	// Semantic enables embedding re-rank when an embedding API key is set.
	Semantic bool `mapstructure:"semantic"`
	// SemanticMinCandidates is the smallest candidate set worth re-ranking.
	SemanticMinCandidates int `mapstructure:"semantic_min_candidates"`
	// SemanticMinSimilarity drops candidates below this cosine similarity.
	SemanticMinSimilarity float64 `mapstructure:"semantic_min_similarity"`
}

// LLMConfig holds chat model settings.
type LLMConfig struct {
	// APIKey is the OpenAI-compatible API key (loaded from PAPERSEARCH_LLM_API_KEY).
	APIKey string `mapstructure:"-"`
	// Model is the chat model.
	Model string `mapstructure:"model"`
	// BaseURL is the API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
	// Temperature is the sampling temperature.
	Temperature float64 `mapstructure:"temperature"`
	// Timeout bounds one model call.
	Timeout time.Duration `mapstructure:"timeout"`
}

// EmbeddingConfig holds embedding model settings.
type EmbeddingConfig struct {
	// APIKey is the OpenAI-compatible API key (loaded from PAPERSEARCH_EMBEDDING_API_KEY).
	APIKey string `mapstructure:"-"`
	// Model is the embedding model.
	Model string `mapstructure:"model"`
	// BaseURL is the API base URL (for custom endpoints).
	BaseURL string `mapstructure:"base_url"`
	// Dimensions is the vector size produced by Model.
	Dimensions int `mapstructure:"dimensions"`
	// BatchSize bounds the texts sent per request.
	BatchSize int `mapstructure:"batch_size"`
	// CacheSize is the number of embeddings kept in memory.
	CacheSize int `mapstructure:"cache_size"`
	// Timeout bounds one embedding request.
	Timeout time.Duration `mapstructure:"timeout"`
}

// PDFConfig holds full-text download and extraction settings.
type PDFConfig struct {
	// Enabled turns full-text extraction on.
	Enabled bool `mapstructure:"enabled"`
	// Timeout bounds one download.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxSize is the largest accepted PDF in bytes.
	MaxSize int64 `mapstructure:"max_size"`
	// UserAgent is sent with downloads.
	UserAgent string `mapstructure:"user_agent"`
	// MaxPages bounds the pages read per document.
	MaxPages int `mapstructure:"max_pages"`
	// MaxChars bounds the extracted text length.
	MaxChars int `mapstructure:"max_chars"`
	// AllowPrivateNetworks permits downloads from private addresses.
	AllowPrivateNetworks bool `mapstructure:"allow_private_networks"`
}

// IngestionConfig holds ingestion pipeline settings.
type IngestionConfig struct {
	// ChunkMaxChars is the target chunk length.
	ChunkMaxChars int `mapstructure:"chunk_max_chars"`
	// ChunkOverlap is the number of characters carried between chunks.
	ChunkOverlap int `mapstructure:"chunk_overlap"`
	// Concurrency bounds papers ingested in parallel.
	Concurrency int `mapstructure:"concurrency"`
	// ExtractTimeout bounds full-text extraction per paper.
	ExtractTimeout time.Duration `mapstructure:"extract_timeout"`
	// PaperTimeout bounds the whole ingestion of one paper.
	PaperTimeout time.Duration `mapstructure:"paper_timeout"`
	// FetchReferences stores cited works of newly ingested papers.
	FetchReferences bool `mapstructure:"fetch_references"`
	// MaxReferences caps references stored per paper.
	MaxReferences int `mapstructure:"max_references"`
}

// BatchConfig holds batch search pacing settings.
type BatchConfig struct {
	// BaseDelay is the initial pause between queries.
	BaseDelay time.Duration `mapstructure:"base_delay"`
	// Multiplier lengthens the pause after a rate limit.
	Multiplier float64 `mapstructure:"multiplier"`
	// MaxDelay caps the pause.
	MaxDelay time.Duration `mapstructure:"max_delay"`
	// MaxQueries caps queries per batch.
	MaxQueries int `mapstructure:"max_queries"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Enabled turns vector indexing of ingested papers on.
	Enabled bool `mapstructure:"enabled"`
	// Address is the Qdrant gRPC address.
	Address string `mapstructure:"address"`
	// APIKey authenticates against Qdrant Cloud (loaded from PAPERSEARCH_QDRANT_API_KEY).
	APIKey string `mapstructure:"-"`
	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool `mapstructure:"use_tls"`
	// CollectionName is the name of the collection for paper embeddings.
	CollectionName string `mapstructure:"collection_name"`
	// VectorSize is the embedding dimension (must match the embedding model).
	VectorSize uint64 `mapstructure:"vector_size"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}
	if c.StatementCacheCapacity > 0 {
		params.Set("statement_cache_capacity", fmt.Sprintf("%d", c.StatementCacheCapacity))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// HTTPAddress returns the HTTP server address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path searches
// the default locations.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/paper-search-engine")
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
func loadSecrets(cfg *Config) {
	cfg.LLM.APIKey = os.Getenv(EnvPrefix + "_LLM_API_KEY")
	cfg.Embedding.APIKey = os.Getenv(EnvPrefix + "_EMBEDDING_API_KEY")
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = cfg.LLM.APIKey
	}
	cfg.Qdrant.APIKey = os.Getenv(EnvPrefix + "_QDRANT_API_KEY")

	// Paper source API keys.
	cfg.PaperSources.SemanticScholar.APIKey = os.Getenv(EnvPrefix + "_PAPER_SOURCES_SEMANTIC_SCHOLAR_API_KEY")
	cfg.PaperSources.OpenAlex.APIKey = os.Getenv(EnvPrefix + "_PAPER_SOURCES_OPENALEX_API_KEY")
	cfg.PaperSources.Scopus.APIKey = os.Getenv(EnvPrefix + "_PAPER_SOURCES_SCOPUS_API_KEY")
	cfg.PaperSources.PubMed.APIKey = os.Getenv(EnvPrefix + "_PAPER_SOURCES_PUBMED_API_KEY")
	cfg.PaperSources.BioRxiv.APIKey = os.Getenv(EnvPrefix + "_PAPER_SOURCES_BIORXIV_API_KEY")
	cfg.PaperSources.ArXiv.APIKey = os.Getenv(EnvPrefix + "_PAPER_SOURCES_ARXIV_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "papersearch")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "paper_search")
	// Default to "require" for production security. Use PAPERSEARCH_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("database.ssl_mode", SSLModeRequire)
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")
	v.SetDefault("database.health_check_period", "30s")
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.migration_path", "migrations")
	v.SetDefault("database.migration_auto_run", false)
	v.SetDefault("database.statement_cache_capacity", 512)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "paper_search")

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.events_topic", "paper_search.events")
	v.SetDefault("kafka.requests_topic", "search.requests")
	v.SetDefault("kafka.group_id", "paper-search-worker")
	v.SetDefault("kafka.batch_size", 100)
	v.SetDefault("kafka.batch_timeout", "10ms")

	// Paper sources defaults - Semantic Scholar
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("paper_sources.semantic_scholar.enabled", true)
	v.SetDefault("paper_sources.semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("paper_sources.semantic_scholar.timeout", "30s")
	v.SetDefault("paper_sources.semantic_scholar.rate_limit", 1.0)
	v.SetDefault("paper_sources.semantic_scholar.max_results", 100)

	// Paper sources defaults - OpenAlex
	v.SetDefault("paper_sources.openalex.enabled", true)
	v.SetDefault("paper_sources.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("paper_sources.openalex.timeout", "30s")
	v.SetDefault("paper_sources.openalex.rate_limit", 10.0)
	v.SetDefault("paper_sources.openalex.max_results", 200)

	// Paper sources defaults - Scopus (disabled by default, requires API key)
	v.SetDefault("paper_sources.scopus.enabled", false)
	v.SetDefault("paper_sources.scopus.base_url", "https://api.elsevier.com/content")
	v.SetDefault("paper_sources.scopus.timeout", "30s")
	v.SetDefault("paper_sources.scopus.rate_limit", 5.0)
	v.SetDefault("paper_sources.scopus.max_results", 100)

	// Paper sources defaults - PubMed
	v.SetDefault("paper_sources.pubmed.enabled", true)
	v.SetDefault("paper_sources.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("paper_sources.pubmed.timeout", "30s")
	v.SetDefault("paper_sources.pubmed.rate_limit", 3.0) // NCBI recommends max 3 req/sec without API key
	v.SetDefault("paper_sources.pubmed.max_results", 100)

	// Paper sources defaults - bioRxiv
	v.SetDefault("paper_sources.biorxiv.enabled", true)
	v.SetDefault("paper_sources.biorxiv.base_url", "https://api.biorxiv.org")
	v.SetDefault("paper_sources.biorxiv.timeout", "30s")
	v.SetDefault("paper_sources.biorxiv.rate_limit", 5.0)
	v.SetDefault("paper_sources.biorxiv.max_results", 100)

	// Paper sources defaults - arXiv
	v.SetDefault("paper_sources.arxiv.enabled", true)
	v.SetDefault("paper_sources.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("paper_sources.arxiv.timeout", "30s")
	v.SetDefault("paper_sources.arxiv.rate_limit", 3.0) // arXiv recommends max 3 req/sec
	v.SetDefault("paper_sources.arxiv.max_results", 100)

	// Unpaywall defaults (needs a contact email to be useful)
	v.SetDefault("paper_sources.unpaywall.enabled", false)
	v.SetDefault("paper_sources.unpaywall.base_url", "https://api.unpaywall.org/v2")
	v.SetDefault("paper_sources.unpaywall.timeout", "15s")
	v.SetDefault("paper_sources.unpaywall.rate_limit", 10.0)
	v.SetDefault("paper_sources.unpaywall.scrape_landing_pages", true)

	// Resilience defaults
	v.SetDefault("resilience.timeout", "15s")
	v.SetDefault("resilience.fast_timeout", "5s")
	v.SetDefault("resilience.max_attempts", 3)
	v.SetDefault("resilience.initial_backoff", "500ms")
	v.SetDefault("resilience.backoff_multiplier", 2.0)
	v.SetDefault("resilience.max_backoff", "8s")
	v.SetDefault("resilience.max_retry_after", "30s")
	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.cooldown", "60s")

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.capacity", 512)

	// Expansion defaults
	v.SetDefault("expansion.max_variants", 5)
	v.SetDefault("expansion.disable_synonyms", false)
	v.SetDefault("expansion.use_llm", false)

	// Ranking defaults
	v.SetDefault("ranking.relevance_weight", 3.0)
	v.SetDefault("ranking.authority_weight", 0.5)
	v.SetDefault("ranking.recency_weight", 1.0)
	v.SetDefault("ranking.bm25_k1", 1.5)
	v.SetDefault("ranking.bm25_b", 0.75)
	v.SetDefault("ranking.title_weight", 2.0)
	v.SetDefault("ranking.semantic", true)
	v.SetDefault("ranking.semantic_min_candidates", 10)
	v.SetDefault("ranking.semantic_min_similarity", 0.2)

	// LLM defaults
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeout", "20s")

	// Embedding defaults
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.cache_size", 4096)
	v.SetDefault("embedding.timeout", "30s")

	// PDF defaults
	v.SetDefault("pdf.enabled", true)
	v.SetDefault("pdf.timeout", "60s")
	v.SetDefault("pdf.max_size", 50<<20)
	v.SetDefault("pdf.user_agent", "Mozilla/5.0 (compatible; PaperSearch/1.0)")
	v.SetDefault("pdf.max_pages", 60)
	v.SetDefault("pdf.max_chars", 200000)
	v.SetDefault("pdf.allow_private_networks", false)

	// Ingestion defaults
	v.SetDefault("ingestion.chunk_max_chars", 1200)
	v.SetDefault("ingestion.chunk_overlap", 0)
	v.SetDefault("ingestion.concurrency", 4)
	v.SetDefault("ingestion.extract_timeout", "90s")
	v.SetDefault("ingestion.paper_timeout", "5m")
	v.SetDefault("ingestion.fetch_references", true)
	v.SetDefault("ingestion.max_references", 200)

	// Batch defaults
	v.SetDefault("batch.base_delay", "1s")
	v.SetDefault("batch.multiplier", 2.0)
	v.SetDefault("batch.max_delay", "30s")
	v.SetDefault("batch.max_queries", 50)

	// Qdrant defaults
	v.SetDefault("qdrant.enabled", false)
	v.SetDefault("qdrant.address", "localhost:6334")
	v.SetDefault("qdrant.use_tls", false)
	v.SetDefault("qdrant.collection_name", "papers")
	v.SetDefault("qdrant.vector_size", 1536) // text-embedding-3-small
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}

	// Validate database config
	if c.Database.Enabled {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
		if c.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns (%d) must be >= min_conns (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate Kafka config
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers are required when kafka is enabled")
	}

	// Validate provider call policy
	if c.Resilience.Timeout <= 0 {
		return fmt.Errorf("resilience timeout must be positive")
	}
	if c.Resilience.FastTimeout > c.Resilience.Timeout {
		return fmt.Errorf("resilience fast_timeout (%s) must not exceed timeout (%s)", c.Resilience.FastTimeout, c.Resilience.Timeout)
	}
	if c.Resilience.MaxAttempts <= 0 {
		return fmt.Errorf("resilience max_attempts must be positive")
	}

	if c.Cache.Enabled && c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache capacity must be positive when the cache is enabled")
	}

	// Validate ranking weights
	if c.Ranking.RelevanceWeight < 0 || c.Ranking.AuthorityWeight < 0 || c.Ranking.RecencyWeight < 0 {
		return fmt.Errorf("ranking weights must not be negative")
	}
	if c.Ranking.BM25B < 0 || c.Ranking.BM25B > 1 {
		return fmt.Errorf("ranking bm25_b must be between 0 and 1")
	}

	if c.Batch.Multiplier < 1 {
		return fmt.Errorf("batch multiplier must be at least 1")
	}

	if c.PaperSources.Unpaywall.Enabled && c.PaperSources.Unpaywall.Email == "" {
		return fmt.Errorf("unpaywall requires paper_sources.unpaywall.email")
	}

	// Vectors are only written for embedded papers.
	if c.Qdrant.Enabled {
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("qdrant indexing requires %s_EMBEDDING_API_KEY (or %s_LLM_API_KEY) to be set", EnvPrefix, EnvPrefix)
		}
		if c.Qdrant.VectorSize != uint64(c.Embedding.Dimensions) {
			return fmt.Errorf("qdrant vector_size (%d) must match embedding dimensions (%d)", c.Qdrant.VectorSize, c.Embedding.Dimensions)
		}
	}

	return nil
}
