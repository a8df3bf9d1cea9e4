package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/recallhq/recall/pkg/database"
)

// DefaultTemplate is the enhance-prompt template used when the config does
// not provide one.
const DefaultTemplate = `Use the following context to answer the question.

Context:
{{context}}

Question:
{{prompt}}`

// Config is the root configuration, decoded from HCL.
type Config struct {
	Logging  *LoggingConfig  `hcl:"logging,block"`
	Database *DatabaseConfig `hcl:"database,block"`
	LLM      *LLMConfig      `hcl:"llm,block"`
	Chunking *ChunkingConfig `hcl:"chunking,block"`
	Search   *SearchConfig   `hcl:"search,block"`
	Ingest   *IngestConfig   `hcl:"ingest,block"`
	Index    *IndexConfig    `hcl:"index,block"`
	Sources  *SourcesConfig  `hcl:"sources,block"`

	// PromptTemplate is the enhance-prompt template. It must contain the
	// {{context}} and {{prompt}} placeholders.
	PromptTemplate string `hcl:"prompt_template,optional"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level string `hcl:"level,optional"` // debug|info|warn|error|fatal
	File  string `hcl:"file,optional"`
}

// DatabaseConfig selects and parameterizes the storage backend.
type DatabaseConfig struct {
	Adapter  string `hcl:"adapter,optional"` // postgres | sqlite
	URL      string `hcl:"url,optional"`     // overrides discrete fields
	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	Name     string `hcl:"name,optional"`
	User     string `hcl:"user,optional"`
	Password string `hcl:"password,optional"`
	SSLMode  string `hcl:"ssl_mode,optional"`

	// Path is the SQLite database file.
	Path string `hcl:"path,optional"`

	MaxIdleConns int `hcl:"max_idle_conns,optional"`
	MaxOpenConns int `hcl:"max_open_conns,optional"`
}

// LLMConfig configures providers and AI tasks.
type LLMConfig struct {
	// DefaultProvider handles tasks without a per-task override.
	DefaultProvider string `hcl:"default_provider,optional"`

	Embedding     *EmbeddingConfig     `hcl:"embedding,block"`
	Summarization *SummarizationConfig `hcl:"summarization,block"`
	Keywords      *KeywordsConfig      `hcl:"keywords,block"`

	// Providers hold per-provider credentials and endpoints.
	Providers []ProviderConfig `hcl:"provider,block"`
}

// ProviderConfig holds credentials and endpoint settings for one provider.
type ProviderConfig struct {
	Name         string `hcl:"name,label"`
	APIKey       string `hcl:"api_key,optional"`
	BaseURL      string `hcl:"base_url,optional"`
	Model        string `hcl:"model,optional"`
	APIVersion   string `hcl:"api_version,optional"`   // azure
	ResourceName string `hcl:"resource_name,optional"` // azure
	Region       string `hcl:"region,optional"`        // bedrock
}

// EmbeddingConfig configures embedding generation.
type EmbeddingConfig struct {
	Provider      string `hcl:"provider,optional"`        // e.g., "openai"
	Model         string `hcl:"model,optional"`           // e.g., "text-embedding-3-small"
	Dimensions    int    `hcl:"dimensions,optional"`      // e.g., 1536
	MaxInputChars int    `hcl:"max_input_chars,optional"` // e.g., 8000
}

// SummarizationConfig configures summary generation.
type SummarizationConfig struct {
	Enabled *bool `hcl:"enabled,optional"` // default true

	// Model optionally pins summarization to "provider/model".
	Model            string `hcl:"model,optional"`
	MinContentLength int    `hcl:"min_content_length,optional"`
	MaxLength        int    `hcl:"max_length,optional"`
}

// IsEnabled reports whether summarization should run.
func (s *SummarizationConfig) IsEnabled() bool {
	return s == nil || s.Enabled == nil || *s.Enabled
}

// KeywordsConfig configures keyword extraction.
type KeywordsConfig struct {
	Max   int    `hcl:"max,optional"`
	Model string `hcl:"model,optional"`
}

// ChunkingConfig configures the text chunker.
type ChunkingConfig struct {
	Size    int `hcl:"size,optional"`
	Overlap int `hcl:"overlap,optional"`
}

// SearchConfig configures ranking. Zero weights coerce to defaults; disable
// components through usage_ranking.enabled or per-call options instead.
type SearchConfig struct {
	SimilarityThreshold float64 `hcl:"similarity_threshold,optional"`
	SemanticWeight      float64 `hcl:"semantic_weight,optional"`
	TextWeight          float64 `hcl:"text_weight,optional"`

	UsageRanking *UsageRankingConfig `hcl:"usage_ranking,block"`
}

// UsageRankingConfig configures the usage score component.
type UsageRankingConfig struct {
	Enabled         *bool   `hcl:"enabled,optional"` // default true
	FrequencyWeight float64 `hcl:"frequency_weight,optional"`
	RecencyWeight   float64 `hcl:"recency_weight,optional"`
}

// IsEnabled reports whether usage ranking contributes to scores.
func (u *UsageRankingConfig) IsEnabled() bool {
	return u == nil || u.Enabled == nil || *u.Enabled
}

// IngestConfig configures the processing pipeline.
type IngestConfig struct {
	Workers   int `hcl:"workers,optional"`
	QueueSize int `hcl:"queue_size,optional"`

	Kafka *KafkaConfig `hcl:"kafka,block"`
}

// KafkaConfig configures distributed ingest over Kafka/Redpanda.
type KafkaConfig struct {
	Enabled       bool     `hcl:"enabled,optional"`
	Brokers       []string `hcl:"brokers,optional"`
	Topic         string   `hcl:"topic,optional"`
	ConsumerGroup string   `hcl:"consumer_group,optional"`
}

// IndexConfig selects lexical and vector index backends.
type IndexConfig struct {
	Lexical string `hcl:"lexical,optional"` // database | bleve | meilisearch | algolia
	Vector  string `hcl:"vector,optional"`  // store | qdrant | chromem

	Bleve       *BleveConfig       `hcl:"bleve,block"`
	Meilisearch *MeilisearchConfig `hcl:"meilisearch,block"`
	Algolia     *AlgoliaConfig     `hcl:"algolia,block"`
	Qdrant      *QdrantConfig      `hcl:"qdrant,block"`
	Chromem     *ChromemConfig     `hcl:"chromem,block"`
}

// BleveConfig configures the embedded bleve index.
type BleveConfig struct {
	Path string `hcl:"path,optional"`
}

// MeilisearchConfig configures a Meilisearch lexical index.
type MeilisearchConfig struct {
	Host   string `hcl:"host,optional"`
	APIKey string `hcl:"api_key,optional"`
	Index  string `hcl:"index,optional"`
}

// AlgoliaConfig configures an Algolia lexical index.
type AlgoliaConfig struct {
	AppID  string `hcl:"app_id,optional"`
	APIKey string `hcl:"api_key,optional"`
	Index  string `hcl:"index,optional"`
}

// QdrantConfig configures a Qdrant vector index.
type QdrantConfig struct {
	Addr       string `hcl:"addr,optional"`
	APIKey     string `hcl:"api_key,optional"`
	Collection string `hcl:"collection,optional"`
	UseTLS     bool   `hcl:"use_tls,optional"`
}

// ChromemConfig configures an embedded chromem-go vector index.
type ChromemConfig struct {
	Path string `hcl:"path,optional"`
}

// SourcesConfig configures remote document sources.
type SourcesConfig struct {
	S3 *S3Config `hcl:"s3,block"`
}

// S3Config configures an S3 or MinIO source.
type S3Config struct {
	Bucket       string `hcl:"bucket,optional"`
	Region       string `hcl:"region,optional"`
	Endpoint     string `hcl:"endpoint,optional"`
	AccessKey    string `hcl:"access_key,optional"`
	SecretKey    string `hcl:"secret_key,optional"`
	UsePathStyle bool   `hcl:"use_path_style,optional"`
}

// Default returns the configuration used when no file is present:
// every block populated with defaults and environment overrides applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

// Normalize fills zero values with defaults, without consulting the
// environment. Configurations assembled in code should be normalized
// before use so every consumer sees concrete settings.
func (c *Config) Normalize() *Config {
	c.applyDefaults()
	return c
}

// DefaultPath returns the config file path, honoring RECALL_CONFIG.
func DefaultPath() string {
	if path := os.Getenv("RECALL_CONFIG"); path != "" {
		return path
	}
	return "recall.hcl"
}

// Load reads and validates the configuration file at filename.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("configuration file path is required")
	}

	// Check if file exists
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", filename)
	}

	var cfg Config
	if err := hclsimple.DecodeFile(filename, nil, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault loads DefaultPath() when it exists, otherwise Default().
func LoadDefault() (*Config, error) {
	path := DefaultPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

// applyEnv copies recognized environment variables into unset fields.
// Explicit config values always win over the environment.
func (c *Config) applyEnv() {
	envKeys := map[string]string{
		"openai":      "OPENAI_API_KEY",
		"anthropic":   "ANTHROPIC_API_KEY",
		"google":      "GOOGLE_API_KEY",
		"azure":       "AZURE_OPENAI_API_KEY",
		"huggingface": "HUGGINGFACE_API_KEY",
		"openrouter":  "OPENROUTER_API_KEY",
	}
	for provider, envKey := range envKeys {
		value := os.Getenv(envKey)
		if value == "" {
			continue
		}
		p := c.ensureProvider(provider)
		if p.APIKey == "" {
			p.APIKey = value
		}
	}

	if endpoint := os.Getenv("OLLAMA_ENDPOINT"); endpoint != "" {
		p := c.ensureProvider("ollama")
		if p.BaseURL == "" {
			p.BaseURL = endpoint
		}
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		if c.Database == nil {
			c.Database = &DatabaseConfig{}
		}
		if c.Database.URL == "" {
			c.Database.URL = dbURL
		}
	}

	if level := os.Getenv("RECALL_LOG_LEVEL"); level != "" {
		if c.Logging == nil {
			c.Logging = &LoggingConfig{}
		}
		if c.Logging.Level == "" {
			c.Logging.Level = level
		}
	}
}

// applyDefaults fills zero values so every consumer sees concrete settings.
func (c *Config) applyDefaults() {
	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "warn"
	}

	if c.Database == nil {
		c.Database = &DatabaseConfig{}
	}
	if c.Database.Adapter == "" {
		if c.Database.URL != "" || c.Database.Host != "" {
			c.Database.Adapter = database.DriverPostgres
		} else {
			c.Database.Adapter = database.DriverSQLite
		}
	}
	if c.Database.Adapter == database.DriverSQLite && c.Database.Path == "" {
		c.Database.Path = "recall.db"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}

	if c.LLM == nil {
		c.LLM = &LLMConfig{}
	}
	if c.LLM.DefaultProvider == "" {
		c.LLM.DefaultProvider = "openai"
	}
	if c.LLM.Embedding == nil {
		c.LLM.Embedding = &EmbeddingConfig{}
	}
	if c.LLM.Embedding.Provider == "" {
		c.LLM.Embedding.Provider = c.LLM.DefaultProvider
	}
	if c.LLM.Embedding.Model == "" {
		c.LLM.Embedding.Model = "text-embedding-3-small"
	}
	if c.LLM.Embedding.Dimensions == 0 {
		c.LLM.Embedding.Dimensions = 1536
	}
	if c.LLM.Embedding.MaxInputChars == 0 {
		c.LLM.Embedding.MaxInputChars = 8000
	}
	if c.LLM.Summarization == nil {
		c.LLM.Summarization = &SummarizationConfig{}
	}
	if c.LLM.Summarization.MinContentLength == 0 {
		c.LLM.Summarization.MinContentLength = 300
	}
	if c.LLM.Summarization.MaxLength == 0 {
		c.LLM.Summarization.MaxLength = 500
	}
	if c.LLM.Keywords == nil {
		c.LLM.Keywords = &KeywordsConfig{}
	}
	if c.LLM.Keywords.Max == 0 {
		c.LLM.Keywords.Max = 20
	}

	if c.Chunking == nil {
		c.Chunking = &ChunkingConfig{}
	}
	if c.Chunking.Size <= 0 {
		c.Chunking.Size = 1000
	}
	if c.Chunking.Overlap <= 0 {
		c.Chunking.Overlap = 200
	}

	if c.Search == nil {
		c.Search = &SearchConfig{}
	}
	if c.Search.SimilarityThreshold == 0 {
		c.Search.SimilarityThreshold = 0.7
	}
	if c.Search.SemanticWeight == 0 {
		c.Search.SemanticWeight = 0.7
	}
	if c.Search.TextWeight == 0 {
		c.Search.TextWeight = 0.3
	}
	if c.Search.UsageRanking == nil {
		c.Search.UsageRanking = &UsageRankingConfig{}
	}
	if c.Search.UsageRanking.FrequencyWeight == 0 {
		c.Search.UsageRanking.FrequencyWeight = 0.7
	}
	if c.Search.UsageRanking.RecencyWeight == 0 {
		c.Search.UsageRanking.RecencyWeight = 0.3
	}

	if c.Ingest == nil {
		c.Ingest = &IngestConfig{}
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 4
	}
	if c.Ingest.QueueSize <= 0 {
		c.Ingest.QueueSize = 256
	}
	if c.Ingest.Kafka == nil {
		c.Ingest.Kafka = &KafkaConfig{}
	}
	if len(c.Ingest.Kafka.Brokers) == 0 {
		c.Ingest.Kafka.Brokers = []string{"localhost:19092"}
	}
	if c.Ingest.Kafka.Topic == "" {
		c.Ingest.Kafka.Topic = "recall.documents"
	}
	if c.Ingest.Kafka.ConsumerGroup == "" {
		c.Ingest.Kafka.ConsumerGroup = "recall-workers"
	}

	if c.Index == nil {
		c.Index = &IndexConfig{}
	}
	if c.Index.Lexical == "" {
		c.Index.Lexical = "database"
	}
	if c.Index.Vector == "" {
		c.Index.Vector = "store"
	}

	if c.Sources == nil {
		c.Sources = &SourcesConfig{}
	}

	if c.PromptTemplate == "" {
		c.PromptTemplate = DefaultTemplate
	}
}

// ensureProvider returns the provider config with the given name, creating
// an empty one when absent.
func (c *Config) ensureProvider(name string) *ProviderConfig {
	if c.LLM == nil {
		c.LLM = &LLMConfig{}
	}
	for i := range c.LLM.Providers {
		if c.LLM.Providers[i].Name == name {
			return &c.LLM.Providers[i]
		}
	}
	c.LLM.Providers = append(c.LLM.Providers, ProviderConfig{Name: name})
	return &c.LLM.Providers[len(c.LLM.Providers)-1]
}

// Provider returns the configuration for a named provider, or nil.
func (c *Config) Provider(name string) *ProviderConfig {
	if c.LLM == nil {
		return nil
	}
	for i := range c.LLM.Providers {
		if c.LLM.Providers[i].Name == name {
			return &c.LLM.Providers[i]
		}
	}
	return nil
}

// Validate checks the configuration and aggregates every problem into one
// multierror so operators see all mistakes at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Logging != nil {
		if err := validation.Validate(c.Logging.Level,
			validation.In("debug", "info", "warn", "error", "fatal", "trace"),
		); err != nil {
			result = multierror.Append(result, fmt.Errorf("logging.level: %w", err))
		}
	}

	if c.Database != nil {
		if err := validation.Validate(c.Database.Adapter,
			validation.In(database.DriverPostgres, database.DriverSQLite),
		); err != nil {
			result = multierror.Append(result, fmt.Errorf("database.adapter: %w", err))
		}
	}

	if c.Chunking != nil {
		if c.Chunking.Overlap >= c.Chunking.Size {
			result = multierror.Append(result, fmt.Errorf(
				"chunking: overlap (%d) must be smaller than size (%d)",
				c.Chunking.Overlap, c.Chunking.Size))
		}
	}

	if c.Search != nil {
		if err := validation.ValidateStruct(c.Search,
			validation.Field(&c.Search.SimilarityThreshold, validation.Min(float64(0)), validation.Max(float64(1))),
			validation.Field(&c.Search.SemanticWeight, validation.Min(float64(0)), validation.Max(float64(1))),
			validation.Field(&c.Search.TextWeight, validation.Min(float64(0)), validation.Max(float64(1))),
		); err != nil {
			result = multierror.Append(result, fmt.Errorf("search: %w", err))
		}
	}

	if c.Index != nil {
		if err := validation.Validate(c.Index.Lexical,
			validation.In("database", "bleve", "meilisearch", "algolia"),
		); err != nil {
			result = multierror.Append(result, fmt.Errorf("index.lexical: %w", err))
		}
		if err := validation.Validate(c.Index.Vector,
			validation.In("store", "qdrant", "chromem"),
		); err != nil {
			result = multierror.Append(result, fmt.Errorf("index.vector: %w", err))
		}
	}

	if c.Ingest != nil && c.Ingest.Kafka != nil && c.Ingest.Kafka.Enabled {
		if err := validation.Validate(c.Ingest.Kafka.Brokers, validation.Required); err != nil {
			result = multierror.Append(result, fmt.Errorf("ingest.kafka.brokers: %w", err))
		}
	}

	if c.PromptTemplate != "" {
		if !strings.Contains(c.PromptTemplate, "{{context}}") ||
			!strings.Contains(c.PromptTemplate, "{{prompt}}") {
			result = multierror.Append(result, fmt.Errorf(
				"prompt_template: must contain {{context}} and {{prompt}} placeholders"))
		}
	}

	return result.ErrorOrNil()
}

// HclogLevel maps the configured level onto hclog. "fatal" maps to Error,
// the most severe level hclog distinguishes.
func (c *Config) HclogLevel() hclog.Level {
	if c.Logging == nil || c.Logging.Level == "" {
		return hclog.Warn
	}
	if c.Logging.Level == "fatal" {
		return hclog.Error
	}
	if level := hclog.LevelFromString(c.Logging.Level); level != hclog.NoLevel {
		return level
	}
	return hclog.Warn
}

// ConnectionConfig renders the database block into connect settings.
func (d *DatabaseConfig) ConnectionConfig() (database.Config, error) {
	cfg := database.Config{
		Driver:       d.Adapter,
		Host:         d.Host,
		Port:         d.Port,
		User:         d.User,
		Password:     d.Password,
		DBName:       d.Name,
		SSLMode:      d.SSLMode,
		Path:         d.Path,
		MaxIdleConns: d.MaxIdleConns,
		MaxOpenConns: d.MaxOpenConns,
	}

	if d.URL == "" {
		return cfg, nil
	}

	parsed, err := url.Parse(d.URL)
	if err != nil {
		return cfg, fmt.Errorf("invalid database url: %w", err)
	}

	switch parsed.Scheme {
	case "postgres", "postgresql":
		cfg.Driver = database.DriverPostgres
		cfg.Host = parsed.Hostname()
		if port := parsed.Port(); port != "" {
			p, err := strconv.Atoi(port)
			if err != nil {
				return cfg, fmt.Errorf("invalid database url port: %w", err)
			}
			cfg.Port = p
		}
		if parsed.User != nil {
			cfg.User = parsed.User.Username()
			if password, ok := parsed.User.Password(); ok {
				cfg.Password = password
			}
		}
		cfg.DBName = strings.TrimPrefix(parsed.Path, "/")
		if mode := parsed.Query().Get("sslmode"); mode != "" {
			cfg.SSLMode = mode
		}
	case "sqlite", "file":
		cfg.Driver = database.DriverSQLite
		cfg.Path = strings.TrimPrefix(parsed.Path, "/")
		if parsed.Opaque != "" {
			cfg.Path = parsed.Opaque
		}
	default:
		return cfg, fmt.Errorf("unsupported database url scheme %q", parsed.Scheme)
	}

	return cfg, nil
}

// Example configuration file format:
//
// logging {
//   level = "info"
// }
//
// database {
//   adapter = "postgres"
//   host = "localhost"
//   port = 5432
//   name = "recall"
//   user = "recall"
//   password = "secret"
// }
//
// llm {
//   default_provider = "openai"
//
//   embedding {
//     provider = "openai"
//     model = "text-embedding-3-small"
//     dimensions = 1536
//   }
//
//   summarization {
//     enabled = true
//     max_length = 500
//   }
//
//   provider "openai" {
//     api_key = "sk-..."
//   }
//
//   provider "ollama" {
//     base_url = "http://localhost:11434"
//   }
// }
//
// chunking {
//   size = 1000
//   overlap = 200
// }
//
// search {
//   similarity_threshold = 0.7
//   semantic_weight = 0.7
//   text_weight = 0.3
// }
//
// ingest {
//   workers = 4
//
//   kafka {
//     enabled = false
//     brokers = ["localhost:19092"]
//     topic = "recall.documents"
//   }
// }
