// Package client is the library facade. A Client wires storage, parsing,
// the LLM gateway, the ingest pipeline, and search together behind the
// document operations applications call: add, search, context assembly,
// and lifecycle management.
package client

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/recallhq/recall/pkg/chunker"
	"github.com/recallhq/recall/pkg/config"
	"github.com/recallhq/recall/pkg/database"
	"github.com/recallhq/recall/pkg/ingest"
	"github.com/recallhq/recall/pkg/llm"
	"github.com/recallhq/recall/pkg/metadata"
	"github.com/recallhq/recall/pkg/models"
	"github.com/recallhq/recall/pkg/parser"
	"github.com/recallhq/recall/pkg/search"
	algoliaadapter "github.com/recallhq/recall/pkg/search/adapters/algolia"
	bleveadapter "github.com/recallhq/recall/pkg/search/adapters/bleve"
	chromemadapter "github.com/recallhq/recall/pkg/search/adapters/chromem"
	meiliadapter "github.com/recallhq/recall/pkg/search/adapters/meilisearch"
	qdrantadapter "github.com/recallhq/recall/pkg/search/adapters/qdrant"
	"github.com/recallhq/recall/pkg/source"
)

// Client is the top-level handle. It is safe for concurrent use; all state
// lives in the storage layer or in the immutable service set.
type Client struct {
	mu  sync.RWMutex
	ov  overrides
	svc *services
}

// services is one complete wiring of the components. Reconfigure builds a
// fresh set and swaps the pointer, so in-flight calls keep a consistent
// view and never observe a half-replaced configuration.
type services struct {
	cfg       *config.Config
	logger    hclog.Logger
	db        *gorm.DB
	dbOwned   bool
	gateway   *llm.Gateway
	parser    *parser.Parser
	chunker   *chunker.Chunker
	generator *metadata.Generator
	executor  *ingest.Executor
	runner    *ingest.Runner
	engine    *search.Engine
	lexical   search.KeywordSearcher
	vector    search.VectorIndex
	local     source.Source

	// The S3 source dials the bucket on construction, so it is built on
	// first use rather than at client creation.
	s3mu   sync.Mutex
	s3     source.Source
	s3opts *source.S3Options
}

// overrides are caller-injected components. They survive Reconfigure and
// are never closed by the client.
type overrides struct {
	logger    hclog.Logger
	db        *gorm.DB
	gateway   *llm.Gateway
	parser    *parser.Parser
	chunker   *chunker.Chunker
	generator *metadata.Generator
	runner    *ingest.Runner
	engine    *search.Engine
	lexical   search.KeywordSearcher
	vector    search.VectorIndex
	local     source.Source
	s3        source.Source
}

// Option is a functional option for creating a Client.
type Option func(*overrides)

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(o *overrides) { o.logger = logger }
}

// WithDB sets an existing database connection. The caller keeps ownership;
// Close will not close it.
func WithDB(db *gorm.DB) Option {
	return func(o *overrides) { o.db = db }
}

// WithGateway sets the LLM gateway.
func WithGateway(gateway *llm.Gateway) Option {
	return func(o *overrides) { o.gateway = gateway }
}

// WithParser sets the document parser.
func WithParser(p *parser.Parser) Option {
	return func(o *overrides) { o.parser = p }
}

// WithChunker sets the text chunker.
func WithChunker(c *chunker.Chunker) Option {
	return func(o *overrides) { o.chunker = c }
}

// WithGenerator sets the metadata generator.
func WithGenerator(g *metadata.Generator) Option {
	return func(o *overrides) { o.generator = g }
}

// WithRunner sets a pre-built ingest runner, including its executor.
func WithRunner(r *ingest.Runner) Option {
	return func(o *overrides) { o.runner = r }
}

// WithEngine sets the search engine.
func WithEngine(e *search.Engine) Option {
	return func(o *overrides) { o.engine = e }
}

// WithLexicalIndex sets the keyword search backend.
func WithLexicalIndex(k search.KeywordSearcher) Option {
	return func(o *overrides) { o.lexical = k }
}

// WithVectorIndex sets the vector index backend.
func WithVectorIndex(v search.VectorIndex) Option {
	return func(o *overrides) { o.vector = v }
}

// WithLocalSource replaces the filesystem document source.
func WithLocalSource(s source.Source) Option {
	return func(o *overrides) { o.local = s }
}

// WithS3Source replaces the S3 document source.
func WithS3Source(s source.Source) Option {
	return func(o *overrides) { o.s3 = s }
}

// New creates a client from cfg. A nil cfg means config.Default(). Options
// inject pre-built components, chiefly for tests and applications that
// manage their own database handle.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	var ov overrides
	for _, opt := range opts {
		opt(&ov)
	}

	if cfg == nil {
		cfg = config.Default()
	} else {
		cfg.Normalize()
	}

	svc, err := buildServices(cfg, ov)
	if err != nil {
		return nil, err
	}
	return &Client{ov: ov, svc: svc}, nil
}

// current returns the active service set.
func (c *Client) current() *services {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.svc
}

// Config returns the active configuration. Callers must treat it as
// read-only; use Reconfigure to change settings.
func (c *Client) Config() *config.Config {
	return c.current().cfg
}

// Reconfigure replaces every derived service with one built from cfg,
// atomically. Injected components survive. Background workers are stopped;
// call StartWorkers again to resume processing. Reconfigure(nil) restores
// the default configuration.
func (c *Client) Reconfigure(cfg *config.Config) error {
	if cfg == nil {
		cfg = config.Default()
	} else {
		cfg.Normalize()
	}

	svc, err := buildServices(cfg, c.ov)
	if err != nil {
		return err
	}

	c.mu.Lock()
	old := c.svc
	c.svc = svc
	c.mu.Unlock()

	// The old database connection stays open for in-flight operations
	// that still hold the previous service set.
	if old.runner != nil && old.runner != svc.runner && old.runner.Started() {
		old.runner.Stop()
	}
	return nil
}

// StartWorkers launches the background ingest pool. Documents added while
// workers run are queued instead of processed inline.
func (c *Client) StartWorkers(ctx context.Context) error {
	return c.current().runner.Start(ctx)
}

// StopWorkers finishes in-flight documents and stops the pool.
func (c *Client) StopWorkers() {
	c.current().runner.Stop()
}

// Healthy reports whether the storage backend is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	svc := c.current()
	if err := database.Ping(ctx, svc.db); err != nil {
		svc.logger.Warn("health check failed", "error", err)
		return false
	}
	return true
}

// Stats summarizes the store.
type Stats struct {
	TotalDocuments  int64            `json:"totalDocuments"`
	ByStatus        map[string]int64 `json:"byStatus"`
	ByType          map[string]int64 `json:"byType"`
	TotalEmbeddings int64            `json:"totalEmbeddings"`
	TotalContents   int64            `json:"totalContents"`
	StorageType     string           `json:"storageType"`
}

// Stats reports document, content, and embedding counts.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	svc := c.current()
	db := svc.db.WithContext(ctx)

	total, err := models.CountDocuments(db)
	if err != nil {
		return nil, err
	}
	byStatus, err := models.CountDocumentsByStatus(db)
	if err != nil {
		return nil, err
	}
	byType, err := models.CountDocumentsByType(db)
	if err != nil {
		return nil, err
	}
	embeddings, err := models.CountEmbeddings(db)
	if err != nil {
		return nil, err
	}

	var contents int64
	for _, model := range []interface{}{&models.TextContent{}, &models.ImageContent{}, &models.AudioContent{}} {
		var n int64
		if err := db.Model(model).Count(&n).Error; err != nil {
			return nil, models.TranslateError(err)
		}
		contents += n
	}

	storage := ""
	if svc.cfg.Database != nil {
		storage = svc.cfg.Database.Adapter
	}

	return &Stats{
		TotalDocuments:  total,
		ByStatus:        byStatus,
		ByType:          byType,
		TotalEmbeddings: embeddings,
		TotalContents:   contents,
		StorageType:     storage,
	}, nil
}

// Close stops workers and releases client-owned resources. Injected
// components are left for their owners to close.
func (c *Client) Close() error {
	svc := c.current()

	if svc.runner != nil && c.ov.runner == nil && svc.runner.Started() {
		svc.runner.Stop()
	}

	var result *multierror.Error
	if c.ov.lexical == nil {
		result = multierror.Append(result, closeComponent(svc.lexical))
	}
	if c.ov.vector == nil {
		result = multierror.Append(result, closeComponent(svc.vector))
	}
	if svc.dbOwned {
		if sqlDB, err := svc.db.DB(); err == nil {
			result = multierror.Append(result, sqlDB.Close())
		}
	}
	return result.ErrorOrNil()
}

// closeComponent closes a backend when it exposes a Close method, with or
// without an error return.
func closeComponent(component interface{}) error {
	switch closer := component.(type) {
	case io.Closer:
		return closer.Close()
	case interface{ Close() }:
		closer.Close()
	}
	return nil
}

// buildServices constructs a service set from cfg, honoring overrides.
func buildServices(cfg *config.Config, ov overrides) (*services, error) {
	logger := ov.logger
	if logger == nil {
		logger = newLogger(cfg)
	}

	svc := &services{cfg: cfg, logger: logger}

	db := ov.db
	if db == nil {
		connCfg, err := cfg.Database.ConnectionConfig()
		if err != nil {
			return nil, err
		}
		db, err = database.Connect(connCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := database.Migrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		svc.dbOwned = true
	}
	svc.db = db

	svc.gateway = ov.gateway
	if svc.gateway == nil {
		svc.gateway = llm.NewGateway(buildLLMConfig(cfg), logger)
	}

	svc.parser = ov.parser
	if svc.parser == nil {
		svc.parser = parser.New(logger)
	}

	svc.chunker = ov.chunker
	if svc.chunker == nil {
		svc.chunker = chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap)
	}

	svc.generator = ov.generator
	if svc.generator == nil {
		svc.generator = metadata.NewGenerator(svc.gateway, logger)
	}

	var err error
	svc.lexical = ov.lexical
	if svc.lexical == nil {
		svc.lexical, err = buildLexical(cfg, db, logger)
		if err != nil {
			return nil, err
		}
	}

	svc.vector = ov.vector
	if svc.vector == nil {
		svc.vector, err = buildVector(cfg, db, logger)
		if err != nil {
			return nil, err
		}
	}

	svc.engine = ov.engine
	if svc.engine == nil {
		svc.engine, err = search.NewEngine(search.EngineConfig{
			DB:                  db,
			Embedder:            svc.gateway,
			Index:               svc.vector,
			Keywords:            svc.lexical,
			Logger:              logger,
			Threshold:           cfg.Search.SimilarityThreshold,
			SemanticWeight:      cfg.Search.SemanticWeight,
			TextWeight:          cfg.Search.TextWeight,
			DisableUsageRanking: !cfg.Search.UsageRanking.IsEnabled(),
			UsageWeights: search.UsageWeights{
				Frequency: cfg.Search.UsageRanking.FrequencyWeight,
				Recency:   cfg.Search.UsageRanking.RecencyWeight,
			},
		})
		if err != nil {
			return nil, err
		}
	}

	svc.executor, err = ingest.NewExecutor(ingest.ExecutorConfig{
		DB:          db,
		Parser:      svc.parser,
		Gateway:     svc.gateway,
		Generator:   svc.generator,
		Chunker:     svc.chunker,
		Lexical:     svc.lexical,
		VectorIndex: svc.vector,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	svc.runner = ov.runner
	if svc.runner == nil {
		svc.runner, err = ingest.NewRunner(ingest.RunnerConfig{
			Executor:  svc.executor,
			Workers:   cfg.Ingest.Workers,
			QueueSize: cfg.Ingest.QueueSize,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
	}

	svc.local = ov.local
	if svc.local == nil {
		svc.local = source.NewLocal(nil, logger)
	}

	svc.s3 = ov.s3
	if svc.s3 == nil && cfg.Sources != nil && cfg.Sources.S3 != nil && cfg.Sources.S3.Bucket != "" {
		s3cfg := cfg.Sources.S3
		svc.s3opts = &source.S3Options{
			Bucket:       s3cfg.Bucket,
			Region:       s3cfg.Region,
			Endpoint:     s3cfg.Endpoint,
			AccessKey:    s3cfg.AccessKey,
			SecretKey:    s3cfg.SecretKey,
			UsePathStyle: s3cfg.UsePathStyle,
		}
	}

	return svc, nil
}

// s3Source returns the S3 source, building it on first use.
func (s *services) s3Source(ctx context.Context) (source.Source, error) {
	s.s3mu.Lock()
	defer s.s3mu.Unlock()

	if s.s3 != nil {
		return s.s3, nil
	}
	if s.s3opts == nil {
		return nil, fmt.Errorf("no s3 source configured; set the sources.s3 block")
	}

	src, err := source.NewS3(ctx, *s.s3opts, s.logger)
	if err != nil {
		return nil, err
	}
	s.s3 = src
	return src, nil
}

// sourceFor routes a path to the source that can read it.
func (s *services) sourceFor(ctx context.Context, path string) (source.Source, error) {
	if source.IsS3URI(path) {
		return s.s3Source(ctx)
	}
	return s.local, nil
}

func newLogger(cfg *config.Config) hclog.Logger {
	opts := &hclog.LoggerOptions{
		Name:  "recall",
		Level: cfg.HclogLevel(),
	}

	var openErr error
	if cfg.Logging != nil && cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			openErr = err
		} else {
			opts.Output = f
		}
	}

	logger := hclog.New(opts)
	if openErr != nil {
		logger.Warn("failed to open log file, logging to stderr",
			"file", cfg.Logging.File, "error", openErr)
	}
	return logger
}

// buildLLMConfig renders the llm block into gateway configuration.
func buildLLMConfig(cfg *config.Config) llm.Config {
	out := llm.Config{
		Providers: make(map[string]llm.ProviderSettings),
	}
	lc := cfg.LLM
	if lc == nil {
		out.Summarization.Enabled = true
		return out
	}

	out.DefaultProvider = lc.DefaultProvider
	if e := lc.Embedding; e != nil {
		out.Embedding = llm.EmbeddingOptions{
			Provider:      e.Provider,
			Model:         e.Model,
			Dimensions:    e.Dimensions,
			MaxInputChars: e.MaxInputChars,
		}
	}
	out.Summarization.Enabled = lc.Summarization.IsEnabled()
	if s := lc.Summarization; s != nil {
		out.Summarization.Model = s.Model
		out.Summarization.MinContentLength = s.MinContentLength
		out.Summarization.MaxLength = s.MaxLength
	}
	if k := lc.Keywords; k != nil {
		out.Keywords = llm.KeywordOptions{Max: k.Max, Model: k.Model}
	}
	for _, p := range lc.Providers {
		out.Providers[p.Name] = llm.ProviderSettings{
			APIKey:       p.APIKey,
			BaseURL:      p.BaseURL,
			Model:        p.Model,
			APIVersion:   p.APIVersion,
			ResourceName: p.ResourceName,
			Region:       p.Region,
		}
	}
	return out
}

// buildLexical constructs the configured keyword search backend.
func buildLexical(cfg *config.Config, db *gorm.DB, logger hclog.Logger) (search.KeywordSearcher, error) {
	idx := cfg.Index
	backend := ""
	if idx != nil {
		backend = idx.Lexical
	}

	switch backend {
	case "", "database":
		return search.NewDatabaseSearcher(db, logger), nil
	case "bleve":
		bcfg := &bleveadapter.Config{}
		if idx.Bleve != nil {
			bcfg.IndexPath = idx.Bleve.Path
		}
		return bleveadapter.NewAdapter(bcfg)
	case "meilisearch":
		if idx.Meilisearch == nil {
			return nil, fmt.Errorf("index.meilisearch block is required for the meilisearch backend")
		}
		return meiliadapter.NewAdapter(&meiliadapter.Config{
			Host:      idx.Meilisearch.Host,
			APIKey:    idx.Meilisearch.APIKey,
			IndexName: idx.Meilisearch.Index,
		})
	case "algolia":
		if idx.Algolia == nil {
			return nil, fmt.Errorf("index.algolia block is required for the algolia backend")
		}
		return algoliaadapter.NewAdapter(&algoliaadapter.Config{
			AppID:       idx.Algolia.AppID,
			WriteAPIKey: idx.Algolia.APIKey,
			IndexName:   idx.Algolia.Index,
		})
	default:
		return nil, fmt.Errorf("unsupported lexical index backend %q", backend)
	}
}

// buildVector constructs the configured vector index backend.
func buildVector(cfg *config.Config, db *gorm.DB, logger hclog.Logger) (search.VectorIndex, error) {
	idx := cfg.Index
	backend := ""
	if idx != nil {
		backend = idx.Vector
	}

	switch backend {
	case "", "store":
		return search.NewStoreIndex(db, logger), nil
	case "qdrant":
		qcfg := &qdrantadapter.Config{}
		if idx.Qdrant != nil {
			host, port, err := splitHostPort(idx.Qdrant.Addr)
			if err != nil {
				return nil, fmt.Errorf("invalid qdrant addr %q: %w", idx.Qdrant.Addr, err)
			}
			qcfg.Host = host
			qcfg.Port = port
			qcfg.APIKey = idx.Qdrant.APIKey
			qcfg.UseTLS = idx.Qdrant.UseTLS
			qcfg.Collection = idx.Qdrant.Collection
		}
		return qdrantadapter.NewAdapter(qcfg)
	case "chromem":
		ccfg := &chromemadapter.Config{}
		if idx.Chromem != nil {
			ccfg.PersistPath = idx.Chromem.Path
		}
		return chromemadapter.NewAdapter(ccfg)
	default:
		return nil, fmt.Errorf("unsupported vector index backend %q", backend)
	}
}

func splitHostPort(addr string) (string, int, error) {
	if addr == "" {
		return "", 0, nil
	}
	if !strings.Contains(addr, ":") {
		return addr, 0, nil
	}
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}
