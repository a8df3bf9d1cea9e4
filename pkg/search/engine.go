package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/recallhq/recall/pkg/models"
)

// Embedder turns a query into a vector. *llm.Gateway satisfies this.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// EngineConfig holds configuration for the search engine.
type EngineConfig struct {
	DB       *gorm.DB
	Embedder Embedder

	// Index answers nearest-neighbor queries. Defaults to the
	// database-backed index.
	Index VectorIndex

	// Keywords serves the lexical leg of hybrid search. Defaults to the
	// database LIKE fallback.
	Keywords KeywordSearcher

	Logger hclog.Logger

	// Threshold is the minimum similarity for a hit (default 0.7).
	Threshold float64

	// Hybrid fusion weights (defaults 0.7 semantic, 0.3 text).
	SemanticWeight float64
	TextWeight     float64

	// DisableUsageRanking turns off the usage score component; usage
	// counters are still recorded for returned hits.
	DisableUsageRanking bool

	// UsageWeights blend frequency and recency (defaults 0.7 / 0.3).
	UsageWeights UsageWeights
}

// Engine executes semantic, hybrid, and faceted searches.
type Engine struct {
	db       *gorm.DB
	embedder Embedder
	index    VectorIndex
	keywords KeywordSearcher
	logger   hclog.Logger

	threshold      float64
	semanticWeight float64
	textWeight     float64
	usageRanking   bool
	usageWeights   UsageWeights

	now func() time.Time
}

// NewEngine creates a search engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}
	if cfg.Index == nil {
		cfg.Index = NewStoreIndex(cfg.DB, cfg.Logger)
	}
	if cfg.Keywords == nil {
		cfg.Keywords = NewDatabaseSearcher(cfg.DB, cfg.Logger)
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.7
	}
	if cfg.SemanticWeight == 0 {
		cfg.SemanticWeight = 0.7
	}
	if cfg.TextWeight == 0 {
		cfg.TextWeight = 0.3
	}
	if cfg.UsageWeights == (UsageWeights{}) {
		cfg.UsageWeights = DefaultUsageWeights()
	}

	return &Engine{
		db:             cfg.DB,
		embedder:       cfg.Embedder,
		index:          cfg.Index,
		keywords:       cfg.Keywords,
		logger:         cfg.Logger.Named("search"),
		threshold:      cfg.Threshold,
		semanticWeight: cfg.SemanticWeight,
		textWeight:     cfg.TextWeight,
		usageRanking:   !cfg.DisableUsageRanking,
		usageWeights:   cfg.UsageWeights,
		now:            time.Now,
	}, nil
}

// Search embeds the query and performs semantic search.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &Error{Op: "Search", Msg: "empty query", Err: ErrInvalidQuery}
	}

	vector, err := e.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, &Error{Op: "Search", Msg: "query embedding failed", Err: err}
	}
	if len(vector) == 0 {
		return nil, &Error{Op: "Search", Err: ErrNoQueryVector}
	}
	return e.SearchVector(ctx, vector, opts)
}

// SearchVector performs semantic search with a pre-computed query vector.
func (e *Engine) SearchVector(ctx context.Context, vector []float32, opts Options) ([]Hit, error) {
	if len(vector) == 0 {
		return nil, &Error{Op: "SearchVector", Err: ErrNoQueryVector}
	}

	p := e.params(opts)
	hits, err := e.semantic(ctx, vector, p, nil)
	if err != nil {
		return nil, err
	}
	e.markReturned(ctx, hits)

	e.logger.Debug("semantic search completed",
		"index", e.index.Name(),
		"hits", len(hits),
		"threshold", p.threshold,
	)
	return hits, nil
}

// FacetedSearch performs semantic search restricted by facet filters.
func (e *Engine) FacetedSearch(ctx context.Context, query string, facets Facets, opts Options) ([]Hit, error) {
	compiled, err := facets.compile()
	if err != nil {
		return nil, &Error{Op: "FacetedSearch", Msg: "invalid facet", Err: err}
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &Error{Op: "FacetedSearch", Msg: "empty query", Err: ErrInvalidQuery}
	}
	vector, err := e.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, &Error{Op: "FacetedSearch", Msg: "query embedding failed", Err: err}
	}
	if len(vector) == 0 {
		return nil, &Error{Op: "FacetedSearch", Err: ErrNoQueryVector}
	}

	hits, err := e.semantic(ctx, vector, e.params(opts), compiled)
	if err != nil {
		return nil, err
	}
	e.markReturned(ctx, hits)
	return hits, nil
}

// searchParams are Options resolved against engine defaults.
type searchParams struct {
	limit          int
	threshold      float64
	filters        Filters
	usageRanking   bool
	semanticWeight float64
	textWeight     float64
}

func (e *Engine) params(opts Options) searchParams {
	p := searchParams{
		limit:          opts.Limit,
		threshold:      e.threshold,
		filters:        opts.Filters,
		usageRanking:   e.usageRanking,
		semanticWeight: e.semanticWeight,
		textWeight:     e.textWeight,
	}
	if p.limit <= 0 {
		p.limit = 10
	}
	if opts.Threshold != nil {
		p.threshold = *opts.Threshold
	}
	if opts.UsageRanking != nil {
		p.usageRanking = *opts.UsageRanking
	}
	if opts.SemanticWeight > 0 {
		p.semanticWeight = opts.SemanticWeight
	}
	if opts.TextWeight > 0 {
		p.textWeight = opts.TextWeight
	}
	return p
}

// semantic runs the nearest-neighbor query and ranks the candidates.
// Requesting 2x the limit leaves headroom for threshold and filter drops.
func (e *Engine) semantic(ctx context.Context, vector []float32, p searchParams, facets *compiledFacets) ([]Hit, error) {
	candidates, err := e.index.Search(ctx, vector, VectorQuery{
		K:              2 * p.limit,
		EmbeddingModel: p.filters.EmbeddingModel,
		DocumentID:     p.filters.DocumentID,
	})
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	rows, err := e.hydrate(ctx, candidates)
	if err != nil {
		return nil, err
	}

	now := e.now()
	hits := make([]Hit, 0, len(candidates))
	for _, cand := range candidates {
		row, ok := rows[cand.EmbeddingID]
		if !ok {
			continue
		}

		similarity := 1 - cand.Distance
		if similarity < p.threshold {
			continue
		}
		if !matchesFilters(row.doc, p.filters) {
			continue
		}
		if facets != nil && !facets.match(row.doc) {
			continue
		}

		hit := Hit{
			EmbeddingID: row.emb.ID,
			Content:     row.emb.Content,
			ChunkIndex:  row.emb.ChunkIndex,
			Similarity:  similarity,
			Distance:    cand.Distance,
			SearchTypes: []string{TypeSemantic},
			Metadata:    row.emb.Metadata,
		}
		if row.doc != nil {
			hit.DocumentID = row.doc.ID
			hit.DocumentTitle = row.doc.Title
			hit.DocumentLocation = row.doc.Location
		}
		if p.usageRanking {
			hit.UsageScore = usageScore(row.emb.UsageCount, row.emb.ReturnedAt, now, e.usageWeights)
		}
		hit.CombinedScore = hit.Similarity + hit.UsageScore

		hits = append(hits, hit)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].CombinedScore > hits[j].CombinedScore
	})
	if len(hits) > p.limit {
		hits = hits[:p.limit]
	}
	return hits, nil
}

// hydrated pairs an embedding with its owning document.
type hydrated struct {
	emb models.Embedding
	doc *models.Document
}

// hydrate loads candidate embeddings and resolves their documents through
// the content tables. Three queries at most, regardless of candidate count.
func (e *Engine) hydrate(ctx context.Context, candidates []Candidate) (map[uuid.UUID]hydrated, error) {
	ids := make([]uuid.UUID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.EmbeddingID
	}

	var embeddings []models.Embedding
	if err := e.db.WithContext(ctx).Where("id IN ?", ids).Find(&embeddings).Error; err != nil {
		return nil, &Error{Op: "Search", Msg: "loading embeddings", Err: models.TranslateError(err)}
	}

	// The embeddable type discriminator doubles as the content table name.
	byTable := make(map[string][]uuid.UUID)
	for _, emb := range embeddings {
		switch emb.EmbeddableType {
		case models.EmbeddableTypeText, models.EmbeddableTypeImage, models.EmbeddableTypeAudio:
			byTable[emb.EmbeddableType] = append(byTable[emb.EmbeddableType], emb.EmbeddableID)
		}
	}

	contentDocs := make(map[uuid.UUID]uuid.UUID)
	for table, contentIDs := range byTable {
		var refs []struct {
			ID         uuid.UUID
			DocumentID uuid.UUID
		}
		err := e.db.WithContext(ctx).Table(table).
			Select("id", "document_id").
			Where("id IN ?", contentIDs).
			Scan(&refs).Error
		if err != nil {
			return nil, &Error{Op: "Search", Msg: "resolving content owners", Err: models.TranslateError(err)}
		}
		for _, ref := range refs {
			contentDocs[ref.ID] = ref.DocumentID
		}
	}

	docIDs := make([]uuid.UUID, 0, len(contentDocs))
	seen := make(map[uuid.UUID]bool, len(contentDocs))
	for _, docID := range contentDocs {
		if !seen[docID] {
			seen[docID] = true
			docIDs = append(docIDs, docID)
		}
	}

	docs := make(map[uuid.UUID]*models.Document, len(docIDs))
	if len(docIDs) > 0 {
		var records []models.Document
		if err := e.db.WithContext(ctx).Where("id IN ?", docIDs).Find(&records).Error; err != nil {
			return nil, &Error{Op: "Search", Msg: "loading documents", Err: models.TranslateError(err)}
		}
		for i := range records {
			docs[records[i].ID] = &records[i]
		}
	}

	out := make(map[uuid.UUID]hydrated, len(embeddings))
	for _, emb := range embeddings {
		h := hydrated{emb: emb}
		if docID, ok := contentDocs[emb.EmbeddableID]; ok {
			h.doc = docs[docID]
		}
		out[emb.ID] = h
	}
	return out, nil
}

// markReturned records usage for every returned embedding in one batch.
// A failed write degrades ranking freshness, not the search itself.
func (e *Engine) markReturned(ctx context.Context, hits []Hit) {
	ids := make([]uuid.UUID, 0, len(hits))
	for _, h := range hits {
		if h.EmbeddingID != uuid.Nil {
			ids = append(ids, h.EmbeddingID)
		}
	}
	if len(ids) == 0 {
		return
	}
	if err := models.BatchMarkReturned(e.db.WithContext(ctx), ids, e.now()); err != nil {
		e.logger.Warn("failed to record embedding usage", "count", len(ids), "error", err)
	}
}

// matchesFilters applies document-level filters to a hydrated hit. An
// embedding whose document is gone passes only when no document filter is
// set.
func matchesFilters(doc *models.Document, f Filters) bool {
	if f.DocumentType == "" && f.Classification == "" && len(f.Keywords) == 0 && len(f.Tags) == 0 {
		return true
	}
	if doc == nil {
		return false
	}
	if f.DocumentType != "" && doc.DocumentType != f.DocumentType {
		return false
	}
	if f.Classification != "" && doc.Metadata.GetString("classification") != f.Classification {
		return false
	}
	if len(f.Keywords) > 0 && !keywordsContainAll(doc.Metadata, f.Keywords) {
		return false
	}
	if len(f.Tags) > 0 && !tagsContainAll(doc.Metadata, f.Tags) {
		return false
	}
	return true
}
