// Package bleve adapts the embedded Bleve full-text engine to the keyword
// search interface. It needs no external service, which makes it the
// default upgrade from the database LIKE fallback.
package bleve

import (
	"context"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"

	"github.com/recallhq/recall/pkg/models"
	recallsearch "github.com/recallhq/recall/pkg/search"
)

// Config contains Bleve configuration.
type Config struct {
	// IndexPath is the on-disk index location. Empty selects an in-memory
	// index that is lost on close.
	IndexPath string
}

// Adapter implements search.KeywordSearcher backed by a Bleve index.
type Adapter struct {
	index bleve.Index
	path  string
}

// NewAdapter opens or creates the Bleve index.
func NewAdapter(cfg *Config) (*Adapter, error) {
	docMapping := createDocumentMapping()

	var idx bleve.Index
	var err error
	if cfg == nil || cfg.IndexPath == "" {
		idx, err = bleve.NewMemOnly(docMapping)
	} else {
		idx, err = openOrCreateIndex(cfg.IndexPath, docMapping)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index: %w", err)
	}

	adapter := &Adapter{index: idx}
	if cfg != nil {
		adapter.path = cfg.IndexPath
	}
	return adapter, nil
}

// openOrCreateIndex opens an existing Bleve index or creates a new one.
func openOrCreateIndex(path string, indexMapping mapping.IndexMapping) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		return bleve.New(path, indexMapping)
	}
	return idx, err
}

// createDocumentMapping creates the index mapping for documents.
func createDocumentMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = "en" // English analyzer with stemming

	keywordFieldMapping := bleve.NewKeywordFieldMapping()
	dateFieldMapping := bleve.NewDateTimeFieldMapping()

	docMapping := bleve.NewDocumentMapping()

	// Searchable text fields.
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("summary", textFieldMapping)
	docMapping.AddFieldMappingsAt("description", textFieldMapping)

	// Keyword fields for exact matching and faceting.
	docMapping.AddFieldMappingsAt("location", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("documentType", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("classification", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("keywords", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("tags", keywordFieldMapping)

	docMapping.AddFieldMappingsAt("createdAt", dateFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	return "bleve"
}

// Healthy checks that the index is accessible.
func (a *Adapter) Healthy(ctx context.Context) error {
	if a.index == nil {
		return &recallsearch.Error{Op: "Healthy", Err: recallsearch.ErrBackendUnavailable}
	}
	if _, err := a.index.DocCount(); err != nil {
		return &recallsearch.Error{Op: "Healthy", Msg: "index unhealthy", Err: err}
	}
	return nil
}

// IndexDocument adds or updates a document in the index.
func (a *Adapter) IndexDocument(ctx context.Context, doc *models.Document) error {
	if err := a.index.Index(doc.ID.String(), indexable(doc)); err != nil {
		return &recallsearch.Error{Op: "Index", Err: recallsearch.ErrIndexingFailed, Msg: err.Error()}
	}
	return nil
}

// IndexBatch adds or updates multiple documents in one batch.
func (a *Adapter) IndexBatch(ctx context.Context, docs []*models.Document) error {
	batch := a.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID.String(), indexable(doc)); err != nil {
			return &recallsearch.Error{Op: "IndexBatch", Err: recallsearch.ErrIndexingFailed, Msg: err.Error()}
		}
	}
	if err := a.index.Batch(batch); err != nil {
		return &recallsearch.Error{Op: "IndexBatch", Err: recallsearch.ErrIndexingFailed, Msg: err.Error()}
	}
	return nil
}

// DeleteDocument removes a document from the index.
func (a *Adapter) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if err := a.index.Delete(id.String()); err != nil {
		return &recallsearch.Error{Op: "Delete", Err: err, Msg: "failed to delete from bleve index"}
	}
	return nil
}

// Search performs a full-text query, scores normalized to 0..1 against the
// best hit.
func (a *Adapter) Search(ctx context.Context, queryText string, limit int, filters recallsearch.Filters) ([]recallsearch.KeywordHit, error) {
	if limit <= 0 {
		limit = 10
	}

	var q query.Query
	if strings.TrimSpace(queryText) == "" {
		q = bleve.NewMatchAllQuery()
	} else {
		q = bleve.NewMatchQuery(queryText)
	}

	if filterQueries := buildFilterQueries(filters); len(filterQueries) > 0 {
		q = bleve.NewConjunctionQuery(append([]query.Query{q}, filterQueries...)...)
	}

	searchRequest := bleve.NewSearchRequest(q)
	searchRequest.Size = limit
	searchRequest.Fields = []string{"title", "location", "summary"}

	searchResult, err := a.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, &recallsearch.Error{Op: "Search", Msg: "bleve query failed", Err: err}
	}

	hits := make([]recallsearch.KeywordHit, 0, len(searchResult.Hits))
	for _, hit := range searchResult.Hits {
		docID, err := uuid.Parse(hit.ID)
		if err != nil {
			continue
		}

		kh := recallsearch.KeywordHit{
			DocumentID: docID,
			Score:      hit.Score,
		}
		if searchResult.MaxScore > 0 {
			kh.Score = hit.Score / searchResult.MaxScore
		}
		if title, ok := hit.Fields["title"].(string); ok {
			kh.Title = title
		}
		if location, ok := hit.Fields["location"].(string); ok {
			kh.Location = location
		}
		if summary, ok := hit.Fields["summary"].(string); ok {
			kh.Snippet = summary
		}
		hits = append(hits, kh)
	}
	return hits, nil
}

// buildFilterQueries translates engine filters into Bleve queries: one
// conjunct per filter, multi-valued filters require every value.
func buildFilterQueries(filters recallsearch.Filters) []query.Query {
	var out []query.Query

	exact := func(field, value string) query.Query {
		mq := bleve.NewMatchPhraseQuery(value)
		mq.SetField(field)
		return mq
	}

	if filters.DocumentType != "" {
		out = append(out, exact("documentType", filters.DocumentType))
	}
	if filters.Classification != "" {
		out = append(out, exact("classification", filters.Classification))
	}
	if filters.DocumentID != uuid.Nil {
		out = append(out, bleve.NewDocIDQuery([]string{filters.DocumentID.String()}))
	}
	for _, tag := range filters.Tags {
		out = append(out, exact("tags", tag))
	}
	// Keyword filters are substring matches, served by wildcard queries
	// over the keyword-analyzed field.
	for _, kw := range filters.Keywords {
		wq := bleve.NewWildcardQuery("*" + strings.ToLower(kw) + "*")
		wq.SetField("keywords")
		out = append(out, wq)
	}
	return out
}

// Facets returns term counts for the given keyword fields across the whole
// index.
func (a *Adapter) Facets(ctx context.Context, fields []string) (map[string]map[string]int, error) {
	searchRequest := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	searchRequest.Size = 0 // facet counts only

	for _, field := range fields {
		searchRequest.AddFacet(field, bleve.NewFacetRequest(field, 100))
	}

	searchResult, err := a.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, &recallsearch.Error{Op: "Facets", Msg: "bleve facet query failed", Err: err}
	}

	out := make(map[string]map[string]int, len(fields))
	for _, field := range fields {
		counts := make(map[string]int)
		if facet := searchResult.Facets[field]; facet != nil {
			for _, term := range facet.Terms.Terms() {
				counts[term.Term] = term.Count
			}
		}
		out[field] = counts
	}
	return out, nil
}

// Close releases the index.
func (a *Adapter) Close() error {
	return a.index.Close()
}

// indexable flattens a document into the indexed field shape. Map keys
// line up with the index mapping. Keywords are lowercased so wildcard
// filters stay case-insensitive.
func indexable(doc *models.Document) map[string]interface{} {
	keywords := doc.Metadata.GetStrings("keywords")
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	fields := map[string]interface{}{
		"title":          doc.Title,
		"location":       doc.Location,
		"documentType":   doc.DocumentType,
		"summary":        doc.Metadata.GetString("summary"),
		"description":    doc.Metadata.GetString("description"),
		"classification": doc.Metadata.GetString("classification"),
		"keywords":       lowered,
		"tags":           doc.Metadata.GetStrings("tags"),
	}
	if !doc.CreatedAt.IsZero() {
		fields["createdAt"] = doc.CreatedAt
	}
	return fields
}
