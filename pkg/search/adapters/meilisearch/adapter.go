// Package meilisearch adapts a Meilisearch instance to the keyword search
// interface. Indexing is asynchronous on the Meilisearch side; writes
// return once the task is enqueued.
package meilisearch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/meilisearch/meilisearch-go"

	"github.com/recallhq/recall/pkg/models"
	recallsearch "github.com/recallhq/recall/pkg/search"
)

const defaultIndexName = "documents"

// Config contains Meilisearch configuration.
type Config struct {
	// Host is the Meilisearch URL, e.g. "http://localhost:7700".
	Host string

	// APIKey authenticates requests. Empty for unsecured instances.
	APIKey string

	// IndexName is the document index UID (default "documents").
	IndexName string
}

// Adapter implements search.KeywordSearcher backed by Meilisearch.
type Adapter struct {
	client    meilisearch.ServiceManager
	index     meilisearch.IndexManager
	indexName string
}

// NewAdapter connects to Meilisearch, verifies reachability, and prepares
// the document index settings.
func NewAdapter(cfg *Config) (*Adapter, error) {
	if cfg == nil || cfg.Host == "" {
		return nil, fmt.Errorf("meilisearch host required")
	}

	indexName := cfg.IndexName
	if indexName == "" {
		indexName = defaultIndexName
	}

	var opts []meilisearch.Option
	if cfg.APIKey != "" {
		opts = append(opts, meilisearch.WithAPIKey(cfg.APIKey))
	}
	client := meilisearch.New(cfg.Host, opts...)

	if _, err := client.Health(); err != nil {
		return nil, &recallsearch.Error{
			Op:  "Connect",
			Msg: fmt.Sprintf("meilisearch unreachable at %s", cfg.Host),
			Err: recallsearch.ErrBackendUnavailable,
		}
	}

	adapter := &Adapter{
		client:    client,
		index:     client.Index(indexName),
		indexName: indexName,
	}
	if err := adapter.configureIndex(context.Background()); err != nil {
		return nil, err
	}
	return adapter, nil
}

// configureIndex declares which attributes are searchable and filterable.
// Settings updates are idempotent.
func (a *Adapter) configureIndex(ctx context.Context) error {
	searchable := []string{"title", "summary", "description", "keywords"}
	if _, err := a.index.UpdateSearchableAttributesWithContext(ctx, &searchable); err != nil {
		return &recallsearch.Error{Op: "Connect", Msg: "updating searchable attributes", Err: err}
	}

	filterable := []interface{}{"documentId", "documentType", "classification", "keywords", "tags"}
	if _, err := a.index.UpdateFilterableAttributesWithContext(ctx, &filterable); err != nil {
		return &recallsearch.Error{Op: "Connect", Msg: "updating filterable attributes", Err: err}
	}
	return nil
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	return "meilisearch"
}

// Healthy checks if the search backend is accessible.
func (a *Adapter) Healthy(ctx context.Context) error {
	if _, err := a.client.Health(); err != nil {
		return &recallsearch.Error{Op: "Healthy", Err: recallsearch.ErrBackendUnavailable}
	}
	return nil
}

// indexedDocument is the shape stored in the Meilisearch index.
type indexedDocument struct {
	DocumentID     string   `json:"documentId"`
	Title          string   `json:"title"`
	Location       string   `json:"location"`
	Summary        string   `json:"summary,omitempty"`
	Description    string   `json:"description,omitempty"`
	DocumentType   string   `json:"documentType"`
	Classification string   `json:"classification,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	CreatedAt      int64    `json:"createdAt,omitempty"`
}

func indexable(doc *models.Document) indexedDocument {
	keywords := doc.Metadata.GetStrings("keywords")
	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	out := indexedDocument{
		DocumentID:     doc.ID.String(),
		Title:          doc.Title,
		Location:       doc.Location,
		Summary:        doc.Metadata.GetString("summary"),
		Description:    doc.Metadata.GetString("description"),
		DocumentType:   doc.DocumentType,
		Classification: doc.Metadata.GetString("classification"),
		Keywords:       lowered,
		Tags:           doc.Metadata.GetStrings("tags"),
	}
	if !doc.CreatedAt.IsZero() {
		out.CreatedAt = doc.CreatedAt.Unix()
	}
	return out
}

// IndexDocument adds or updates a document in the index.
func (a *Adapter) IndexDocument(ctx context.Context, doc *models.Document) error {
	docs := []indexedDocument{indexable(doc)}
	primaryKey := "documentId"
	if _, err := a.index.AddDocumentsWithContext(ctx, docs, &primaryKey); err != nil {
		return &recallsearch.Error{Op: "Index", Err: recallsearch.ErrIndexingFailed, Msg: err.Error()}
	}
	return nil
}

// DeleteDocument removes a document from the index.
func (a *Adapter) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if _, err := a.index.DeleteDocumentWithContext(ctx, id.String()); err != nil {
		return &recallsearch.Error{Op: "Delete", Msg: "failed to delete from meilisearch index", Err: err}
	}
	return nil
}

// Search performs a full-text query. Meilisearch ranking scores are
// already normalized to 0..1.
func (a *Adapter) Search(ctx context.Context, query string, limit int, filters recallsearch.Filters) ([]recallsearch.KeywordHit, error) {
	if limit <= 0 {
		limit = 10
	}

	request := &meilisearch.SearchRequest{
		Limit:            int64(limit),
		ShowRankingScore: true,
	}
	if expr := filterExpression(filters); expr != nil {
		request.Filter = expr
	}

	resp, err := a.index.SearchWithContext(ctx, query, request)
	if err != nil {
		return nil, &recallsearch.Error{Op: "Search", Msg: "meilisearch query failed", Err: err}
	}

	// Round-trip hits through JSON; the SDK's hit representation is not a
	// typed document.
	raw, err := json.Marshal(resp.Hits)
	if err != nil {
		return nil, &recallsearch.Error{Op: "Search", Msg: "decoding meilisearch hits", Err: err}
	}
	var decoded []struct {
		indexedDocument
		RankingScore *float64 `json:"_rankingScore"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &recallsearch.Error{Op: "Search", Msg: "decoding meilisearch hits", Err: err}
	}

	hits := make([]recallsearch.KeywordHit, 0, len(decoded))
	for i, d := range decoded {
		docID, err := uuid.Parse(d.DocumentID)
		if err != nil {
			continue
		}

		score := float64(len(decoded)-i) / float64(len(decoded))
		if d.RankingScore != nil {
			score = *d.RankingScore
		}
		hits = append(hits, recallsearch.KeywordHit{
			DocumentID: docID,
			Title:      d.Title,
			Location:   d.Location,
			Snippet:    d.Summary,
			Score:      score,
		})
	}
	return hits, nil
}

// filterExpression renders engine filters as a Meilisearch filter string.
// Multi-valued tag and keyword filters require every value, so they join
// with AND rather than IN.
func filterExpression(f recallsearch.Filters) interface{} {
	fields := map[string][]string{}
	if f.DocumentType != "" {
		fields["documentType"] = []string{f.DocumentType}
	}
	if f.Classification != "" {
		fields["classification"] = []string{f.Classification}
	}
	if f.DocumentID != uuid.Nil {
		fields["documentId"] = []string{f.DocumentID.String()}
	}

	var clauses []string
	if base := buildMeilisearchFilters(fields); base != nil {
		clauses = append(clauses, base.(string))
	}
	for _, tag := range f.Tags {
		clauses = append(clauses, fmt.Sprintf("tags = %q", tag))
	}
	// Keyword filters degrade to exact membership; Meilisearch filters
	// have no substring operator.
	for _, kw := range f.Keywords {
		clauses = append(clauses, fmt.Sprintf("keywords = %q", strings.ToLower(kw)))
	}

	if len(clauses) == 0 {
		return nil
	}
	return strings.Join(clauses, " AND ")
}

// buildMeilisearchFilters renders a field-to-values map as a filter
// expression: single values as equality, multiple values as IN, fields
// joined with AND. Returns nil when nothing filters.
func buildMeilisearchFilters(filters map[string][]string) interface{} {
	names := make([]string, 0, len(filters))
	for field, values := range filters {
		if len(values) > 0 {
			names = append(names, field)
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	clauses := make([]string, 0, len(names))
	for _, field := range names {
		values := filters[field]
		if len(values) == 1 {
			clauses = append(clauses, fmt.Sprintf("%s = %q", field, values[0]))
			continue
		}
		quoted := make([]string, len(values))
		for i, v := range values {
			quoted[i] = fmt.Sprintf("%q", v)
		}
		clauses = append(clauses, fmt.Sprintf("%s IN [%s]", field, strings.Join(quoted, ", ")))
	}
	return strings.Join(clauses, " AND ")
}

// Close releases idle connections.
func (a *Adapter) Close() {
	a.client.Close()
}
