// Package algolia adapts an Algolia application to the keyword search
// interface. The client is lazy, so construction never touches the
// network; credential problems surface on the first operation.
package algolia

import (
	"context"
	"fmt"
	"strings"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/opt"
	algoliasearch "github.com/algolia/algoliasearch-client-go/v3/algolia/search"
	"github.com/google/uuid"

	"github.com/recallhq/recall/pkg/models"
	recallsearch "github.com/recallhq/recall/pkg/search"
)

const defaultIndexName = "documents"

// Config contains Algolia configuration.
type Config struct {
	// AppID is the Algolia application ID.
	AppID string

	// WriteAPIKey authenticates indexing operations.
	WriteAPIKey string

	// SearchAPIKey optionally authenticates queries with a restricted
	// key. Falls back to WriteAPIKey when empty.
	SearchAPIKey string

	// IndexName is the document index (default "documents").
	IndexName string
}

// Adapter implements search.KeywordSearcher backed by Algolia.
type Adapter struct {
	appID       string
	client      *algoliasearch.Client
	index       *algoliasearch.Index
	searchIndex *algoliasearch.Index
	indexName   string
}

// NewAdapter creates an Algolia-backed searcher.
func NewAdapter(cfg *Config) (*Adapter, error) {
	if cfg == nil || cfg.AppID == "" || cfg.WriteAPIKey == "" {
		return nil, fmt.Errorf("algolia credentials required")
	}

	indexName := cfg.IndexName
	if indexName == "" {
		indexName = defaultIndexName
	}

	client := algoliasearch.NewClient(cfg.AppID, cfg.WriteAPIKey)
	index := client.InitIndex(indexName)

	searchIndex := index
	if cfg.SearchAPIKey != "" {
		searchIndex = algoliasearch.NewClient(cfg.AppID, cfg.SearchAPIKey).InitIndex(indexName)
	}

	return &Adapter{
		appID:       cfg.AppID,
		client:      client,
		index:       index,
		searchIndex: searchIndex,
		indexName:   indexName,
	}, nil
}

// Name returns the provider name.
func (a *Adapter) Name() string {
	return "algolia"
}

// Healthy checks if the Algolia application is reachable.
func (a *Adapter) Healthy(ctx context.Context) error {
	if _, err := a.client.ListIndices(ctx); err != nil {
		return &recallsearch.Error{Op: "Healthy", Err: recallsearch.ErrBackendUnavailable}
	}
	return nil
}

// indexedDocument is the record shape stored in the Algolia index.
// Algolia keys every record by objectID.
type indexedDocument struct {
	ObjectID       string   `json:"objectID"`
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
		ObjectID:       doc.ID.String(),
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

// IndexDocument adds or updates a document record.
func (a *Adapter) IndexDocument(ctx context.Context, doc *models.Document) error {
	if _, err := a.index.SaveObject(indexable(doc), ctx); err != nil {
		return &recallsearch.Error{Op: "Index", Err: recallsearch.ErrIndexingFailed, Msg: err.Error()}
	}
	return nil
}

// DeleteDocument removes a document record.
func (a *Adapter) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if _, err := a.index.DeleteObject(id.String(), ctx); err != nil {
		return &recallsearch.Error{Op: "Delete", Msg: "failed to delete from algolia index", Err: err}
	}
	return nil
}

// Search performs a full-text query. Algolia orders hits by its own
// ranking formula without exposing a normalized score, so scores here
// decay by rank.
func (a *Adapter) Search(ctx context.Context, query string, limit int, filters recallsearch.Filters) ([]recallsearch.KeywordHit, error) {
	if limit <= 0 {
		limit = 10
	}

	opts := []interface{}{ctx, opt.HitsPerPage(limit)}
	if expr := filterExpression(filters); expr != "" {
		opts = append(opts, opt.Filters(expr))
	}

	res, err := a.searchIndex.Search(query, opts...)
	if err != nil {
		return nil, &recallsearch.Error{Op: "Search", Msg: "algolia query failed", Err: err}
	}

	var decoded []indexedDocument
	if err := res.UnmarshalHits(&decoded); err != nil {
		return nil, &recallsearch.Error{Op: "Search", Msg: "decoding algolia hits", Err: err}
	}

	hits := make([]recallsearch.KeywordHit, 0, len(decoded))
	for i, d := range decoded {
		docID, err := uuid.Parse(d.ObjectID)
		if err != nil {
			continue
		}
		hits = append(hits, recallsearch.KeywordHit{
			DocumentID: docID,
			Title:      d.Title,
			Location:   d.Location,
			Snippet:    d.Summary,
			Score:      float64(len(decoded)-i) / float64(len(decoded)),
		})
	}
	return hits, nil
}

// filterExpression renders engine filters in Algolia filter syntax.
// Clauses join with AND so multi-valued tag and keyword filters require
// every value.
func filterExpression(f recallsearch.Filters) string {
	var clauses []string
	if f.DocumentType != "" {
		clauses = append(clauses, fmt.Sprintf("documentType:%q", f.DocumentType))
	}
	if f.Classification != "" {
		clauses = append(clauses, fmt.Sprintf("classification:%q", f.Classification))
	}
	if f.DocumentID != uuid.Nil {
		clauses = append(clauses, fmt.Sprintf("objectID:%q", f.DocumentID.String()))
	}
	for _, tag := range f.Tags {
		clauses = append(clauses, fmt.Sprintf("tags:%q", tag))
	}
	// Keyword filters degrade to exact membership against the lowercased
	// keyword list.
	for _, kw := range f.Keywords {
		clauses = append(clauses, fmt.Sprintf("keywords:%q", strings.ToLower(kw)))
	}
	return strings.Join(clauses, " AND ")
}
