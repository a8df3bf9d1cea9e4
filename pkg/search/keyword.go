package search

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/recallhq/recall/pkg/models"
)

// KeywordSearcher serves the lexical leg of hybrid search. Adapters for
// external engines (Bleve, Meilisearch, Algolia) implement this; the
// database fallback needs no indexing at all.
type KeywordSearcher interface {
	// Search returns documents matching the query terms, best first.
	// Scores are normalized to 0..1.
	Search(ctx context.Context, query string, limit int, filters Filters) ([]KeywordHit, error)

	// IndexDocument adds or updates a document in the keyword index.
	IndexDocument(ctx context.Context, doc *models.Document) error

	// DeleteDocument removes a document from the keyword index.
	DeleteDocument(ctx context.Context, id uuid.UUID) error

	// Name identifies the backend in logs.
	Name() string
}

// KeywordHit is a document-level lexical match.
type KeywordHit struct {
	DocumentID uuid.UUID `json:"documentId"`
	Title      string    `json:"title"`
	Location   string    `json:"location"`
	Snippet    string    `json:"snippet,omitempty"`
	Score      float64   `json:"score"`
}

// DatabaseSearcher matches query tokens against document titles and
// metadata with SQL LIKE. It is slow past a few thousand documents but
// requires no extra infrastructure.
type DatabaseSearcher struct {
	db     *gorm.DB
	logger hclog.Logger
}

// NewDatabaseSearcher creates the fallback keyword searcher.
func NewDatabaseSearcher(db *gorm.DB, logger hclog.Logger) *DatabaseSearcher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &DatabaseSearcher{db: db, logger: logger.Named("keyword-db")}
}

func (d *DatabaseSearcher) Name() string { return "database" }

// IndexDocument is a no-op; the database is the index.
func (d *DatabaseSearcher) IndexDocument(ctx context.Context, doc *models.Document) error {
	return nil
}

// DeleteDocument is a no-op; the database is the index.
func (d *DatabaseSearcher) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	return nil
}

// Search scans processed documents whose title or metadata contains any
// query token, then ranks by the fraction of tokens matched.
func (d *DatabaseSearcher) Search(ctx context.Context, query string, limit int, filters Filters) ([]KeywordHit, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	db := d.db.WithContext(ctx).Model(&models.Document{}).
		Where("status = ?", models.StatusProcessed)
	if filters.DocumentType != "" {
		db = db.Where("document_type = ?", filters.DocumentType)
	}
	if filters.DocumentID != uuid.Nil {
		db = db.Where("id = ?", filters.DocumentID)
	}

	metadataExpr := "metadata"
	if d.db.Dialector.Name() == "postgres" {
		metadataExpr = "metadata::text"
	}

	conds := make([]string, 0, len(terms)*2)
	args := make([]interface{}, 0, len(terms)*2)
	for _, term := range terms {
		pattern := "%" + term + "%"
		conds = append(conds, "LOWER(title) LIKE ?", "LOWER("+metadataExpr+") LIKE ?")
		args = append(args, pattern, pattern)
	}
	db = db.Where(strings.Join(conds, " OR "), args...)

	var docs []models.Document
	if err := db.Limit(200).Find(&docs).Error; err != nil {
		return nil, &Error{Op: "Search", Msg: "document scan failed", Err: models.TranslateError(err)}
	}

	hits := make([]KeywordHit, 0, len(docs))
	for i := range docs {
		doc := &docs[i]
		if !matchesFilters(doc, filters) {
			continue
		}
		matched := matchCount(doc, terms)
		if matched == 0 {
			continue
		}
		hits = append(hits, KeywordHit{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Location:   doc.Location,
			Snippet:    doc.Metadata.GetString("summary"),
			Score:      float64(matched) / float64(len(terms)),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// matchCount counts query terms appearing in the document's searchable
// text: title, summary, description, and keywords.
func matchCount(doc *models.Document, terms []string) int {
	parts := []string{doc.Title,
		doc.Metadata.GetString("summary"),
		doc.Metadata.GetString("description"),
		strings.Join(doc.Metadata.GetStrings("keywords"), " "),
	}
	searchable := strings.ToLower(strings.Join(parts, " "))

	matched := 0
	for _, term := range terms {
		if strings.Contains(searchable, term) {
			matched++
		}
	}
	return matched
}

// tokenize splits a query into lowercase terms, dropping punctuation and
// single characters.
func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 1 {
			terms = append(terms, f)
		}
	}
	return terms
}
