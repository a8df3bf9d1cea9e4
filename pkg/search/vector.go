package search

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/recallhq/recall/pkg/database"
	"github.com/recallhq/recall/pkg/models"
)

// VectorIndex answers nearest-neighbor queries over embedding vectors.
// The default implementation reads the embedding store directly; adapters
// mirror embeddings into external engines (qdrant, chromem).
type VectorIndex interface {
	// Search returns up to q.K candidates ordered by ascending cosine
	// distance to the query vector.
	Search(ctx context.Context, vector []float32, q VectorQuery) ([]Candidate, error)

	// Index mirrors embedding entries into the index. The store-backed
	// index treats this as a no-op since the database is authoritative.
	Index(ctx context.Context, entries []Entry) error

	// Remove drops entries by embedding id.
	Remove(ctx context.Context, ids []uuid.UUID) error

	// Name identifies the index backend.
	Name() string
}

// VectorQuery restricts a nearest-neighbor lookup.
type VectorQuery struct {
	// K is the number of candidates to request.
	K int

	// EmbeddingModel restricts candidates to vectors produced by one
	// model, which keeps distances comparable.
	EmbeddingModel string

	// DocumentID restricts candidates to one document's embeddings.
	DocumentID uuid.UUID
}

// Candidate is a nearest-neighbor match before hydration and ranking.
type Candidate struct {
	EmbeddingID uuid.UUID `gorm:"column:id"`
	Distance    float64   `gorm:"column:distance"`
}

// Entry is one embedding mirrored into an external index.
type Entry struct {
	EmbeddingID uuid.UUID
	DocumentID  uuid.UUID
	Content     string
	Vector      []float32
	Model       string
	ChunkIndex  int
}

// Cosine returns the cosine similarity of two vectors: dot(a,b) divided by
// the product of magnitudes. Nil, zero-magnitude, or length-mismatched
// inputs yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// storeIndex serves vector queries straight from the embedding store. On
// PostgreSQL with pgvector it uses the cosine distance operator; elsewhere
// it falls back to an in-process scan, which is fine for embedded corpora.
type storeIndex struct {
	db       *gorm.DB
	pgvector bool
	logger   hclog.Logger
}

// NewStoreIndex creates the database-backed vector index.
func NewStoreIndex(db *gorm.DB, logger hclog.Logger) VectorIndex {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	idx := &storeIndex{
		db:       db,
		pgvector: database.HasPGVector(db),
		logger:   logger.Named("vector-index"),
	}
	idx.logger.Debug("store vector index ready", "pgvector", idx.pgvector)
	return idx
}

func (s *storeIndex) Name() string {
	return "store"
}

// Index is a no-op: the store already holds every embedding.
func (s *storeIndex) Index(ctx context.Context, entries []Entry) error {
	return nil
}

// Remove is a no-op: deletion happens through the storage layer.
func (s *storeIndex) Remove(ctx context.Context, ids []uuid.UUID) error {
	return nil
}

func (s *storeIndex) Search(ctx context.Context, vector []float32, q VectorQuery) ([]Candidate, error) {
	if len(vector) == 0 {
		return nil, ErrNoQueryVector
	}
	if q.K <= 0 {
		q.K = 20
	}
	if s.pgvector {
		return s.searchPGVector(ctx, vector, q)
	}
	return s.searchScan(ctx, vector, q)
}

// contentScopeSQL matches embeddings belonging to one document across the
// three content tables.
const contentScopeSQL = `embeddable_id IN (
	SELECT id FROM text_contents WHERE document_id = ?
	UNION ALL SELECT id FROM image_contents WHERE document_id = ?
	UNION ALL SELECT id FROM audio_contents WHERE document_id = ?)`

// searchPGVector runs the nearest-neighbor query on the server using the
// pgvector cosine distance operator. The vector column is stored as jsonb,
// so the query casts it; an expression index serves large corpora.
func (s *storeIndex) searchPGVector(ctx context.Context, vector []float32, q VectorQuery) ([]Candidate, error) {
	query := `
		SELECT id, ((embedding_vector::text)::vector <=> ?::vector) AS distance
		FROM embeddings
		WHERE embedding_vector IS NOT NULL`
	args := []interface{}{formatVector(vector)}

	if q.EmbeddingModel != "" {
		query += " AND embedding_model = ?"
		args = append(args, q.EmbeddingModel)
	}
	if q.DocumentID != uuid.Nil {
		query += " AND " + contentScopeSQL
		args = append(args, q.DocumentID, q.DocumentID, q.DocumentID)
	}

	query += " ORDER BY distance ASC LIMIT ?"
	args = append(args, q.K)

	var candidates []Candidate
	err := s.db.WithContext(ctx).Raw(query, args...).Scan(&candidates).Error
	if err != nil {
		return nil, &Error{Op: "Search", Msg: "pgvector query failed", Err: models.TranslateError(err)}
	}
	return candidates, nil
}

// searchScan loads candidate vectors and ranks them in process.
func (s *storeIndex) searchScan(ctx context.Context, vector []float32, q VectorQuery) ([]Candidate, error) {
	db := s.db.WithContext(ctx).Model(&models.Embedding{}).Select("id", "embedding_vector")
	if q.EmbeddingModel != "" {
		db = db.Where("embedding_model = ?", q.EmbeddingModel)
	}
	if q.DocumentID != uuid.Nil {
		db = db.Where(contentScopeSQL, q.DocumentID, q.DocumentID, q.DocumentID)
	}

	var rows []models.Embedding
	if err := db.Find(&rows).Error; err != nil {
		return nil, &Error{Op: "Search", Msg: "embedding scan failed", Err: models.TranslateError(err)}
	}

	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, Candidate{
			EmbeddingID: row.ID,
			Distance:    1 - Cosine(vector, row.Vector),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
	if len(candidates) > q.K {
		candidates = candidates[:q.K]
	}
	return candidates, nil
}

// formatVector renders a vector in pgvector literal form: "[0.1,0.2,0.3]".
func formatVector(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return fmt.Sprintf("[%s]", strings.Join(parts, ","))
}
