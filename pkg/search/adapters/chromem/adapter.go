// Package chromem mirrors embeddings into an embedded chromem-go store.
// It needs no external service, which makes it the default choice for
// single-process deployments that want an ANN index separate from the
// primary database.
package chromem

import (
	"context"
	"fmt"
	"runtime"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"

	recallsearch "github.com/recallhq/recall/pkg/search"
)

const defaultCollection = "recall-embeddings"

// Config contains chromem configuration.
type Config struct {
	// PersistPath is a directory for write-through persistence. Empty
	// keeps vectors in memory only.
	PersistPath string

	// Compress enables gzip compression for persisted vectors.
	Compress bool

	// Collection is the collection name (default "recall-embeddings").
	Collection string
}

// Adapter implements search.VectorIndex backed by chromem-go.
type Adapter struct {
	db  *chromem.DB
	col *chromem.Collection
}

// NewAdapter creates the embedded vector index, restoring any previously
// persisted vectors when a persist path is set.
func NewAdapter(cfg *Config) (*Adapter, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	collection := cfg.Collection
	if collection == "" {
		collection = defaultCollection
	}

	var db *chromem.DB
	var err error
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			return nil, &recallsearch.Error{Op: "Connect", Msg: "opening chromem store", Err: err}
		}
	} else {
		db = chromem.NewDB()
	}

	// Vectors arrive pre-computed, so the embedding function must never
	// run.
	embed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("chromem index received text without a vector")
	}

	col, err := db.GetOrCreateCollection(collection, nil, embed)
	if err != nil {
		return nil, &recallsearch.Error{Op: "Connect", Msg: "creating chromem collection", Err: err}
	}

	return &Adapter{db: db, col: col}, nil
}

// Name identifies the index backend.
func (a *Adapter) Name() string {
	return "chromem"
}

// Index mirrors embedding entries keyed by embedding id.
func (a *Adapter) Index(ctx context.Context, entries []recallsearch.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]chromem.Document, 0, len(entries))
	for _, entry := range entries {
		docs = append(docs, chromem.Document{
			ID:      entry.EmbeddingID.String(),
			Content: entry.Content,
			Metadata: map[string]string{
				"document_id": entry.DocumentID.String(),
				"model":       entry.Model,
				"chunk_index": fmt.Sprintf("%d", entry.ChunkIndex),
			},
			Embedding: entry.Vector,
		})
	}

	if err := a.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return &recallsearch.Error{Op: "Index", Err: recallsearch.ErrIndexingFailed, Msg: err.Error()}
	}
	return nil
}

// Remove drops entries by embedding id.
func (a *Adapter) Remove(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	if err := a.col.Delete(ctx, nil, nil, strs...); err != nil {
		return &recallsearch.Error{Op: "Delete", Msg: "deleting chromem documents", Err: err}
	}
	return nil
}

// Search returns the nearest entries by cosine distance. Restrictions are
// applied after the similarity pass, so restricted queries scan the whole
// collection; chromem computes every similarity regardless.
func (a *Adapter) Search(ctx context.Context, vector []float32, q recallsearch.VectorQuery) ([]recallsearch.Candidate, error) {
	if len(vector) == 0 {
		return nil, recallsearch.ErrNoQueryVector
	}
	if q.K <= 0 {
		q.K = 20
	}

	count := a.col.Count()
	if count == 0 {
		return nil, nil
	}

	restricted := q.EmbeddingModel != "" || q.DocumentID != uuid.Nil
	n := q.K
	if restricted || n > count {
		n = count
	}

	results, err := a.col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, &recallsearch.Error{Op: "Search", Msg: "chromem query failed", Err: err}
	}

	candidates := make([]recallsearch.Candidate, 0, q.K)
	for _, r := range results {
		if q.EmbeddingModel != "" && r.Metadata["model"] != q.EmbeddingModel {
			continue
		}
		if q.DocumentID != uuid.Nil && r.Metadata["document_id"] != q.DocumentID.String() {
			continue
		}
		id, err := uuid.Parse(r.ID)
		if err != nil {
			continue
		}
		candidates = append(candidates, recallsearch.Candidate{
			EmbeddingID: id,
			Distance:    1 - float64(r.Similarity),
		})
		if len(candidates) == q.K {
			break
		}
	}
	return candidates, nil
}
