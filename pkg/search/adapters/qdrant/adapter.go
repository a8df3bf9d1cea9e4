// Package qdrant mirrors embeddings into a Qdrant collection and serves
// nearest-neighbor queries from it. The gRPC client is lazy, so
// construction never touches the network.
package qdrant

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	recallsearch "github.com/recallhq/recall/pkg/search"
)

const defaultCollection = "recall_embeddings"

// Config contains Qdrant configuration.
type Config struct {
	// Host is the Qdrant server hostname (default "localhost").
	Host string

	// Port is the Qdrant gRPC port (default 6334).
	Port int

	// APIKey for authenticated access (optional).
	APIKey string

	// UseTLS enables TLS connections.
	UseTLS bool

	// Collection is the collection name (default "recall_embeddings").
	Collection string
}

// Adapter implements search.VectorIndex backed by Qdrant.
type Adapter struct {
	client     *qdrant.Client
	collection string

	mu    sync.Mutex
	ready bool
}

// NewAdapter creates a Qdrant-backed vector index.
func NewAdapter(cfg *Config) (*Adapter, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 6334
	}
	collection := cfg.Collection
	if collection == "" {
		collection = defaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, &recallsearch.Error{
			Op:  "Connect",
			Msg: fmt.Sprintf("creating qdrant client for %s:%d", host, port),
			Err: err,
		}
	}

	return &Adapter{client: client, collection: collection}, nil
}

// Name identifies the index backend.
func (a *Adapter) Name() string {
	return "qdrant"
}

// ensureCollection creates the collection on first write. The dimension
// comes from the first mirrored vector; Qdrant rejects writes with a
// different dimension afterwards.
func (a *Adapter) ensureCollection(ctx context.Context, dimension int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return nil
	}

	exists, err := a.client.CollectionExists(ctx, a.collection)
	if err != nil {
		return &recallsearch.Error{Op: "Index", Msg: "checking qdrant collection", Err: recallsearch.ErrBackendUnavailable}
	}
	if !exists {
		err = a.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: a.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return &recallsearch.Error{Op: "Index", Msg: "creating qdrant collection", Err: err}
		}
	}
	a.ready = true
	return nil
}

// collectionReady reports whether the collection exists without creating
// it, so searches against an empty index return no results instead of a
// not-found error.
func (a *Adapter) collectionReady(ctx context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ready {
		return true, nil
	}
	exists, err := a.client.CollectionExists(ctx, a.collection)
	if err != nil {
		return false, &recallsearch.Error{Op: "Search", Msg: "checking qdrant collection", Err: recallsearch.ErrBackendUnavailable}
	}
	a.ready = exists
	return exists, nil
}

// Index mirrors embedding entries as Qdrant points keyed by embedding id.
func (a *Adapter) Index(ctx context.Context, entries []recallsearch.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := a.ensureCollection(ctx, len(entries[0].Vector)); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(entries))
	for _, entry := range entries {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(entry.EmbeddingID.String()),
			Vectors: qdrant.NewVectors(entry.Vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"document_id": entry.DocumentID.String(),
				"model":       entry.Model,
				"chunk_index": int64(entry.ChunkIndex),
			}),
		})
	}

	_, err := a.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: a.collection,
		Points:         points,
	})
	if err != nil {
		return &recallsearch.Error{Op: "Index", Err: recallsearch.ErrIndexingFailed, Msg: err.Error()}
	}
	return nil
}

// Remove drops points by embedding id.
func (a *Adapter) Remove(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id.String())
	}

	_, err := a.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: a.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return &recallsearch.Error{Op: "Delete", Msg: "deleting qdrant points", Err: err}
	}
	return nil
}

// Search returns the nearest points by cosine distance. Qdrant reports a
// cosine similarity score, so distance is its complement.
func (a *Adapter) Search(ctx context.Context, vector []float32, q recallsearch.VectorQuery) ([]recallsearch.Candidate, error) {
	if len(vector) == 0 {
		return nil, recallsearch.ErrNoQueryVector
	}
	if q.K <= 0 {
		q.K = 20
	}

	ready, err := a.collectionReady(ctx)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, nil
	}

	request := &qdrant.SearchPoints{
		CollectionName: a.collection,
		Vector:         vector,
		Limit:          uint64(q.K),
	}
	if filter := buildFilter(q); filter != nil {
		request.Filter = filter
	}

	result, err := a.client.GetPointsClient().Search(ctx, request)
	if err != nil {
		return nil, &recallsearch.Error{Op: "Search", Msg: "qdrant query failed", Err: err}
	}

	candidates := make([]recallsearch.Candidate, 0, len(result.Result))
	for _, point := range result.Result {
		id, ok := pointUUID(point.Id)
		if !ok {
			continue
		}
		candidates = append(candidates, recallsearch.Candidate{
			EmbeddingID: id,
			Distance:    1 - float64(point.Score),
		})
	}
	return candidates, nil
}

// buildFilter translates query restrictions into payload match conditions.
func buildFilter(q recallsearch.VectorQuery) *qdrant.Filter {
	var conditions []*qdrant.Condition
	if q.EmbeddingModel != "" {
		conditions = append(conditions, qdrant.NewMatch("model", q.EmbeddingModel))
	}
	if q.DocumentID != uuid.Nil {
		conditions = append(conditions, qdrant.NewMatch("document_id", q.DocumentID.String()))
	}
	if len(conditions) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: conditions}
}

func pointUUID(id *qdrant.PointId) (uuid.UUID, bool) {
	if id == nil {
		return uuid.Nil, false
	}
	raw, ok := id.PointIdOptions.(*qdrant.PointId_Uuid)
	if !ok {
		return uuid.Nil, false
	}
	parsed, err := uuid.Parse(raw.Uuid)
	if err != nil {
		return uuid.Nil, false
	}
	return parsed, true
}

// Close closes the gRPC connection.
func (a *Adapter) Close() error {
	return a.client.Close()
}
