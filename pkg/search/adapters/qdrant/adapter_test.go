package qdrant

import (
	"testing"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	recallsearch "github.com/recallhq/recall/pkg/search"
)

// TestNewAdapter tests adapter creation. The gRPC client is lazy, so a
// missing server does not fail construction.
func TestNewAdapter(t *testing.T) {
	tests := []struct {
		name           string
		config         *Config
		wantCollection string
	}{
		{
			name:           "nil config uses defaults",
			config:         nil,
			wantCollection: "recall_embeddings",
		},
		{
			name:           "empty config uses defaults",
			config:         &Config{},
			wantCollection: "recall_embeddings",
		},
		{
			name: "explicit collection",
			config: &Config{
				Host:       "qdrant.local",
				Port:       7334,
				Collection: "prod-vectors",
			},
			wantCollection: "prod-vectors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := NewAdapter(tt.config)
			if err != nil {
				t.Fatalf("NewAdapter() error = %v", err)
			}
			if adapter == nil {
				t.Fatal("NewAdapter() returned nil adapter")
			}
			defer adapter.Close()

			if adapter.collection != tt.wantCollection {
				t.Errorf("collection = %v, want %v", adapter.collection, tt.wantCollection)
			}
		})
	}
}

func TestAdapter_Name(t *testing.T) {
	adapter, err := NewAdapter(nil)
	if err != nil {
		t.Fatalf("NewAdapter() error = %v", err)
	}
	defer adapter.Close()

	if got := adapter.Name(); got != "qdrant" {
		t.Errorf("Name() = %v, want qdrant", got)
	}
}

// TestAdapter_Interface verifies the adapter implements the vector index.
func TestAdapter_Interface(t *testing.T) {
	var _ recallsearch.VectorIndex = (*Adapter)(nil)
}

func TestBuildFilter(t *testing.T) {
	docID := uuid.New()

	t.Run("no restrictions", func(t *testing.T) {
		if got := buildFilter(recallsearch.VectorQuery{K: 10}); got != nil {
			t.Errorf("buildFilter() = %v, want nil", got)
		}
	})

	t.Run("embedding model", func(t *testing.T) {
		filter := buildFilter(recallsearch.VectorQuery{EmbeddingModel: "nomic-embed-text"})
		if filter == nil || len(filter.Must) != 1 {
			t.Fatalf("expected one condition, got %v", filter)
		}
		field := filter.Must[0].GetField()
		if field.GetKey() != "model" {
			t.Errorf("key = %v, want model", field.GetKey())
		}
		if field.GetMatch().GetKeyword() != "nomic-embed-text" {
			t.Errorf("keyword = %v, want nomic-embed-text", field.GetMatch().GetKeyword())
		}
	})

	t.Run("document scope", func(t *testing.T) {
		filter := buildFilter(recallsearch.VectorQuery{DocumentID: docID})
		if filter == nil || len(filter.Must) != 1 {
			t.Fatalf("expected one condition, got %v", filter)
		}
		field := filter.Must[0].GetField()
		if field.GetKey() != "document_id" {
			t.Errorf("key = %v, want document_id", field.GetKey())
		}
		if field.GetMatch().GetKeyword() != docID.String() {
			t.Errorf("keyword = %v, want %v", field.GetMatch().GetKeyword(), docID)
		}
	})

	t.Run("combined", func(t *testing.T) {
		filter := buildFilter(recallsearch.VectorQuery{
			EmbeddingModel: "nomic-embed-text",
			DocumentID:     docID,
		})
		if filter == nil || len(filter.Must) != 2 {
			t.Fatalf("expected two conditions, got %v", filter)
		}
	})
}

func TestPointUUID(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name   string
		point  *qdrant.PointId
		want   uuid.UUID
		wantOK bool
	}{
		{
			name:   "uuid id",
			point:  qdrant.NewID(id.String()),
			want:   id,
			wantOK: true,
		},
		{
			name:   "numeric id skipped",
			point:  qdrant.NewIDNum(42),
			wantOK: false,
		},
		{
			name:   "malformed uuid skipped",
			point:  qdrant.NewID("not-a-uuid"),
			wantOK: false,
		},
		{
			name:   "nil id",
			point:  nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pointUUID(tt.point)
			if ok != tt.wantOK {
				t.Fatalf("pointUUID() ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantOK && got != tt.want {
				t.Errorf("pointUUID() = %v, want %v", got, tt.want)
			}
		})
	}
}
