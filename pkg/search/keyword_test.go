package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/recallhq/recall/pkg/models"
)

func seedLexicalDoc(t *testing.T, db *gorm.DB, title, status string, meta models.JSONMap) *models.Document {
	t.Helper()

	doc := &models.Document{
		Location:     "/corpus/" + title,
		Title:        title,
		DocumentType: models.TypeText,
		Status:       status,
		Metadata:     meta,
	}
	require.NoError(t, db.Create(doc).Error)
	return doc
}

func TestDatabaseSearcher_Search(t *testing.T) {
	db := setupEngineTest(t)
	ctx := context.Background()

	kube := seedLexicalDoc(t, db, "kubernetes scaling guide", models.StatusProcessed, models.JSONMap{
		"summary":  "How to scale kubernetes clusters",
		"keywords": []string{"kubernetes", "autoscaling"},
	})
	budget := seedLexicalDoc(t, db, "quarterly budget", models.StatusProcessed, models.JSONMap{
		"summary":  "Budget numbers for the third quarter",
		"keywords": []string{"finance"},
	})
	seedLexicalDoc(t, db, "kubernetes draft", models.StatusPending, nil)

	searcher := NewDatabaseSearcher(db, nil)
	assert.Equal(t, "database", searcher.Name())

	t.Run("matches title tokens", func(t *testing.T) {
		hits, err := searcher.Search(ctx, "kubernetes", 10, Filters{})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, kube.ID, hits[0].DocumentID)
		assert.Equal(t, "kubernetes scaling guide", hits[0].Title)
		assert.Equal(t, "How to scale kubernetes clusters", hits[0].Snippet)
		assert.Equal(t, 1.0, hits[0].Score)
	})

	t.Run("matches metadata keywords", func(t *testing.T) {
		hits, err := searcher.Search(ctx, "finance", 10, Filters{})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, budget.ID, hits[0].DocumentID)
	})

	t.Run("case insensitive", func(t *testing.T) {
		hits, err := searcher.Search(ctx, "KUBERNETES", 10, Filters{})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, kube.ID, hits[0].DocumentID)
	})

	t.Run("ranks by fraction of terms matched", func(t *testing.T) {
		hits, err := searcher.Search(ctx, "kubernetes budget", 10, Filters{})
		require.NoError(t, err)
		require.Len(t, hits, 2)

		// Each document matches one of two terms.
		for _, h := range hits {
			assert.InDelta(t, 0.5, h.Score, 0.0001)
		}

		hits, err = searcher.Search(ctx, "quarterly budget numbers", 10, Filters{})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, budget.ID, hits[0].DocumentID)
		assert.Equal(t, 1.0, hits[0].Score)
	})

	t.Run("only processed documents", func(t *testing.T) {
		hits, err := searcher.Search(ctx, "draft", 10, Filters{})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("honors filters", func(t *testing.T) {
		hits, err := searcher.Search(ctx, "kubernetes budget", 10, Filters{DocumentID: budget.ID})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, budget.ID, hits[0].DocumentID)
	})

	t.Run("limit applies", func(t *testing.T) {
		hits, err := searcher.Search(ctx, "kubernetes budget", 1, Filters{})
		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})

	t.Run("no tokens", func(t *testing.T) {
		hits, err := searcher.Search(ctx, "  ?! ", 10, Filters{})
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestDatabaseSearcher_IndexingIsNoOp(t *testing.T) {
	db := setupEngineTest(t)
	ctx := context.Background()

	searcher := NewDatabaseSearcher(db, nil)
	doc := seedLexicalDoc(t, db, "plain", models.StatusProcessed, nil)

	require.NoError(t, searcher.IndexDocument(ctx, doc))
	require.NoError(t, searcher.DeleteDocument(ctx, doc.ID))
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected []string
	}{
		{
			name:     "lowercases and splits",
			query:    "Kubernetes Scaling",
			expected: []string{"kubernetes", "scaling"},
		},
		{
			name:     "strips punctuation",
			query:    "what's the Q3 budget?",
			expected: []string{"what", "the", "q3", "budget"},
		},
		{
			name:     "drops single characters",
			query:    "a b see",
			expected: []string{"see"},
		},
		{
			name:     "empty query",
			query:    "   ",
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tokenize(tt.query))
		})
	}
}
