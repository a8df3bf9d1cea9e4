package metadata

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/pkg/llm"
	"github.com/recallhq/recall/pkg/models"
)

func newTestGenerator(t *testing.T, mock *llm.Mock) *Generator {
	t.Helper()
	cfg := llm.Config{DefaultProvider: "mock"}
	factory := llm.NewFactory(cfg, nil)
	factory.Register("mock", mock)
	return NewGenerator(llm.NewGatewayWithFactory(cfg, factory, nil), nil)
}

func TestGenerator_Generate(t *testing.T) {
	mock := llm.NewMock().WithChatContent(`{
		"summary": "A guide to Go concurrency patterns.",
		"keywords": ["go", "concurrency", "channels"],
		"classification": "technical",
		"topics": ["goroutines", "channels"]
	}`)
	gen := newTestGenerator(t, mock)

	doc := &models.Document{Title: "concurrency.md", DocumentType: models.TypeMarkdown}
	meta, err := gen.Generate(context.Background(), doc, "Go concurrency is built around goroutines and channels.")
	require.NoError(t, err)

	assert.Equal(t, "A guide to Go concurrency patterns.", meta["summary"])
	assert.Equal(t, []string{"go", "concurrency", "channels"}, meta["keywords"])
	assert.Equal(t, "technical", meta["classification"])
	assert.Equal(t, []string{"goroutines", "channels"}, meta["topics"])
	assert.Equal(t, 1, mock.ChatCalls())

	prompt := mock.LastChatPrompt()
	assert.Contains(t, prompt, "- summary (string) [required]")
	assert.Contains(t, prompt, "- keywords (array of strings, at most 20) [required]")
	assert.Contains(t, prompt, "Content preview:")
	assert.Contains(t, prompt, "goroutines and channels")
}

func TestGenerator_Generate_FileMetadataInPrompt(t *testing.T) {
	mock := llm.NewMock().WithChatContent(`{
		"description": "A dog running on a beach.",
		"summary": "Photo of a dog on a beach at sunset.",
		"scene_type": "outdoor",
		"classification": "personal"
	}`)
	gen := newTestGenerator(t, mock)

	doc := &models.Document{
		Title:        "beach.jpg",
		DocumentType: models.TypeImage,
		FileMetadata: models.JSONMap{"width": 800, "height": 600},
	}
	meta, err := gen.Generate(context.Background(), doc, "")
	require.NoError(t, err)

	assert.Equal(t, "outdoor", meta["scene_type"])
	assert.Equal(t, "A dog running on a beach.", meta["description"])

	prompt := mock.LastChatPrompt()
	assert.Contains(t, prompt, "File metadata:")
	assert.Contains(t, prompt, `"width":800`)
	assert.Contains(t, prompt, "- scene_type (one of: indoor, outdoor, portrait, landscape, document, screenshot, diagram, other) [required]")
}

func TestGenerator_Generate_CanonicalizesKeys(t *testing.T) {
	mock := llm.NewMock().WithChatContent(`{
		"Summary": "Release notes for version two.",
		"Keywords": ["release", "notes"],
		"Classification": "news",
		"estimatedDate": "2024-03-01"
	}`)
	gen := newTestGenerator(t, mock)

	doc := &models.Document{Title: "notes.pdf", DocumentType: models.TypePDF}
	meta, err := gen.Generate(context.Background(), doc, "Version two ships today.")
	require.NoError(t, err)

	assert.Equal(t, "Release notes for version two.", meta["summary"])
	assert.Equal(t, []string{"release", "notes"}, meta["keywords"])
	assert.Equal(t, "news", meta["classification"])
	assert.Equal(t, "2024-03-01", meta["estimated_date"])
	assert.NotContains(t, meta, "Summary")
	assert.NotContains(t, meta, "estimatedDate")

	// The reply never named a document_type, so it is backfilled.
	assert.Equal(t, "other", meta["document_type"])
}

func TestGenerator_Generate_DropsUnknownAndInvalid(t *testing.T) {
	mock := llm.NewMock().WithChatContent(`{
		"summary": "A short note.",
		"keywords": ["note"],
		"classification": "alien",
		"mood": "happy",
		"topics": {"nested": true}
	}`)
	gen := newTestGenerator(t, mock)

	doc := &models.Document{Title: "note.txt", DocumentType: models.TypeText}
	meta, err := gen.Generate(context.Background(), doc, "A short note.")
	require.NoError(t, err)

	assert.Equal(t, "A short note.", meta["summary"])
	assert.Equal(t, []string{"note"}, meta["keywords"])
	assert.NotContains(t, meta, "mood")
	assert.NotContains(t, meta, "topics")

	// The invalid classification is dropped, then backfilled.
	assert.Equal(t, "other", meta["classification"])
}

func TestGenerator_Generate_CoercesScalars(t *testing.T) {
	mock := llm.NewMock().WithChatContent(`{
		"summary": "Numbers everywhere.",
		"keywords": "statistics",
		"classification": "Technical",
		"topics": ["math", 42]
	}`)
	gen := newTestGenerator(t, mock)

	doc := &models.Document{Title: "stats.md", DocumentType: models.TypeMarkdown}
	meta, err := gen.Generate(context.Background(), doc, "Statistics on everything.")
	require.NoError(t, err)

	assert.Equal(t, []string{"statistics"}, meta["keywords"])
	assert.Equal(t, "technical", meta["classification"])
	assert.Equal(t, []string{"math", "42"}, meta["topics"])
}

func TestGenerator_Generate_EnforcesMaxItems(t *testing.T) {
	mock := llm.NewMock().WithChatContent(`{
		"summary": "Tag soup.",
		"keywords": ["k"],
		"classification": "other",
		"tags": ["t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9", "t10", "t11", "t12"]
	}`)
	gen := newTestGenerator(t, mock)

	doc := &models.Document{Title: "soup.txt", DocumentType: models.TypeText}
	meta, err := gen.Generate(context.Background(), doc, "Tags on tags.")
	require.NoError(t, err)

	tags, ok := meta["tags"].([]string)
	require.True(t, ok)
	assert.Len(t, tags, 10)
	assert.Equal(t, "t1", tags[0])
	assert.Equal(t, "t10", tags[9])
}

func TestGenerator_Generate_FencedResponse(t *testing.T) {
	mock := llm.NewMock().WithChatContent("```json\n{\"summary\": \"Fenced.\", \"keywords\": [\"fence\"], \"classification\": \"other\"}\n```")
	gen := newTestGenerator(t, mock)

	doc := &models.Document{Title: "fence.txt", DocumentType: models.TypeText}
	meta, err := gen.Generate(context.Background(), doc, "Fenced reply.")
	require.NoError(t, err)

	assert.Equal(t, "Fenced.", meta["summary"])
	assert.Equal(t, []string{"fence"}, meta["keywords"])
}

func TestGenerator_Generate_InvalidJSON(t *testing.T) {
	mock := llm.NewMock().WithChatContent("definitely-not-json")
	gen := newTestGenerator(t, mock)

	doc := &models.Document{Title: "note.txt", DocumentType: models.TypeText}
	meta, err := gen.Generate(context.Background(), doc, "Plain note about nothing much.")
	require.NoError(t, err)

	schema := SchemaFor(models.TypeText)
	assert.Empty(t, schema.MissingRequired(meta))
	assert.Equal(t, "Plain note about nothing much.", meta["summary"])
	assert.Equal(t, "other", meta["classification"])
}

func TestGenerator_Generate_ProviderFailure(t *testing.T) {
	mock := llm.NewMock().WithChatError(errors.New("provider down"))
	gen := newTestGenerator(t, mock)

	content := "kubernetes cluster scaling kubernetes deployment scaling kubernetes"
	doc := &models.Document{Title: "infra.md", DocumentType: models.TypeMarkdown}
	meta, err := gen.Generate(context.Background(), doc, content)
	require.NoError(t, err)

	// Short content comes back verbatim as the summary.
	assert.Equal(t, content, meta["summary"])
	assert.Equal(t, []string{"kubernetes", "scaling", "cluster", "deployment"}, meta["keywords"])
	assert.Equal(t, "other", meta["classification"])
}

func TestGenerator_Generate_ProviderFailureImage(t *testing.T) {
	mock := llm.NewMock().WithChatError(errors.New("provider down"))
	gen := newTestGenerator(t, mock)

	doc := &models.Document{Title: "photo.jpg", DocumentType: models.TypeImage}
	meta, err := gen.Generate(context.Background(), doc, "")
	require.NoError(t, err)

	assert.Equal(t, "photo.jpg (image)", meta["description"])
	assert.Equal(t, "photo.jpg (image)", meta["summary"])
	assert.Equal(t, "other", meta["scene_type"])
	assert.Equal(t, "other", meta["classification"])
	assert.Empty(t, SchemaFor(models.TypeImage).MissingRequired(meta))
}

func TestGenerator_Generate_ProviderFailureMixed(t *testing.T) {
	mock := llm.NewMock().WithChatError(errors.New("provider down"))
	gen := newTestGenerator(t, mock)

	doc := &models.Document{Title: "bundle", DocumentType: models.TypeMixed}
	meta, err := gen.Generate(context.Background(), doc, "")
	require.NoError(t, err)

	assert.Equal(t, []string{models.TypeText}, meta["content_types"])
	assert.Equal(t, models.TypeText, meta["primary_content_type"])
	assert.Empty(t, SchemaFor(models.TypeMixed).MissingRequired(meta))
}

func TestGenerator_Generate_EmptyContent(t *testing.T) {
	mock := llm.NewMock().WithChatError(errors.New("provider down"))
	gen := newTestGenerator(t, mock)

	doc := &models.Document{Title: "empty.txt", DocumentType: models.TypeText}
	meta, err := gen.Generate(context.Background(), doc, "")
	require.NoError(t, err)

	assert.Equal(t, "empty.txt (text)", meta["summary"])
	assert.Equal(t, []string{models.TypeText}, meta["keywords"])
	assert.Equal(t, "other", meta["classification"])
}

func TestGenerator_Generate_ContextCanceled(t *testing.T) {
	gen := newTestGenerator(t, llm.NewMock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := &models.Document{Title: "note.txt", DocumentType: models.TypeText}
	_, err := gen.Generate(ctx, doc, "content")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGenerator_Generate_LongContentTruncated(t *testing.T) {
	mock := llm.NewMock().WithChatContent(`{"summary": "Long.", "keywords": ["long"], "classification": "other"}`)
	gen := newTestGenerator(t, mock)

	doc := &models.Document{Title: "long.txt", DocumentType: models.TypeText}
	content := strings.Repeat("a", 5000)
	_, err := gen.Generate(context.Background(), doc, content)
	require.NoError(t, err)

	assert.NotContains(t, mock.LastChatPrompt(), strings.Repeat("a", 2001))
	assert.Contains(t, mock.LastChatPrompt(), strings.Repeat("a", 2000))
}

func TestMerge(t *testing.T) {
	existing := map[string]interface{}{
		"summary": "curated summary",
		"owner":   "docs-team",
	}
	generated := map[string]interface{}{
		"summary":        "generated summary",
		"keywords":       []string{"one", "two"},
		"classification": "technical",
	}

	merged := Merge(existing, generated)

	assert.Equal(t, "curated summary", merged["summary"])
	assert.Equal(t, "docs-team", merged["owner"])
	assert.Equal(t, []string{"one", "two"}, merged["keywords"])
	assert.Equal(t, "technical", merged["classification"])

	// Inputs stay untouched and re-merging is stable.
	assert.Len(t, existing, 2)
	assert.Equal(t, merged, Merge(merged, generated))
}

func TestMerge_NilInputs(t *testing.T) {
	assert.Empty(t, Merge(nil, nil))
	assert.Equal(t, map[string]interface{}{"a": 1}, Merge(nil, map[string]interface{}{"a": 1}))
	assert.Equal(t, map[string]interface{}{"a": 1}, Merge(map[string]interface{}{"a": 1}, nil))
}
