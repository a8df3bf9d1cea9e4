package ingest

import (
	"context"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/pkg/llm"
	"github.com/recallhq/recall/pkg/metadata"
	"github.com/recallhq/recall/pkg/models"
)

func TestGenerateMetadataStep_Generates(t *testing.T) {
	db := setupTest(t)
	mock := llm.NewMock().WithChatContent(schemaValidChat())
	gateway := newTestGateway(t, mock)

	doc := &models.Document{Location: "/docs/pipeline.txt"}
	require.NoError(t, db.Create(doc).Error)
	require.NoError(t, db.Create(&models.TextContent{
		DocumentID: doc.ID,
		Content:    "Documents move through four ordered steps.",
	}).Error)

	step := &GenerateMetadataStep{}
	pctx := &Context{
		DB:        db,
		Document:  doc,
		Gateway:   gateway,
		Generator: metadata.NewGenerator(gateway, nil),
		Logger:    hclog.NewNullLogger(),
	}
	require.NoError(t, step.Execute(context.Background(), pctx))

	retrieved, err := models.GetDocument(db, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "An operations guide for the ingest pipeline.", retrieved.Metadata.GetString("summary"))
	assert.Equal(t, []string{"ingest", "pipeline", "operations"}, retrieved.Metadata.GetStrings("keywords"))
	assert.Equal(t, "technical", retrieved.Metadata.GetString("classification"))

	// The refreshed metadata is visible to the steps that follow.
	assert.Equal(t, "technical", doc.Metadata.GetString("classification"))
	assert.Equal(t, 1, mock.ChatCalls())

	// The extracted text reached the prompt.
	assert.Contains(t, mock.LastChatPrompt(), "four ordered steps")
}

func TestGenerateMetadataStep_SkipsWhenRequiredPresent(t *testing.T) {
	db := setupTest(t)
	mock := llm.NewMock()
	gateway := newTestGateway(t, mock)

	doc := &models.Document{
		Location: "/docs/curated.txt",
		Metadata: models.JSONMap{
			"summary":        "Curated by an operator.",
			"keywords":       []string{"curated"},
			"classification": "reference",
		},
	}
	require.NoError(t, db.Create(doc).Error)

	step := &GenerateMetadataStep{}
	pctx := &Context{
		DB:        db,
		Document:  doc,
		Gateway:   gateway,
		Generator: metadata.NewGenerator(gateway, nil),
		Logger:    hclog.NewNullLogger(),
	}
	require.NoError(t, step.Execute(context.Background(), pctx))

	assert.Equal(t, 0, mock.ChatCalls())

	retrieved, err := models.GetDocument(db, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Curated by an operator.", retrieved.Metadata.GetString("summary"))
}

func TestGenerateMetadataStep_ExistingKeysWin(t *testing.T) {
	db := setupTest(t)
	mock := llm.NewMock().WithChatContent(schemaValidChat())
	gateway := newTestGateway(t, mock)

	// Summary is operator-set; keywords and classification are still
	// missing, so generation runs but must not clobber the summary.
	doc := &models.Document{
		Location: "/docs/partial.txt",
		Metadata: models.JSONMap{"summary": "Operator wrote this."},
	}
	require.NoError(t, db.Create(doc).Error)
	require.NoError(t, db.Create(&models.TextContent{
		DocumentID: doc.ID,
		Content:    "Partial metadata document.",
	}).Error)

	step := &GenerateMetadataStep{}
	pctx := &Context{
		DB:        db,
		Document:  doc,
		Gateway:   gateway,
		Generator: metadata.NewGenerator(gateway, nil),
		Logger:    hclog.NewNullLogger(),
	}
	require.NoError(t, step.Execute(context.Background(), pctx))

	retrieved, err := models.GetDocument(db, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Operator wrote this.", retrieved.Metadata.GetString("summary"))
	assert.Equal(t, "technical", retrieved.Metadata.GetString("classification"))
	assert.Equal(t, []string{"ingest", "pipeline", "operations"}, retrieved.Metadata.GetStrings("keywords"))
	assert.Equal(t, 1, mock.ChatCalls())
}
