// Package ingest runs the document processing pipeline: text extraction,
// metadata generation, embedding generation, and lexical index updates.
// Every step is idempotent and the steps are strictly ordered per document,
// so a pipeline can be re-driven at any time without duplicating work. The
// in-process Runner fans documents out across a worker pool; the relay and
// consumer subpackages distribute the same pipeline over Kafka.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"
	"gorm.io/gorm"

	"github.com/recallhq/recall/pkg/chunker"
	"github.com/recallhq/recall/pkg/llm"
	"github.com/recallhq/recall/pkg/metadata"
	"github.com/recallhq/recall/pkg/models"
	"github.com/recallhq/recall/pkg/parser"
	"github.com/recallhq/recall/pkg/search"
)

// Pipeline step names, in execution order.
const (
	StepExtractText        = "extract_text"
	StepGenerateMetadata   = "generate_metadata"
	StepGenerateEmbeddings = "generate_embeddings"
	StepIndexLexical       = "index_lexical"
)

// Step is one stage of the document pipeline.
type Step interface {
	// Name returns the step name (e.g. "extract_text").
	Name() string

	// Execute runs the step against the document in pctx.
	Execute(ctx context.Context, pctx *Context) error

	// IsRetryable reports whether an error is transient and worth a
	// redelivery, as opposed to a permanent fault of the document.
	IsRetryable(err error) bool
}

// Context carries the document being processed and the components the steps
// operate with. One Context lives for one pipeline run.
type Context struct {
	DB        *gorm.DB
	Document  *models.Document
	Parser    *parser.Parser
	Gateway   *llm.Gateway
	Generator *metadata.Generator
	Chunker   *chunker.Chunker

	// Lexical and VectorIndex are optional external indexes kept in sync
	// with the store. The store remains authoritative either way.
	Lexical     search.KeywordSearcher
	VectorIndex search.VectorIndex

	Logger hclog.Logger

	// Options holds per-step option maps keyed by step name, e.g.
	// {"generate_embeddings": {"chunk_size": 500, "overlap": 100}}.
	Options map[string]any
}

// StepOptions returns the option map for a step, nil when absent.
func (c *Context) StepOptions(name string) map[string]any {
	if c.Options == nil {
		return nil
	}
	if m, ok := c.Options[name].(map[string]any); ok {
		return m
	}
	return nil
}

// decodeOptions decodes a step option map into a typed struct, tolerating
// JSON numbers arriving as float64.
func decodeOptions(input map[string]any, output any) error {
	if input == nil {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// DefaultSteps returns the full pipeline in canonical order.
func DefaultSteps() []Step {
	return []Step{
		&ExtractTextStep{},
		&GenerateMetadataStep{},
		&GenerateEmbeddingsStep{},
		&IndexLexicalStep{},
	}
}

// StepError reports which step a pipeline failed at and whether the failure
// is worth a redelivery. Consumers use it to separate poison documents from
// transient backend trouble.
type StepError struct {
	Step      string
	Retryable bool
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("pipeline failed at step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// retryableError classifies transient failures: network trouble, rate
// limits, and unavailable backends.
func retryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "timeout") ||
		strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "temporary") {
		return true
	}

	if strings.Contains(errMsg, "rate limit") ||
		strings.Contains(errMsg, "too many requests") {
		return true
	}

	if strings.Contains(errMsg, "unavailable") {
		return true
	}

	return false
}

// documentText returns the document's extracted text, text records joined
// in creation order.
func documentText(db *gorm.DB, documentID uuid.UUID) (string, error) {
	contents, err := models.TextContentsForDocument(db, documentID)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(contents))
	for _, tc := range contents {
		if tc.Content != "" {
			parts = append(parts, tc.Content)
		}
	}
	return strings.Join(parts, "\n\n"), nil
}
