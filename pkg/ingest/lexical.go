package ingest

import (
	"context"
	"fmt"
)

// IndexLexicalStep upserts the processed document into the configured
// keyword index so lexical and hybrid search see it. Without a configured
// index it is a no-op; the database fallback searcher reads documents
// directly and needs no upkeep.
type IndexLexicalStep struct{}

// Name returns the step name.
func (s *IndexLexicalStep) Name() string {
	return StepIndexLexical
}

// Execute indexes the document in pctx for keyword search.
func (s *IndexLexicalStep) Execute(ctx context.Context, pctx *Context) error {
	if pctx.Lexical == nil {
		return nil
	}

	if err := pctx.Lexical.IndexDocument(ctx, pctx.Document); err != nil {
		return fmt.Errorf("failed to index document in %s: %w", pctx.Lexical.Name(), err)
	}

	pctx.Logger.Debug("document indexed for keyword search",
		"document_id", pctx.Document.ID,
		"index", pctx.Lexical.Name())
	return nil
}

// IsRetryable defers to the shared transient-error classification; search
// backends come back.
func (s *IndexLexicalStep) IsRetryable(err error) bool {
	return retryableError(err)
}
