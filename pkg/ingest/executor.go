package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/recallhq/recall/pkg/chunker"
	"github.com/recallhq/recall/pkg/llm"
	"github.com/recallhq/recall/pkg/metadata"
	"github.com/recallhq/recall/pkg/models"
	"github.com/recallhq/recall/pkg/parser"
	"github.com/recallhq/recall/pkg/search"
)

// Executor drives the pipeline steps for one document at a time. Step
// failures move the document to the error status and stop the pipeline;
// the failure itself is reported to the caller, who decides whether the
// work is redelivered.
type Executor struct {
	db          *gorm.DB
	parser      *parser.Parser
	gateway     *llm.Gateway
	generator   *metadata.Generator
	chunker     *chunker.Chunker
	lexical     search.KeywordSearcher
	vectorIndex search.VectorIndex
	steps       []Step
	options     map[string]any
	logger      hclog.Logger
}

// ExecutorConfig holds the components steps operate with. DB, Parser, and
// Gateway are required; the rest are optional.
type ExecutorConfig struct {
	DB          *gorm.DB
	Parser      *parser.Parser
	Gateway     *llm.Gateway
	Generator   *metadata.Generator
	Chunker     *chunker.Chunker
	Lexical     search.KeywordSearcher
	VectorIndex search.VectorIndex

	// Steps overrides the pipeline; DefaultSteps when empty.
	Steps []Step

	// Options holds per-step option maps keyed by step name.
	Options map[string]any

	Logger hclog.Logger
}

// NewExecutor creates a pipeline executor.
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("ingest executor requires a database")
	}
	if cfg.Parser == nil {
		return nil, fmt.Errorf("ingest executor requires a parser")
	}
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("ingest executor requires an llm gateway")
	}
	if cfg.Generator == nil {
		cfg.Generator = metadata.NewGenerator(cfg.Gateway, cfg.Logger)
	}
	if len(cfg.Steps) == 0 {
		cfg.Steps = DefaultSteps()
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Executor{
		db:          cfg.DB,
		parser:      cfg.Parser,
		gateway:     cfg.Gateway,
		generator:   cfg.Generator,
		chunker:     cfg.Chunker,
		lexical:     cfg.Lexical,
		vectorIndex: cfg.VectorIndex,
		steps:       cfg.Steps,
		options:     cfg.Options,
		logger:      cfg.Logger.Named("ingest-executor"),
	}, nil
}

// StepNames returns the pipeline's step names in execution order.
func (e *Executor) StepNames() []string {
	names := make([]string, 0, len(e.steps))
	for _, step := range e.steps {
		names = append(names, step.Name())
	}
	return names
}

// Execute runs the full pipeline for a document. A document that no longer
// exists is a clean no-op: deletions racing the queue are not failures.
func (e *Executor) Execute(ctx context.Context, documentID uuid.UUID) error {
	return e.ExecuteStages(ctx, documentID, nil)
}

// ExecuteStages runs the named subset of the pipeline in canonical order.
// Empty stages means the full pipeline; unknown stage names are an error.
func (e *Executor) ExecuteStages(ctx context.Context, documentID uuid.UUID, stages []string) error {
	steps, err := e.selectSteps(stages)
	if err != nil {
		return err
	}

	doc, err := models.GetDocument(e.db, documentID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			e.logger.Debug("document vanished before processing, skipping",
				"document_id", documentID)
			return nil
		}
		return err
	}

	pctx := &Context{
		DB:          e.db,
		Document:    doc,
		Parser:      e.parser,
		Gateway:     e.gateway,
		Generator:   e.generator,
		Chunker:     e.chunker,
		Lexical:     e.lexical,
		VectorIndex: e.vectorIndex,
		Logger:      e.logger,
		Options:     e.options,
	}

	start := time.Now()
	for _, step := range steps {
		// Cancellation is observed between stages; a stage that already
		// started runs to completion so the document stays resumable.
		if err := ctx.Err(); err != nil {
			return err
		}

		stepStart := time.Now()
		err := step.Execute(ctx, pctx)
		stepDuration := time.Since(stepStart)

		if err != nil {
			e.logger.Error("pipeline step failed",
				"step", step.Name(),
				"document_id", documentID,
				"duration_ms", stepDuration.Milliseconds(),
				"error", err)
			e.markError(doc)
			return &StepError{
				Step:      step.Name(),
				Retryable: step.IsRetryable(err),
				Err:       err,
			}
		}

		e.logger.Debug("pipeline step succeeded",
			"step", step.Name(),
			"document_id", documentID,
			"duration_ms", stepDuration.Milliseconds())
	}

	// Only a run covering the whole pipeline may finalize the status; a
	// partial stage run cannot vouch for the document being processed.
	if len(steps) == len(e.steps) {
		if err := e.markProcessed(doc); err != nil {
			return err
		}
	}

	e.logger.Info("pipeline completed",
		"document_id", documentID,
		"steps", len(steps),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// selectSteps filters the pipeline to the requested stages, preserving
// canonical order regardless of how the request orders them.
func (e *Executor) selectSteps(stages []string) ([]Step, error) {
	if len(stages) == 0 {
		return e.steps, nil
	}

	requested := make(map[string]bool, len(stages))
	for _, name := range stages {
		requested[name] = true
	}

	selected := make([]Step, 0, len(stages))
	for _, step := range e.steps {
		if requested[step.Name()] {
			selected = append(selected, step)
			delete(requested, step.Name())
		}
	}
	for name := range requested {
		return nil, fmt.Errorf("unknown pipeline step: %s", name)
	}
	return selected, nil
}

// markError moves the document to error, passing through processing when it
// never left pending. Transition failures are logged, not returned, so the
// step error stays the reported failure.
func (e *Executor) markError(doc *models.Document) {
	if doc.Status == models.StatusPending {
		if err := doc.TransitionTo(e.db, models.StatusProcessing); err != nil {
			e.logger.Warn("failed to move document to processing",
				"document_id", doc.ID, "error", err)
			return
		}
	}
	if err := doc.TransitionTo(e.db, models.StatusError); err != nil {
		e.logger.Warn("failed to mark document as errored",
			"document_id", doc.ID, "error", err)
	}
}

// markProcessed finishes the status transitions. Documents whose content
// was supplied directly never pass through extract_text, so they may still
// be pending here.
func (e *Executor) markProcessed(doc *models.Document) error {
	if doc.Status == models.StatusPending {
		if err := doc.TransitionTo(e.db, models.StatusProcessing); err != nil {
			return err
		}
	}
	return doc.TransitionTo(e.db, models.StatusProcessed)
}
