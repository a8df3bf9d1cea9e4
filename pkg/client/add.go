package client

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/recallhq/recall/pkg/ingest"
	"github.com/recallhq/recall/pkg/models"
	"github.com/recallhq/recall/pkg/source"
)

// AddDocumentResult reports the outcome of AddDocument.
type AddDocumentResult struct {
	Success          bool      `json:"success"`
	DocumentID       uuid.UUID `json:"documentId"`
	Title            string    `json:"title,omitempty"`
	DocumentType     string    `json:"documentType,omitempty"`
	ContentLength    int       `json:"contentLength"`
	EmbeddingsQueued int       `json:"embeddingsQueued"`
	Message          string    `json:"message,omitempty"`
	Error            error     `json:"-"`
}

// FileResult is the per-file outcome of AddDirectory.
type FileResult struct {
	Path       string    `json:"path"`
	Success    bool      `json:"success"`
	Skipped    bool      `json:"skipped,omitempty"`
	DocumentID uuid.UUID `json:"documentId"`
	Message    string    `json:"message,omitempty"`
	Error      error     `json:"-"`
}

type addOptions struct {
	title    string
	metadata map[string]interface{}
	sync     bool
	images   bool
}

// AddOption adjusts how a document is added.
type AddOption func(*addOptions)

// WithTitle overrides the title the parser would derive.
func WithTitle(title string) AddOption {
	return func(o *addOptions) { o.title = title }
}

// WithMetadata seeds the document's AI metadata. Seeded keys win over
// generated ones.
func WithMetadata(meta map[string]interface{}) AddOption {
	return func(o *addOptions) { o.metadata = meta }
}

// WithSync forces inline processing even when workers or distributed
// ingest are available.
func WithSync() AddOption {
	return func(o *addOptions) { o.sync = true }
}

// WithImages makes AddDirectory ingest image files instead of skipping
// them.
func WithImages() AddOption {
	return func(o *addOptions) { o.images = true }
}

func collectAddOptions(opts []AddOption) addOptions {
	var options addOptions
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

// imageExtensions are skipped by AddDirectory unless WithImages is set.
// Image documents store fine but carry no extractable text, so bulk runs
// leave them out rather than fill the store with unembeddable rows.
var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// AddDocument ingests the file at p, a filesystem path or an
// s3://bucket/key URI. The source is parsed before anything is persisted,
// so a malformed file never leaves a document row behind. Processing runs
// inline by default; with workers started or distributed ingest enabled
// the document is queued instead.
func (c *Client) AddDocument(ctx context.Context, p string, opts ...AddOption) *AddDocumentResult {
	options := collectAddOptions(opts)
	svc := c.current()

	src, err := svc.sourceFor(ctx, p)
	if err != nil {
		return addFailure(p, "source unavailable", err)
	}
	data, err := src.Fetch(ctx, p)
	if err != nil {
		return addFailure(p, "failed to read source", err)
	}

	parsed, err := svc.parser.ParseBytes(ctx, sourceName(p), data)
	if err != nil {
		return addFailure(p, "failed to parse document", err)
	}

	doc := &models.Document{
		Location:     p,
		Title:        parsed.Title,
		DocumentType: parsed.DocumentType,
		FileMetadata: models.JSONMap(parsed.FileMetadata),
		FileBlob:     data,
	}
	if options.title != "" {
		doc.Title = options.title
	}
	if len(options.metadata) > 0 {
		doc.Metadata = models.JSONMap(options.metadata)
	}

	queued, err := c.createAndSchedule(ctx, svc, doc, options.sync)
	if err != nil {
		return addFailure(p, "failed to store document", err)
	}
	if queued {
		return &AddDocumentResult{
			Success:       true,
			DocumentID:    doc.ID,
			Title:         doc.Title,
			DocumentType:  doc.DocumentType,
			ContentLength: len(parsed.Content),
			Message:       "document queued for processing",
		}
	}
	return c.inlineResult(ctx, svc, doc, len(parsed.Content))
}

// AddText ingests raw text without a backing file. Metadata is generated
// synchronously so the caller sees summary and keywords immediately;
// embeddings follow the normal pipeline. The created document's id is
// returned even when a later stage fails, because the document exists by
// then.
func (c *Client) AddText(ctx context.Context, content, title string, opts ...AddOption) (uuid.UUID, error) {
	if strings.TrimSpace(content) == "" {
		return uuid.Nil, fmt.Errorf("content is required")
	}

	options := collectAddOptions(opts)
	if options.title != "" {
		title = options.title
	}

	svc := c.current()
	db := svc.db.WithContext(ctx)

	doc := &models.Document{
		ID:           uuid.New(),
		Title:        title,
		DocumentType: models.TypeText,
	}
	doc.Location = "text://" + doc.ID.String()
	if len(options.metadata) > 0 {
		doc.Metadata = models.JSONMap(options.metadata)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return models.TranslateError(err)
		}
		tc := &models.TextContent{DocumentID: doc.ID, Content: content}
		if err := tx.Create(tc).Error; err != nil {
			return models.TranslateError(err)
		}
		if !options.sync && svc.kafkaEnabled() {
			entry, err := models.NewIngestOutboxEntry(doc.ID, svc.cfg.Ingest.Kafka.Topic, nil)
			if err != nil {
				return err
			}
			if err := tx.Create(entry).Error; err != nil {
				return models.TranslateError(err)
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	if err := svc.executor.ExecuteStages(ctx, doc.ID, []string{ingest.StepGenerateMetadata}); err != nil {
		return doc.ID, err
	}

	if !options.sync && svc.kafkaEnabled() {
		return doc.ID, nil
	}
	if !options.sync && svc.runner.Started() {
		if err := svc.runner.Enqueue(doc.ID); err == nil {
			return doc.ID, nil
		}
		svc.logger.Warn("ingest queue full, processing inline", "document_id", doc.ID)
	}
	if err := svc.runner.Process(ctx, doc.ID); err != nil {
		return doc.ID, err
	}
	return doc.ID, nil
}

// AddDirectory ingests every file under root, a directory path or an
// s3://bucket/prefix URI. Files are processed in parallel and each gets
// its own result; image files are skipped unless WithImages is set.
func (c *Client) AddDirectory(ctx context.Context, root string, recursive bool, opts ...AddOption) ([]FileResult, error) {
	options := collectAddOptions(opts)
	svc := c.current()

	src, err := svc.sourceFor(ctx, root)
	if err != nil {
		return nil, err
	}
	files, err := src.List(ctx, root, recursive)
	if err != nil {
		return nil, err
	}

	type job struct {
		idx  int
		file source.File
	}

	results := make([]FileResult, len(files))
	jobs := make([]job, 0, len(files))
	for i, f := range files {
		if !options.images && imageExtensions[strings.ToLower(filepath.Ext(f.Name))] {
			results[i] = FileResult{
				Path:    f.Path,
				Skipped: true,
				Message: "image files are skipped by default",
			}
			continue
		}
		jobs = append(jobs, job{idx: i, file: f})
	}

	workers := ingest.DefaultWorkers
	if svc.cfg.Ingest != nil && svc.cfg.Ingest.Workers > 0 {
		workers = svc.cfg.Ingest.Workers
	}

	// Each job writes only its own slot, so the slice needs no lock.
	err = ingest.ParallelProcess(ctx, jobs, func(ctx context.Context, j job) error {
		res := c.AddDocument(ctx, j.file.Path, opts...)
		results[j.idx] = FileResult{
			Path:       j.file.Path,
			Success:    res.Success,
			DocumentID: res.DocumentID,
			Message:    res.Message,
			Error:      res.Error,
		}
		return ctx.Err()
	}, workers)

	svc.logger.Info("directory ingest finished",
		"root", root,
		"files", len(files),
		"ingested", len(jobs))
	return results, err
}

// createAndSchedule persists the document and schedules its pipeline.
// Returns true when processing was deferred to workers or the outbox.
func (c *Client) createAndSchedule(ctx context.Context, svc *services, doc *models.Document, forceSync bool) (bool, error) {
	db := svc.db.WithContext(ctx)

	if !forceSync && svc.kafkaEnabled() {
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(doc).Error; err != nil {
				return models.TranslateError(err)
			}
			entry, err := models.NewIngestOutboxEntry(doc.ID, svc.cfg.Ingest.Kafka.Topic, nil)
			if err != nil {
				return err
			}
			if err := tx.Create(entry).Error; err != nil {
				return models.TranslateError(err)
			}
			return nil
		})
		if err != nil {
			return false, err
		}
		return true, nil
	}

	if err := db.Create(doc).Error; err != nil {
		return false, models.TranslateError(err)
	}

	if !forceSync && svc.runner.Started() {
		if err := svc.runner.Enqueue(doc.ID); err == nil {
			return true, nil
		}
		svc.logger.Warn("ingest queue full, processing inline", "document_id", doc.ID)
	}
	return false, nil
}

// inlineResult runs the pipeline synchronously and reports what it
// produced.
func (c *Client) inlineResult(ctx context.Context, svc *services, doc *models.Document, contentLength int) *AddDocumentResult {
	result := &AddDocumentResult{
		DocumentID:    doc.ID,
		Title:         doc.Title,
		DocumentType:  doc.DocumentType,
		ContentLength: contentLength,
	}

	if err := svc.runner.Process(ctx, doc.ID); err != nil {
		result.Error = err
		result.Message = "document processing failed"
		return result
	}

	db := svc.db.WithContext(ctx)
	if refreshed, err := models.GetDocument(db, doc.ID); err == nil {
		result.Title = refreshed.Title
		result.DocumentType = refreshed.DocumentType
	}
	if count, err := models.CountEmbeddingsForDocument(db, doc.ID); err == nil {
		result.EmbeddingsQueued = int(count)
	}

	result.Success = true
	result.Message = "document processed"
	return result
}

func (s *services) kafkaEnabled() bool {
	return s.cfg.Ingest != nil && s.cfg.Ingest.Kafka != nil && s.cfg.Ingest.Kafka.Enabled
}

func addFailure(p, message string, err error) *AddDocumentResult {
	return &AddDocumentResult{
		Message: fmt.Sprintf("%s: %s", message, p),
		Error:   err,
	}
}

// sourceName extracts the file name a path refers to, for format
// detection.
func sourceName(p string) string {
	if _, key, ok := source.ParseS3URI(p); ok {
		return path.Base(key)
	}
	return filepath.Base(p)
}
