// Package parser extracts text content and file metadata from source
// documents. Binary formats (PDF, DOCX) get native extraction; markup is
// stripped; images and audio are recognized and measured, with content
// extraction delegated to the AI pipeline.
package parser

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"

	"github.com/recallhq/recall/pkg/models"
)

// Result is the outcome of parsing one document.
type Result struct {
	// Content is the extracted text, empty for media formats.
	Content string

	// DocumentType is one of the models.Type* constants.
	DocumentType string

	// Title is the document title when the format carries one.
	Title string

	// FileMetadata holds system-derived facts: size, MIME type, page
	// counts, dimensions, document properties.
	FileMetadata map[string]interface{}
}

// ParseError reports a failure to parse a specific document.
type ParseError struct {
	Path   string
	Format string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s as %s: %v", e.Path, e.Format, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parser dispatches documents to format-specific extractors.
type Parser struct {
	logger hclog.Logger
}

// New creates a Parser.
func New(logger hclog.Logger) *Parser {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Parser{logger: logger.Named("parser")}
}

// Parse reads and parses the file at path.
func (p *Parser) Parse(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return p.ParseBytes(ctx, path, data)
}

// ParseBytes parses in-memory document data. The name is used for format
// dispatch and error reporting only.
func (p *Parser) ParseBytes(ctx context.Context, name string, data []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format := detectFormat(name, data)
	p.logger.Debug("parsing document", "name", name, "format", format, "size", len(data))

	var (
		result *Result
		err    error
	)
	switch format {
	case models.TypePDF:
		result, err = p.parsePDF(ctx, name, data)
	case models.TypeDOCX:
		result, err = p.parseDOCX(ctx, name, data)
	case models.TypeHTML:
		result, err = p.parseHTML(ctx, name, data)
	case models.TypeMarkdown:
		result, err = p.parseMarkdown(ctx, name, data)
	case models.TypeImage:
		result, err = p.parseImage(ctx, name, data)
	case models.TypeAudio:
		result, err = p.parseAudio(ctx, name, data)
	default:
		result, err = p.parseText(ctx, name, data)
	}
	if err != nil {
		return nil, err
	}

	if result.FileMetadata == nil {
		result.FileMetadata = map[string]interface{}{}
	}
	result.FileMetadata["size_bytes"] = len(data)
	if _, ok := result.FileMetadata["mime_type"]; !ok {
		result.FileMetadata["mime_type"] = mimeTypeFor(name, data)
	}
	return result, nil
}

// detectFormat resolves the document format: extension first, MIME sniffing
// second, plain text as the default.
func detectFormat(name string, data []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return models.TypePDF
	case ".docx":
		return models.TypeDOCX
	case ".html", ".htm", ".xhtml":
		return models.TypeHTML
	case ".md", ".markdown", ".mdown":
		return models.TypeMarkdown
	case ".txt", ".text", ".log":
		return models.TypeText
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp":
		return models.TypeImage
	case ".mp3", ".wav", ".m4a", ".ogg", ".flac":
		return models.TypeAudio
	}

	sniffed := http.DetectContentType(data)
	switch {
	case sniffed == "application/pdf":
		return models.TypePDF
	case strings.HasPrefix(sniffed, "text/html"):
		return models.TypeHTML
	case strings.HasPrefix(sniffed, "image/"):
		return models.TypeImage
	case strings.HasPrefix(sniffed, "audio/"):
		return models.TypeAudio
	case sniffed == "application/zip" && looksLikeDocx(data):
		return models.TypeDOCX
	}
	return models.TypeText
}

// mimeTypeFor resolves a MIME type from the extension, falling back to
// content sniffing.
func mimeTypeFor(name string, data []byte) string {
	if ext := strings.ToLower(filepath.Ext(name)); ext != "" {
		if mt := mime.TypeByExtension(ext); mt != "" {
			if i := strings.Index(mt, ";"); i > 0 {
				mt = mt[:i]
			}
			return mt
		}
		// Extensions the platform mime table may not know.
		switch ext {
		case ".docx":
			return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
		case ".md", ".markdown", ".mdown":
			return "text/markdown"
		case ".m4a":
			return "audio/mp4"
		}
	}
	sniffed := http.DetectContentType(data)
	if i := strings.Index(sniffed, ";"); i > 0 {
		sniffed = sniffed[:i]
	}
	return sniffed
}

// parseText decodes plain text, falling back to ISO-8859-1 when the bytes
// are not valid UTF-8. Content is preserved as-is, without trimming.
func (p *Parser) parseText(ctx context.Context, name string, data []byte) (*Result, error) {
	content, encoding := decodeText(data)

	meta := map[string]interface{}{}
	if encoding != "utf-8" {
		meta["encoding"] = encoding
		p.logger.Debug("re-decoded non-UTF-8 text", "name", name, "encoding", encoding)
	}

	return &Result{
		Content:      content,
		DocumentType: models.TypeText,
		FileMetadata: meta,
	}, nil
}

// decodeText returns the decoded string and the encoding used.
func decodeText(data []byte) (string, string) {
	if utf8.Valid(data) {
		return string(data), "utf-8"
	}
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes), "iso-8859-1"
}
