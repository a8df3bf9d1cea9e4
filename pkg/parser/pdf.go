package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/ledongthuc/pdf"

	"github.com/recallhq/recall/pkg/models"
)

// parsePDF extracts page text and the document information dictionary.
func (p *Parser) parsePDF(ctx context.Context, name string, data []byte) (*Result, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ParseError{Path: name, Format: "pdf", Err: err}
	}

	totalPages := reader.NumPage()
	var pages []string
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			p.logger.Warn("failed to extract page text", "name", name, "page", pageNum, "error", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		if totalPages > 1 {
			pages = append(pages, fmt.Sprintf("--- Page %d ---\n%s", pageNum, text))
		} else {
			pages = append(pages, text)
		}
	}

	meta := map[string]interface{}{
		"mime_type":  "application/pdf",
		"page_count": totalPages,
	}
	title := p.readPDFInfo(reader, meta)

	return &Result{
		Content:      strings.Join(pages, "\n\n"),
		DocumentType: models.TypePDF,
		Title:        title,
		FileMetadata: meta,
	}, nil
}

// readPDFInfo copies the document information dictionary into meta and
// returns the title, if any. Malformed dictionaries are skipped.
func (p *Parser) readPDFInfo(reader *pdf.Reader, meta map[string]interface{}) (title string) {
	defer func() {
		// The info dictionary is optional and frequently corrupt in the
		// wild. Never let it fail an otherwise readable document.
		if r := recover(); r != nil {
			p.logger.Warn("skipping malformed pdf info dictionary", "error", r)
		}
	}()

	info := reader.Trailer().Key("Info")
	if info.Kind() != pdf.Dict {
		return ""
	}

	fields := map[string]string{
		"Title":    "title",
		"Author":   "author",
		"Subject":  "subject",
		"Keywords": "keywords",
		"Creator":  "creator",
		"Producer": "producer",
	}
	for key, metaKey := range fields {
		value := info.Key(key)
		if value.Kind() != pdf.String {
			continue
		}
		text := strings.TrimSpace(value.Text())
		if text == "" {
			continue
		}
		meta[metaKey] = text
		if key == "Title" {
			title = text
		}
	}

	for key, metaKey := range map[string]string{
		"CreationDate": "created_at",
		"ModDate":      "modified_at",
	} {
		value := info.Key(key)
		if value.Kind() != pdf.String {
			continue
		}
		if ts, ok := parsePDFDate(value.Text()); ok {
			meta[metaKey] = ts.UTC().Format(time.RFC3339)
		}
	}
	return title
}

// parsePDFDate parses PDF date strings such as "D:20240115103000+01'00'".
func parsePDFDate(raw string) (time.Time, bool) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "D:"))
	if s == "" {
		return time.Time{}, false
	}

	digits := s
	for i, r := range s {
		if r < '0' || r > '9' {
			digits = s[:i]
			break
		}
	}
	switch {
	case len(digits) >= 14:
		if ts, err := time.Parse("20060102150405", digits[:14]); err == nil {
			return ts, true
		}
	case len(digits) >= 8:
		if ts, err := time.Parse("20060102", digits[:8]); err == nil {
			return ts, true
		}
	}

	ts, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}
