package parser

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/recallhq/recall/pkg/models"
)

var horizontalSpace = regexp.MustCompile(`[ \t\r\f\v]+`)

// parseHTML strips markup and returns the visible text of the page.
func (p *Parser) parseHTML(ctx context.Context, name string, data []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Path: name, Format: "html", Err: err}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, iframe").Remove()

	text := doc.Find("body").Text()
	if strings.TrimSpace(text) == "" {
		text = doc.Text()
	}

	meta := map[string]interface{}{
		"mime_type": "text/html",
	}
	if desc, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
		if desc = strings.TrimSpace(desc); desc != "" {
			meta["description"] = desc
		}
	}
	if author, ok := doc.Find(`meta[name="author"]`).Attr("content"); ok {
		if author = strings.TrimSpace(author); author != "" {
			meta["author"] = author
		}
	}

	return &Result{
		Content:      collapseWhitespace(text),
		DocumentType: models.TypeHTML,
		Title:        title,
		FileMetadata: meta,
	}, nil
}

// collapseWhitespace trims each line, squeezes runs of spaces, and keeps at
// most one blank line between text blocks.
func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	blank := true
	for _, line := range lines {
		line = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}
