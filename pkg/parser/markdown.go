package parser

import (
	"context"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/recallhq/recall/pkg/models"
)

// parseMarkdown decodes markdown text, lifting YAML front matter into the
// file metadata. The markdown body is kept verbatim.
func (p *Parser) parseMarkdown(ctx context.Context, name string, data []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content, encoding := decodeText(data)

	meta := map[string]interface{}{
		"mime_type": "text/markdown",
	}
	if encoding != "utf-8" {
		meta["encoding"] = encoding
	}

	body, front, ok := splitFrontMatter(content)
	title := ""
	if ok {
		var fields map[string]interface{}
		if err := yaml.Unmarshal([]byte(front), &fields); err != nil {
			p.logger.Warn("ignoring malformed front matter", "name", name, "error", err)
			body = content
		} else {
			for key, value := range fields {
				meta[key] = value
			}
			if t, found := fields["title"].(string); found {
				title = strings.TrimSpace(t)
			}
		}
	}

	if title == "" {
		title = firstHeading(body)
	}

	return &Result{
		Content:      body,
		DocumentType: models.TypeMarkdown,
		Title:        title,
		FileMetadata: meta,
	}, nil
}

// splitFrontMatter separates a leading "---" delimited YAML block from the
// markdown body. Returns ok=false when no front matter is present.
func splitFrontMatter(content string) (body, front string, ok bool) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalized, "---\n") {
		return content, "", false
	}

	rest := normalized[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	if end < 0 {
		if strings.HasSuffix(rest, "\n---") {
			return "", rest[:len(rest)-len("\n---")], true
		}
		return content, "", false
	}

	front = rest[:end]
	body = rest[end+len("\n---\n"):]
	return body, front, true
}

// firstHeading returns the text of the first "#" heading, if any.
func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	return ""
}
