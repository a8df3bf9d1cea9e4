package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"

	"github.com/recallhq/recall/pkg/llm"
	"github.com/recallhq/recall/pkg/models"
)

const (
	// previewLimit caps how much extracted content goes into the prompt.
	previewLimit = 2000

	fallbackSummaryLength = 500
	fallbackKeywordCount  = 10
)

// Generator produces schema-conforming metadata for documents. Provider
// output is validated against the schema; whatever the provider cannot
// supply is composed from the gateway's deterministic fallbacks, so the
// required fields are always present in the result.
type Generator struct {
	gateway *llm.Gateway
	logger  hclog.Logger
}

// NewGenerator creates a metadata generator.
func NewGenerator(gateway *llm.Gateway, logger hclog.Logger) *Generator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Generator{
		gateway: gateway,
		logger:  logger.Named("metadata"),
	}
}

// Generate builds metadata for doc from its extracted content. The result
// conforms to the schema for doc.DocumentType: unknown and invalid fields
// are dropped, enums and array bounds are enforced, and missing required
// fields are filled from local fallbacks.
func (g *Generator) Generate(ctx context.Context, doc *models.Document, content string) (map[string]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	schema := SchemaFor(doc.DocumentType)
	result := make(map[string]interface{})

	resp, err := g.gateway.Complete(ctx, llm.ChatRequest{
		System:    "You generate structured metadata for documents. Respond with a single JSON object.",
		Prompt:    g.buildPrompt(schema, doc, content),
		MaxTokens: 800,
		JSONOnly:  true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.logger.Warn("metadata generation failed, composing fallback metadata",
			"document_id", doc.ID, "schema", schema.Name, "error", err)
	} else {
		raw, decodeErr := decodeJSONObject(resp.Content)
		if decodeErr != nil {
			g.logger.Warn("metadata response is not valid JSON, composing fallback metadata",
				"document_id", doc.ID, "error", decodeErr)
		} else {
			result = g.validate(schema, raw)
		}
	}

	if missing := schema.MissingRequired(result); len(missing) > 0 {
		g.logger.Warn("metadata missing required fields, filling from fallbacks",
			"document_id", doc.ID, "schema", schema.Name, "missing", strings.Join(missing, ","))
		g.fillRequired(ctx, schema, doc, content, result, missing)
	}
	return result, nil
}

// validate filters raw provider output down to schema-conforming fields.
// Keys are canonicalized to snake_case so camelCase provider replies still
// land on the right field.
func (g *Generator) validate(schema Schema, raw map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(raw))
	for key, value := range raw {
		canonical := strcase.ToSnake(key)
		field, ok := schema.Fields[canonical]
		if !ok {
			g.logger.Warn("dropping unknown metadata field", "field", key, "schema", schema.Name)
			continue
		}

		coerced, ok := coerceField(field, value)
		if !ok {
			g.logger.Warn("dropping invalid metadata field", "field", canonical, "schema", schema.Name)
			continue
		}
		result[canonical] = coerced
	}
	return result
}

// fillRequired composes values for missing required fields without touching
// fields the provider supplied.
func (g *Generator) fillRequired(ctx context.Context, schema Schema, doc *models.Document, content string, result map[string]interface{}, missing []string) {
	for _, name := range missing {
		switch name {
		case "summary":
			summary, err := g.gateway.Summarize(ctx, content)
			if err != nil || summary == "" {
				summary = llm.SentenceSummary(content, fallbackSummaryLength)
			}
			if summary == "" {
				summary = describeFile(doc)
			}
			result["summary"] = summary
		case "keywords":
			keywords, err := g.gateway.ExtractKeywords(ctx, content)
			if err != nil || len(keywords) == 0 {
				keywords = llm.FrequencyKeywords(content, fallbackKeywordCount)
			}
			if len(keywords) == 0 {
				keywords = []string{doc.DocumentType}
			}
			result["keywords"] = keywords
		case "classification":
			result["classification"] = "other"
		case "description":
			result["description"] = describeFile(doc)
		case "scene_type", "content_type", "document_type":
			result[name] = "other"
		case "content_types":
			result["content_types"] = []string{models.TypeText}
		case "primary_content_type":
			result["primary_content_type"] = models.TypeText
		}
	}
}

// buildPrompt renders the schema as field instructions plus a content
// preview. PDF and media documents also carry their file metadata, which is
// often the only signal available for them.
func (g *Generator) buildPrompt(schema Schema, doc *models.Document, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate metadata for a %s document titled %q.\n\n", doc.DocumentType, doc.Title)
	b.WriteString("Produce a JSON object with these fields:\n")

	for _, name := range schema.FieldNames() {
		field := schema.Fields[name]
		b.WriteString("- ")
		b.WriteString(name)
		switch {
		case len(field.Enum) > 0:
			fmt.Fprintf(&b, " (one of: %s)", strings.Join(field.Enum, ", "))
		case field.Type == FieldArray && field.MaxItems > 0:
			fmt.Fprintf(&b, " (array of strings, at most %d)", field.MaxItems)
		case field.Type == FieldArray:
			b.WriteString(" (array of strings)")
		default:
			b.WriteString(" (string)")
		}
		if contains(schema.Required, name) {
			b.WriteString(" [required]")
		}
		b.WriteString("\n")
	}

	if includeFileMetadata(doc.DocumentType) && len(doc.FileMetadata) > 0 {
		if encoded, err := json.Marshal(doc.FileMetadata); err == nil {
			fmt.Fprintf(&b, "\nFile metadata: %s\n", encoded)
		}
	}

	if preview := clipRunes(strings.TrimSpace(content), previewLimit); preview != "" {
		fmt.Fprintf(&b, "\nContent preview:\n%s\n", preview)
	}

	b.WriteString("\nRespond with the JSON object only.")
	return b.String()
}

func includeFileMetadata(documentType string) bool {
	switch documentType {
	case models.TypePDF, models.TypeImage, models.TypeAudio:
		return true
	}
	return false
}

// Merge combines caller-provided metadata with generated metadata. Existing
// keys win so user-set values survive regeneration; merging the same inputs
// again yields the same result. File metadata lives in its own column and
// is never routed through here.
func Merge(existing, generated map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(existing)+len(generated))
	for k, v := range generated {
		merged[k] = v
	}
	for k, v := range existing {
		merged[k] = v
	}
	return merged
}

// coerceField converts value into the field's representation, enforcing
// enums and array bounds. Weak decoding accepts near-miss shapes such as a
// bare string where an array is expected.
func coerceField(field Field, value interface{}) (interface{}, bool) {
	if field.Type == FieldArray {
		items, ok := coerceStringSlice(value)
		if !ok {
			return nil, false
		}

		cleaned := make([]string, 0, len(items))
		for _, item := range items {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			if len(field.Enum) > 0 && !contains(field.Enum, strings.ToLower(item)) {
				continue
			}
			cleaned = append(cleaned, item)
		}
		if len(cleaned) == 0 {
			return nil, false
		}
		if field.MaxItems > 0 && len(cleaned) > field.MaxItems {
			cleaned = cleaned[:field.MaxItems]
		}
		return cleaned, true
	}

	s, ok := coerceString(value)
	if !ok || s == "" {
		return nil, false
	}
	if len(field.Enum) > 0 {
		s = strings.ToLower(s)
		if !contains(field.Enum, s) {
			return nil, false
		}
	}
	return s, true
}

func coerceString(value interface{}) (string, bool) {
	var s string
	if err := weakDecode(value, &s); err != nil {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func coerceStringSlice(value interface{}) ([]string, bool) {
	var items []string
	if err := weakDecode(value, &items); err != nil {
		return nil, false
	}
	return items, true
}

func weakDecode(input, output interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           output,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// decodeJSONObject parses a provider reply as a JSON object, tolerating
// markdown code fences around it.
func decodeJSONObject(raw string) (map[string]interface{}, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func describeFile(doc *models.Document) string {
	name := doc.Title
	if name == "" {
		name = filepath.Base(doc.Location)
	}
	if name == "" || name == "." {
		name = "untitled"
	}
	return fmt.Sprintf("%s (%s)", name, doc.DocumentType)
}

func clipRunes(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
