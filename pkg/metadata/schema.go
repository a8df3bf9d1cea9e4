// Package metadata generates AI-derived document metadata constrained by
// per-document-type schemas, so downstream search facets can rely on field
// names, enums, and array bounds being stable.
package metadata

import (
	"sort"

	"github.com/recallhq/recall/pkg/models"
)

// Classifications is the closed value set for the classification field
// every schema shares.
var Classifications = []string{
	"research",
	"technical",
	"business",
	"legal",
	"medical",
	"educational",
	"news",
	"entertainment",
	"personal",
	"other",
}

// FieldType describes how a schema field is represented.
type FieldType string

const (
	// FieldString is a single string value.
	FieldString FieldType = "string"
	// FieldArray is a list of strings.
	FieldArray FieldType = "array"
)

// Field constrains one metadata field.
type Field struct {
	Type FieldType
	// Enum restricts values to this set when non-empty.
	Enum []string
	// MaxItems bounds array length when positive.
	MaxItems int
}

// Schema constrains the metadata object for one document type.
type Schema struct {
	Name     string
	Required []string
	Fields   map[string]Field
}

// MissingRequired returns the required fields absent from meta, in schema
// order.
func (s Schema) MissingRequired(meta map[string]interface{}) []string {
	var missing []string
	for _, name := range s.Required {
		if _, ok := meta[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// FieldNames returns the schema's fields, required ones first in their
// declared order, optional ones alphabetical. Prompt construction depends
// on this being stable.
func (s Schema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	names = append(names, s.Required...)

	var optional []string
	for name := range s.Fields {
		if !contains(s.Required, name) {
			optional = append(optional, name)
		}
	}
	sort.Strings(optional)
	return append(names, optional...)
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

var textSchema = Schema{
	Name:     "TEXT",
	Required: []string{"summary", "keywords", "classification"},
	Fields: map[string]Field{
		"summary":        {Type: FieldString},
		"keywords":       {Type: FieldArray, MaxItems: 20},
		"classification": {Type: FieldString, Enum: Classifications},
		"topics":         {Type: FieldArray, MaxItems: 10},
		"tags":           {Type: FieldArray, MaxItems: 10},
		"language":       {Type: FieldString},
	},
}

var imageSchema = Schema{
	Name:     "IMAGE",
	Required: []string{"description", "summary", "scene_type", "classification"},
	Fields: map[string]Field{
		"description": {Type: FieldString},
		"summary":     {Type: FieldString},
		"scene_type": {Type: FieldString, Enum: []string{
			"indoor", "outdoor", "portrait", "landscape", "document",
			"screenshot", "diagram", "other",
		}},
		"classification":  {Type: FieldString, Enum: Classifications},
		"objects":         {Type: FieldArray, MaxItems: 20},
		"dominant_colors": {Type: FieldArray, MaxItems: 5},
		"estimated_date":  {Type: FieldString},
		"tags":            {Type: FieldArray, MaxItems: 10},
	},
}

var audioSchema = Schema{
	Name:     "AUDIO",
	Required: []string{"summary", "content_type", "classification"},
	Fields: map[string]Field{
		"summary": {Type: FieldString},
		"content_type": {Type: FieldString, Enum: []string{
			"music", "speech", "podcast", "audiobook", "interview",
			"ambient", "other",
		}},
		"classification": {Type: FieldString, Enum: Classifications},
		"language":       {Type: FieldString},
		"topics":         {Type: FieldArray, MaxItems: 10},
		"tags":           {Type: FieldArray, MaxItems: 10},
	},
}

var pdfSchema = Schema{
	Name:     "PDF",
	Required: []string{"summary", "document_type", "classification"},
	Fields: map[string]Field{
		"summary": {Type: FieldString},
		"document_type": {Type: FieldString, Enum: []string{
			"report", "paper", "manual", "presentation", "form", "book",
			"article", "legal_document", "other",
		}},
		"classification": {Type: FieldString, Enum: Classifications},
		"keywords":       {Type: FieldArray, MaxItems: 20},
		"topics":         {Type: FieldArray, MaxItems: 10},
		"language":       {Type: FieldString},
		"estimated_date": {Type: FieldString},
	},
}

var mixedSchema = Schema{
	Name:     "MIXED",
	Required: []string{"summary", "content_types", "primary_content_type", "classification"},
	Fields: map[string]Field{
		"summary":              {Type: FieldString},
		"content_types":        {Type: FieldArray, MaxItems: 5},
		"primary_content_type": {Type: FieldString},
		"classification":       {Type: FieldString, Enum: Classifications},
		"keywords":             {Type: FieldArray, MaxItems: 20},
		"tags":                 {Type: FieldArray, MaxItems: 10},
	},
}

// SchemaFor selects the schema for a document type. Text-like formats all
// share the TEXT schema; unknown types fall back to it as well.
func SchemaFor(documentType string) Schema {
	switch documentType {
	case models.TypeImage:
		return imageSchema
	case models.TypeAudio:
		return audioSchema
	case models.TypePDF:
		return pdfSchema
	case models.TypeMixed:
		return mixedSchema
	default:
		return textSchema
	}
}
