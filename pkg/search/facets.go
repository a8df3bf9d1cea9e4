package search

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/recallhq/recall/pkg/models"
)

// Facets narrow a search by document metadata. Date bounds accept any
// common format (RFC 3339, "2024-01-02", "Jan 2, 2024", unix seconds).
type Facets struct {
	// Keywords must all appear as substrings of the document's keyword
	// metadata, case-insensitively.
	Keywords []string `json:"keywords,omitempty"`

	// Classification must match the document's classification exactly.
	Classification string `json:"classification,omitempty"`

	// Tags must all be present in the document's tag list.
	Tags []string `json:"tags,omitempty"`

	CreatedAfter  string `json:"createdAfter,omitempty"`
	CreatedBefore string `json:"createdBefore,omitempty"`
}

// Empty reports whether no facet is set.
func (f Facets) Empty() bool {
	return len(f.Keywords) == 0 && f.Classification == "" && len(f.Tags) == 0 &&
		f.CreatedAfter == "" && f.CreatedBefore == ""
}

// compiledFacets hold parsed facet values ready for matching.
type compiledFacets struct {
	keywords       []string
	classification string
	tags           []string
	after          *time.Time
	before         *time.Time
}

func (f Facets) compile() (*compiledFacets, error) {
	c := &compiledFacets{
		keywords:       lowerAll(f.Keywords),
		classification: f.Classification,
		tags:           f.Tags,
	}
	if f.CreatedAfter != "" {
		t, err := dateparse.ParseAny(f.CreatedAfter)
		if err != nil {
			return nil, fmt.Errorf("created_after %q: %w", f.CreatedAfter, ErrInvalidQuery)
		}
		c.after = &t
	}
	if f.CreatedBefore != "" {
		t, err := dateparse.ParseAny(f.CreatedBefore)
		if err != nil {
			return nil, fmt.Errorf("created_before %q: %w", f.CreatedBefore, ErrInvalidQuery)
		}
		c.before = &t
	}
	return c, nil
}

func (c *compiledFacets) match(doc *models.Document) bool {
	if doc == nil {
		return false
	}
	if c.classification != "" && doc.Metadata.GetString("classification") != c.classification {
		return false
	}
	if len(c.keywords) > 0 {
		joined := strings.ToLower(strings.Join(doc.Metadata.GetStrings("keywords"), " "))
		for _, kw := range c.keywords {
			if !strings.Contains(joined, kw) {
				return false
			}
		}
	}
	if len(c.tags) > 0 {
		tags := doc.Metadata.GetStrings("tags")
		for _, want := range c.tags {
			if !containsString(tags, want) {
				return false
			}
		}
	}
	if c.after != nil && doc.CreatedAt.Before(*c.after) {
		return false
	}
	if c.before != nil && doc.CreatedAt.After(*c.before) {
		return false
	}
	return true
}

func keywordsContainAll(meta models.JSONMap, wanted []string) bool {
	joined := strings.ToLower(strings.Join(meta.GetStrings("keywords"), " "))
	for _, kw := range wanted {
		if !strings.Contains(joined, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

func tagsContainAll(meta models.JSONMap, wanted []string) bool {
	tags := meta.GetStrings("tags")
	for _, want := range wanted {
		if !containsString(tags, want) {
			return false
		}
	}
	return true
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
