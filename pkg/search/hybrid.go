package search

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// HybridSearch combines semantic and keyword search. Either leg may fail
// without failing the search; an error is returned only when both do. A
// pre-computed vector skips query embedding, otherwise the query is
// embedded here.
func (e *Engine) HybridSearch(ctx context.Context, query string, vector []float32, opts Options) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" && len(vector) == 0 {
		return nil, &Error{Op: "HybridSearch", Msg: "empty query", Err: ErrInvalidQuery}
	}

	p := e.params(opts)

	if len(vector) == 0 {
		embedded, err := e.embedder.EmbedOne(ctx, query)
		if err != nil {
			e.logger.Warn("query embedding failed, skipping semantic leg", "error", err)
		} else {
			vector = embedded
		}
	}

	var semanticHits []Hit
	var semanticErr error
	if len(vector) > 0 {
		semanticHits, semanticErr = e.semantic(ctx, vector, p, nil)
		if semanticErr != nil {
			e.logger.Warn("semantic search failed, keeping text results", "error", semanticErr)
		}
	}

	var textHits []KeywordHit
	var textErr error
	if e.keywords != nil && query != "" {
		textHits, textErr = e.keywords.Search(ctx, query, p.limit, p.filters)
		if textErr != nil {
			e.logger.Warn("text search failed, keeping semantic results",
				"engine", e.keywords.Name(), "error", textErr)
		}
	}

	if semanticErr != nil && textErr != nil {
		return nil, &Error{Op: "HybridSearch", Msg: "both search legs failed", Err: semanticErr}
	}

	hits := fuse(semanticHits, textHits, p.semanticWeight, p.textWeight)
	if len(hits) > p.limit {
		hits = hits[:p.limit]
	}
	e.markReturned(ctx, hits)

	e.logger.Debug("hybrid search completed",
		"semantic", len(semanticHits),
		"text", len(textHits),
		"fused", len(hits),
	)
	return hits, nil
}

// fuse merges the two result legs by document. Each document keeps its
// best semantic hit; weighted scores from both legs add up, and the
// searchTypes field records which legs contributed.
func fuse(semantic []Hit, text []KeywordHit, semanticWeight, textWeight float64) []Hit {
	best := make(map[uuid.UUID]Hit, len(semantic))
	order := make([]uuid.UUID, 0, len(semantic)+len(text))
	for _, h := range semantic {
		cur, ok := best[h.DocumentID]
		if !ok {
			order = append(order, h.DocumentID)
		}
		if !ok || h.CombinedScore > cur.CombinedScore {
			best[h.DocumentID] = h
		}
	}

	fused := make(map[uuid.UUID]*Hit, len(best))
	for id, h := range best {
		merged := h
		merged.CombinedScore = h.CombinedScore * semanticWeight
		merged.SearchTypes = []string{TypeSemantic}
		fused[id] = &merged
	}

	for _, k := range text {
		weighted := k.Score * textWeight
		if cur, ok := fused[k.DocumentID]; ok {
			cur.CombinedScore += weighted
			cur.SearchTypes = append(cur.SearchTypes, TypeText)
			continue
		}
		order = append(order, k.DocumentID)
		fused[k.DocumentID] = &Hit{
			DocumentID:       k.DocumentID,
			DocumentTitle:    k.Title,
			DocumentLocation: k.Location,
			Content:          k.Snippet,
			CombinedScore:    weighted,
			SearchTypes:      []string{TypeText},
		}
	}

	out := make([]Hit, 0, len(fused))
	for _, id := range order {
		out = append(out, *fused[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CombinedScore > out[j].CombinedScore
	})
	return out
}
