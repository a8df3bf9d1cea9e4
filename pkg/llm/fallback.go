package llm

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/forPelevin/gomoji"
)

// stopwords are excluded from frequency-based keyword extraction.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "has": {}, "his": {}, "how": {},
	"its": {}, "may": {}, "who": {}, "did": {}, "get": {}, "use": {},
	"this": {}, "that": {}, "with": {}, "from": {}, "they": {}, "will": {},
	"have": {}, "been": {}, "were": {}, "said": {}, "each": {}, "which": {},
	"their": {}, "would": {}, "there": {}, "these": {}, "than": {}, "them": {},
	"then": {}, "into": {}, "only": {}, "over": {}, "such": {}, "also": {},
	"your": {}, "more": {}, "some": {}, "what": {}, "when": {}, "where": {},
	"about": {}, "other": {}, "while": {}, "after": {}, "before": {},
	"being": {}, "between": {}, "both": {}, "through": {}, "under": {},
	"should": {}, "could": {}, "does": {}, "very": {}, "most": {},
}

// SentenceSummary builds a summary by accumulating whole sentences until
// maxLen would be exceeded. It is used when no chat provider is available
// or the provider call fails.
func SentenceSummary(content string, maxLen int) string {
	content = strings.TrimSpace(content)
	if content == "" || maxLen <= 0 {
		return ""
	}
	if len(content) <= maxLen {
		return content
	}

	var b strings.Builder
	for _, sentence := range splitSentences(content) {
		candidate := len(sentence)
		if b.Len() > 0 {
			candidate += b.Len() + 1
		}
		if candidate > maxLen {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(sentence)
	}
	if b.Len() > 0 {
		return b.String()
	}

	// The first sentence alone exceeds maxLen. Cut at a word boundary.
	cut := content[:maxLen]
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

// splitSentences breaks text on terminal punctuation followed by whitespace.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		sentence := strings.TrimSpace(string(runes[start : i+1]))
		if sentence != "" {
			sentences = append(sentences, sentence)
		}
		start = i + 1
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

// FrequencyKeywords extracts the most frequent non-stopword terms from
// content, ordered by count and then by first occurrence.
func FrequencyKeywords(content string, max int) []string {
	if max <= 0 {
		return nil
	}
	content = gomoji.RemoveEmojis(content)

	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for pos, word := range words {
		if len(word) < 3 {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		if _, seen := counts[word]; !seen {
			firstSeen[word] = pos
		}
		counts[word]++
	}

	keywords := make([]string, 0, len(counts))
	for word := range counts {
		keywords = append(keywords, word)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return firstSeen[keywords[i]] < firstSeen[keywords[j]]
	})

	if len(keywords) > max {
		keywords = keywords[:max]
	}
	return keywords
}

// PseudoVector derives a deterministic unit-length vector from text. It is
// the degraded-mode stand-in for a real embedding: the same text always
// maps to the same vector, so relative comparisons stay stable even
// without a provider.
func PseudoVector(text string, dims int) []float32 {
	if dims <= 0 {
		return nil
	}

	vec := make([]float32, dims)
	seed := sha256.Sum256([]byte(text))
	block := seed[:]
	for i := 0; i < dims; i++ {
		off := (i * 4) % len(block)
		if i > 0 && off == 0 {
			next := sha256.Sum256(block)
			block = next[:]
		}
		bits := binary.BigEndian.Uint32(block[off : off+4])
		// Map to [-1, 1).
		vec[i] = float32(int32(bits)) / float32(math.MaxInt32)
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
