package ingest

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingMu sync.Mutex
	// Initialized encodings are cached per model; a failed lookup is
	// cached as nil so offline hosts pay the cost once.
	encodingCache = map[string]*tiktoken.Tiktoken{}
)

// encodingFor resolves the tiktoken encoding for a model, falling back to
// cl100k_base for models tiktoken does not know.
func encodingFor(model string) *tiktoken.Tiktoken {
	encodingMu.Lock()
	defer encodingMu.Unlock()

	if enc, ok := encodingCache[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			enc = nil
		}
	}
	encodingCache[model] = enc
	return enc
}

// tokenCount reports the token count of a chunk. When no encoding can be
// loaded it estimates at four runes per token, never returning 0 for
// non-empty text.
func tokenCount(model, text string) int {
	if text == "" {
		return 0
	}

	if enc := encodingFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}

	n := utf8.RuneCountInString(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}
