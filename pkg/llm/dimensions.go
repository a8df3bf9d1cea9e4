package llm

// modelDimensions maps known embedding models to their output width.
var modelDimensions = map[string]int{
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
	"text-embedding-004":                     768,
	"amazon.titan-embed-text-v1":             1536,
	"amazon.titan-embed-text-v2:0":           1024,
	"nomic-embed-text":                       768,
	"mxbai-embed-large":                      1024,
	"all-MiniLM-L6-v2":                       384,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
}

// DimensionsFor returns the embedding width for model, falling back to
// fallback when the model is unknown.
func DimensionsFor(model string, fallback int) int {
	if dims, ok := modelDimensions[model]; ok {
		return dims
	}
	return fallback
}
