// Package chunker splits text into overlapping, boundary-aware chunks for
// embedding generation.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

// Default window parameters.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Chunker produces overlapping chunks of at most Size characters.
type Chunker struct {
	Size    int
	Overlap int
}

// New returns a Chunker, coercing non-positive parameters to the defaults.
func New(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap <= 0 {
		overlap = DefaultOverlap
	}
	return &Chunker{Size: size, Overlap: overlap}
}

// Chunk splits text with a sliding window. Each window prefers to end at a
// paragraph break, then a sentence end, then any whitespace, before falling
// back to a hard cut. Successive windows overlap by up to Overlap characters
// and always make forward progress, even when Overlap >= Size.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	if len(runes) <= c.Size {
		return []string{strings.TrimSpace(text)}
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + c.Size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.breakPoint(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end == len(runes) {
			break
		}
		next := end - c.Overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// breakPoint searches backwards from end for the best cut position inside
// (start, end]. Preference order: paragraph break, sentence terminator
// followed by whitespace, any whitespace. Returns end for a hard cut.
func (c *Chunker) breakPoint(runes []rune, start, end int) int {
	// Paragraph break: cut after the blank line.
	for i := end - 2; i > start; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i + 2
		}
	}

	// Sentence terminator followed by whitespace: cut after the terminator.
	for i := end - 2; i > start; i-- {
		if isSentenceEnd(runes[i]) && unicode.IsSpace(runes[i+1]) {
			return i + 1
		}
	}

	// Any whitespace: cut after it.
	for i := end - 1; i > start; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}

	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

// ChunkStructured accumulates whole paragraphs up to Size, keeping each
// paragraph intact where possible. Paragraphs larger than Size are re-split
// with Chunk.
func (c *Chunker) ChunkStructured(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		chunks  []string
		current strings.Builder
	)
	flush := func() {
		if chunk := strings.TrimSpace(current.String()); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		if len([]rune(para)) > c.Size {
			flush()
			chunks = append(chunks, c.Chunk(para)...)
			continue
		}

		if current.Len() > 0 && len([]rune(current.String()))+len([]rune(para))+2 > c.Size {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return chunks
}

// codeBoundary matches lines that start a new top-level construct in common
// languages.
var codeBoundary = regexp.MustCompile(`^(func|class|def|type|fn|impl|struct|interface|module|public|private|protected|static)\b`)

// ChunkCode splits source code, preferring to cut before function, class,
// and block boundaries so definitions stay whole. Blocks without any
// recognizable boundary fall back to the generic algorithm.
func (c *Chunker) ChunkCode(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lines := strings.Split(text, "\n")

	var (
		chunks  []string
		current []string
		length  int
	)
	emit := func(ls []string) {
		if chunk := strings.TrimSpace(strings.Join(ls, "\n")); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	for _, line := range lines {
		lineLen := len([]rune(line)) + 1

		if lineLen > c.Size {
			// A single oversized line cannot respect code boundaries.
			emit(current)
			current = nil
			length = 0
			chunks = append(chunks, c.Chunk(line)...)
			continue
		}

		if length+lineLen > c.Size && len(current) > 0 {
			// Look for the most recent boundary to cut at.
			cut := -1
			for i := len(current) - 1; i > 0; i-- {
				if codeBoundary.MatchString(current[i]) {
					cut = i
					break
				}
			}
			if cut > 0 {
				emit(current[:cut])
				current = append([]string{}, current[cut:]...)
			} else {
				emit(current)
				current = nil
			}
			length = 0
			for _, kept := range current {
				length += len([]rune(kept)) + 1
			}
		}

		current = append(current, line)
		length += lineLen
	}
	emit(current)

	return chunks
}
