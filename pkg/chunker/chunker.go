// Package chunker splits Markdown into token-bounded chunks for embedding.
package chunker

import (
	"regexp"
	"strings"

	"github.com/rocketdocs/rocketdocs/pkg/config"
	"github.com/rocketdocs/rocketdocs/pkg/utils"
)

// MarkdownSeparators returns the split points tried for Markdown text,
// highest priority first: headings, code block ends, horizontal rules,
// paragraph breaks, lines, words, characters.
//
// The alternative heading syntax (underlined with --- or ===) is not
// handled, nor are horizontal rules with leading indentation.
func MarkdownSeparators() []string {
	return []string{
		"\n#{1,6} ",
		"```\n",
		"\n\\*\\*\\*+\n",
		"\n---+\n",
		"\n___+\n",
		"\n\n",
		"\n",
		" ",
		"",
	}
}

// Chunker splits text into chunks measured in tokens rather than
// characters, so chunks stay within embedding input limits regardless of
// how the text tokenizes.
type Chunker struct {
	chunkSize    int
	chunkMinimum int
	counter      *utils.TokenCounter
}

func New(chunkSize, chunkMinimum int, counter *utils.TokenCounter) *Chunker {
	return &Chunker{
		chunkSize:    chunkSize,
		chunkMinimum: chunkMinimum,
		counter:      counter,
	}
}

func NewFromConfig(cfg *config.EmbeddingConfig, counter *utils.TokenCounter) *Chunker {
	return New(cfg.ChunkSize, cfg.ChunkMinimum, counter)
}

// Chunk splits text along the given separators, then merges neighboring
// chunks that fall below the chunk minimum. Whitespace-only chunks that
// cannot be merged are dropped.
func (c *Chunker) Chunk(text string, separators []string) []string {
	// The separator list is consumed across the whole recursion, not per
	// branch; once a separator has been spent it is not retried on
	// sibling chunks.
	remaining := make([]string, len(separators))
	copy(remaining, separators)
	chunks := c.recursiveChunk(text, &remaining)

	processed := make([]string, 0, len(chunks))
	for i := 0; i < len(chunks); i++ {
		if c.length(chunks[i]) >= c.chunkMinimum {
			processed = append(processed, chunks[i])
			continue
		}
		switch {
		case i > 0 && len(processed) > 0 && c.length(processed[len(processed)-1])+c.length(chunks[i]) <= c.chunkSize:
			processed[len(processed)-1] += chunks[i]
		case i < len(chunks)-1 && c.length(chunks[i])+c.length(chunks[i+1]) <= c.chunkSize:
			chunks[i+1] = chunks[i] + chunks[i+1]
		default:
			if strings.TrimSpace(chunks[i]) != "" {
				processed = append(processed, chunks[i])
			}
		}
	}
	return processed
}

func (c *Chunker) recursiveChunk(text string, separators *[]string) []string {
	if c.length(text) <= c.chunkSize {
		return []string{text}
	}
	if len(*separators) == 0 {
		return c.simpleChunk(text)
	}

	separator := (*separators)[0]
	*separators = (*separators)[1:]

	var final []string
	for _, chunk := range splitWithSeparator(text, separator) {
		if c.length(chunk) <= c.chunkSize {
			final = append(final, chunk)
		} else {
			final = append(final, c.recursiveChunk(chunk, separators)...)
		}
	}
	return final
}

// simpleChunk splits text with no logical boundary into even slices. The
// initial estimate from the token count is usually right; the loop covers
// texts whose slices tokenize unevenly.
func (c *Chunker) simpleChunk(text string) []string {
	tokens := c.length(text)
	estimated := (tokens + c.chunkSize - 1) / c.chunkSize
	if estimated < 1 {
		estimated = 1
	}

	chunks := splitEvenly(text, estimated)
	for !c.verify(chunks) {
		estimated++
		chunks = splitEvenly(text, estimated)
	}
	return chunks
}

func splitEvenly(text string, numChunks int) []string {
	k, m := len(text)/numChunks, len(text)%numChunks
	chunks := make([]string, 0, numChunks)
	for i := 0; i < numChunks; i++ {
		start := i*k + min(i, m)
		end := (i+1)*k + min(i+1, m)
		chunks = append(chunks, text[start:end])
	}
	return chunks
}

func (c *Chunker) verify(chunks []string) bool {
	for _, chunk := range chunks {
		if c.length(chunk) > c.chunkSize {
			return false
		}
	}
	return true
}

func (c *Chunker) length(text string) int {
	return c.counter.Count(text)
}

// splitWithSeparator splits text on a regex separator, keeping each
// separator attached to the piece before it. An empty separator splits
// into individual characters.
func splitWithSeparator(text, separator string) []string {
	var splits []string
	if separator == "" {
		splits = strings.Split(text, "")
	} else {
		re := regexp.MustCompile(separator)
		matches := re.FindAllStringIndex(text, -1)
		if len(matches) == 0 {
			splits = []string{text}
		} else {
			start := 0
			for _, match := range matches {
				splits = append(splits, text[start:match[1]])
				start = match[1]
			}
			splits = append(splits, text[start:])
		}
	}

	nonEmpty := splits[:0]
	for _, s := range splits {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	return nonEmpty
}
