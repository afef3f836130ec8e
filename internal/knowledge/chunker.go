package knowledge

import (
	"strings"

	"github.com/railsense/railsense/internal/model"
)

const (
	maxChunkTokens = 400
	overlapTokens  = 80
)

// Chunk splits extracted pages into token-bounded chunks. Splits land on
// paragraph boundaries when possible and carry a small tail overlap into
// the next chunk so retrieval does not lose sentences cut at an edge.
// Chunk indexes are global across pages and deterministic for fixed input.
func Chunk(pages []PageText) []model.DocChunk {
	var chunks []model.DocChunk
	index := 0
	for _, page := range pages {
		var current []string
		currentTokens := 0
		flush := func() {
			if len(current) == 0 {
				return
			}
			chunks = append(chunks, model.DocChunk{
				Page:       page.Page,
				ChunkIndex: index,
				Content:    strings.Join(current, "\n\n"),
			})
			index++

			// Keep a tail of the flushed chunk as overlap.
			overlap := 0
			var kept []string
			for i := len(current) - 1; i >= 0; i-- {
				t := estimateTokens(current[i])
				if overlap+t > overlapTokens {
					break
				}
				overlap += t
				kept = append([]string{current[i]}, kept...)
			}
			current = kept
			currentTokens = overlap
		}
		for _, para := range splitParagraphs(page.Text) {
			tokens := estimateTokens(para)
			if tokens > maxChunkTokens {
				// Oversized paragraph: flush and split it on sentences.
				flush()
				for _, piece := range splitLong(para, maxChunkTokens) {
					current = []string{piece}
					currentTokens = estimateTokens(piece)
					flush()
				}
				current = nil
				currentTokens = 0
				continue
			}
			if currentTokens+tokens > maxChunkTokens {
				flush()
			}
			current = append(current, para)
			currentTokens += tokens
		}
		if len(current) > 0 {
			chunks = append(chunks, model.DocChunk{
				Page:       page.Page,
				ChunkIndex: index,
				Content:    strings.Join(current, "\n\n"),
			})
			index++
		}
	}
	return chunks
}

func splitParagraphs(text string) []string {
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para != "" {
			out = append(out, para)
		}
	}
	return out
}

// splitLong chops a paragraph on sentence ends, packing sentences up to the
// token budget.
func splitLong(text string, budget int) []string {
	sentences := splitSentences(text)
	var out []string
	var current []string
	tokens := 0
	for _, sentence := range sentences {
		t := estimateTokens(sentence)
		if tokens+t > budget && len(current) > 0 {
			out = append(out, strings.Join(current, " "))
			current = nil
			tokens = 0
		}
		current = append(current, sentence)
		tokens += t
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}
	return out
}

func splitSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			sentence := strings.TrimSpace(text[start : i+1])
			if sentence != "" {
				out = append(out, sentence)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

// estimateTokens counts whitespace-delimited words plus one per non-ASCII
// rune. Crude, but splitting only needs a stable bound, not a tokenizer.
func estimateTokens(text string) int {
	count := 0
	for _, r := range text {
		if r > 127 {
			count++
		}
	}
	count += len(strings.Fields(text))
	if count == 0 && len(text) > 0 {
		return 1
	}
	return count
}
