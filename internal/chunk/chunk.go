// Package chunk splits segmented text into bounded fragments for indexing.
package chunk

import "strings"

// Split accumulates sentences (space-joined) into chunks, flushing whenever
// the sentence count reaches sentencesPerChunk or the buffer length reaches
// maxCharsPerChunk, whichever comes first. Blank sentences are skipped and a
// trailing partial buffer is flushed as the final chunk. Deterministic and
// order-preserving.
func Split(sentences []string, sentencesPerChunk, maxCharsPerChunk int) []string {
	chunks := make([]string, 0, len(sentences)/max(1, sentencesPerChunk)+1)

	var current strings.Builder
	count := 0

	for _, s := range sentences {
		if strings.TrimSpace(s) == "" {
			continue
		}
		if count > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(s)
		count++

		if count >= sentencesPerChunk || current.Len() >= maxCharsPerChunk {
			chunks = append(chunks, current.String())
			current.Reset()
			count = 0
		}
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}
