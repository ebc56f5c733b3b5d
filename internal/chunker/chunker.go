// Package chunker segments streamed text into speakable units.
//
// The splitter is stateless: callers keep the remainder and re-invoke
// Split as more text arrives. A chunk is only ever emitted once because
// everything up to the last boundary is consumed out of the buffer.
package chunker

import (
	"regexp"
	"strings"
)

// boundary matches a run of sentence-ending punctuation or a newline.
var boundary = regexp.MustCompile(`[.!?]+|\n`)

// Split returns the completed speakable chunks in buffer and the
// trailing remainder that does not yet end at a boundary.
//
// Each chunk is the text up to and including its boundary, trimmed of
// surrounding whitespace; chunks that trim to empty are dropped. The
// remainder may be an incomplete sentence still being streamed and is
// never emitted as a chunk.
func Split(buffer string) (chunks []string, remainder string) {
	start := 0
	for _, m := range boundary.FindAllStringIndex(buffer, -1) {
		piece := strings.TrimSpace(buffer[start:m[1]])
		if piece != "" {
			chunks = append(chunks, piece)
		}
		start = m[1]
	}
	return chunks, buffer[start:]
}
