package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/poiesic/docent/core"
)

// breakpointDivisor bounds how far back from the size limit a window may
// shrink to land on a natural breakpoint: at most Size/breakpointDivisor
// runes. Keeping the window bounded preserves near-uniform chunk sizes on
// prose and costs nothing on continuous text.
const breakpointDivisor = 5

// sentenceTerminators end a sentence in the scripts this system ingests.
// A line break counts as the strongest breakpoint of all.
const sentenceTerminators = "。！？.!?"

// Split divides text into an ordered sequence of overlapping chunks.
//
// Every chunk except the last is at most cfg.Size runes; consecutive chunks
// share cfg.Overlap runes so sentences straddling a boundary stay intact in
// at least one chunk. Text shorter than cfg.Size produces exactly one chunk.
// Empty or whitespace-only text returns core.ErrEmptyDocument, and an
// invalid configuration returns core.ErrInvalidChunkConfig, both before any
// chunk is produced.
func Split(text string, cfg core.ChunkConfig) ([]string, error) {
	if err := core.ValidateChunkConfig(cfg); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: no text to split", core.ErrEmptyDocument)
	}

	runes := []rune(text)
	if len(runes) <= cfg.Size {
		return []string{text}, nil
	}

	var chunks []string
	start := 0
	for start < len(runes) {
		end := start + cfg.Size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}

		end = findBreakpoint(runes, start, end, cfg.Overlap)
		chunks = append(chunks, string(runes[start:end]))
		start = end - cfg.Overlap
	}
	return chunks, nil
}

// findBreakpoint searches backward from the hard cut at end for a natural
// place to close the window: a line break first, then a sentence terminator,
// then any whitespace. The search never goes further back than
// (end-start)/breakpointDivisor runes, and never at or below start+overlap,
// so the following window always advances. Returns the rune index one past
// the breakpoint, or end unchanged when nothing suitable exists.
func findBreakpoint(runes []rune, start, end, overlap int) int {
	floor := end - (end-start)/breakpointDivisor
	if floor <= start+overlap {
		floor = start + overlap + 1
	}

	for i := end - 1; i >= floor; i-- {
		if runes[i] == '\n' {
			return i + 1
		}
	}
	for i := end - 1; i >= floor; i-- {
		if strings.ContainsRune(sentenceTerminators, runes[i]) {
			return i + 1
		}
	}
	for i := end - 1; i >= floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}
