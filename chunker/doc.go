// Package chunker splits document text into overlapping passages sized for
// embedding.
//
// Windows are rune-addressed so multi-byte text never splits inside a code
// point. Each window prefers to end on a natural breakpoint (line break,
// sentence terminator, whitespace) found within a bounded distance of the
// size limit, falling back to a hard cut. Consecutive windows overlap by a
// configured amount; no rune between window boundaries is dropped.
package chunker
