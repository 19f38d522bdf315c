// Package index defines the retrieval index contracts for docent.
//
// Two indices exist side by side: a vector index over embedding vectors and
// a lexical index over tokenized chunk text. Both are partitioned by
// knowledge base, and a chunk's entries always live in the partition of its
// knowledge base. The in-memory implementations are in index/memory.
package index
