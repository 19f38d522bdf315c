// Package vectorize turns persisted chunks into vector index entries.
//
// The BatchVectorizer embeds chunks with bounded retry and records each
// success on the chunk record and in the vector index. The Reindexer rebuilds
// a whole knowledge base's index partitions from storage, re-embedding every
// chunk, which is how an embedding-model change is rolled out.
package vectorize
