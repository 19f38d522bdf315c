package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/docent/core"
)

// Key prefixes for different data types
const (
	knowledgeBasePrefix     = "kbrec"
	knowledgeBaseNamePrefix = "kbrecn"
	knowledgeBaseIDSeq      = "kbrecseq"
	documentPrefix          = "docrec"
	documentKBPrefix        = "docreck"
	documentIDSeq           = "docrecseq"
	chunkPrefix             = "chkrec"
	chunkDocPrefix          = "chkrecd"
	chunkIDSeq              = "chkrecseq"
)

// makeKnowledgeBaseKey generates a key for a knowledge base by ID.
func makeKnowledgeBaseKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", knowledgeBasePrefix, id))
}

// makeKnowledgeBaseNameKey generates a key for the unique-name index.
// Format: prefix:name
func makeKnowledgeBaseNameKey(name string) []byte {
	return []byte(fmt.Sprintf("%s:%s", knowledgeBaseNamePrefix, name))
}

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", documentPrefix, id))
}

// makeDocumentKBKey generates a composite key for the knowledge-base index.
// Format: prefix:kbID:docID
func makeDocumentKBKey(kbID, docID core.ID) []byte {
	prefix := documentKBPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 16 // 8 bytes for kbID + 8 bytes for docID
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(kbID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(docID))
	return buf
}

// makePartialDocumentKBKey generates a partial key for scanning one
// knowledge base's documents.
// Format: prefix:kbID
func makePartialDocumentKBKey(kbID core.ID) []byte {
	prefix := documentKBPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8 // 8 bytes for kbID
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(kbID))
	return buf
}

// makeChunkKey generates a key for a chunk by ID.
func makeChunkKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", chunkPrefix, id))
}

// makeChunkDocKey generates a composite key for the document index.
// Format: prefix:docID:ordinal — ordinal in the key keeps document scans in
// chunk order without a sort.
func makeChunkDocKey(docID core.ID, ordinal int) []byte {
	prefix := chunkDocPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 16 // 8 bytes for docID + 8 bytes for ordinal
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(docID))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(ordinal))
	return buf
}

// makePartialChunkDocKey generates a partial key for scanning one
// document's chunks in ordinal order.
// Format: prefix:docID
func makePartialChunkDocKey(docID core.ID) []byte {
	prefix := chunkDocPrefix + ":"
	prefixBytes := []byte(prefix)
	prefixSize := len(prefixBytes)
	totalSize := prefixSize + 8 // 8 bytes for docID
	buf := make([]byte, totalSize)
	offset := copy(buf, prefixBytes)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(docID))
	return buf
}
