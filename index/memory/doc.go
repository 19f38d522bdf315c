// Package memory provides the in-process implementations of the vector and
// lexical indices.
//
// Both indices are projections over the chunk store: they hold no durable
// state of their own and are rebuilt from stored chunks on open. Partitions
// are isolated per knowledge base and individually locked, so ingestion into
// one knowledge base never blocks queries against another.
package memory
