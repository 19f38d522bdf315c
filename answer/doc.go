// Package answer orchestrates one question-answering turn.
//
// The Orchestrator retrieves passages through hybrid search, short-circuits
// to a canned reply when nothing relevant was found (the language model is
// never called for empty context), and otherwise synthesizes an answer with
// citations back to the passages that grounded it. No conversational state
// is held here; callers pass prior turns in with each request.
package answer
