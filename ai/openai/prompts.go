package openai

import (
	"fmt"
	"strings"

	"github.com/poiesic/docent/core"
)

const synthesisSystemPrompt = `You are a knowledge base assistant. You answer user questions based on the content of the provided documents.`

const synthesisPromptTemplate = `Answer the user's question based on the document passages below. If the passages do not contain the relevant information, say so.

Document passages:
%s

User question: %s

Provide an accurate, helpful answer and quote specific content from the passages where possible.`

// formatPassages renders retrieved passages into the block of context text
// handed to the model. Passages are numbered in rank order so the model can
// refer back to them.
func formatPassages(passages []*core.Passage) string {
	var b strings.Builder
	for i, p := range passages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		title := p.DocumentTitle
		if title == "" {
			title = "unknown"
		}
		fmt.Fprintf(&b, "[Passage %d] Source: %s", i+1, title)
		if p.PageNumber > 0 {
			fmt.Fprintf(&b, " (page %d)", p.PageNumber)
		}
		fmt.Fprintf(&b, " Relevance: %.2f\n%s", p.Score, p.Contents)
	}
	return b.String()
}

// buildUserPrompt fills the synthesis template with formatted passages and
// the user's question.
func buildUserPrompt(question string, passages []*core.Passage) string {
	return fmt.Sprintf(synthesisPromptTemplate, formatPassages(passages), question)
}
