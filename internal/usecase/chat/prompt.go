package chat

import (
	"fmt"
	"strings"

	"github.com/kailas-cloud/omnidex/internal/domain"
	"github.com/kailas-cloud/omnidex/internal/domain/turn"
)

// maxPromptSnippets caps how many fused entries feed the generative prompt.
const maxPromptSnippets = 8

// buildPrompt assembles the generative prompt: instructions, the recent
// dialogue window, the fused retrieval snippets, then the question itself.
func buildPrompt(q domain.Query, history []turn.Turn, items []domain.FusedItem) string {
	var b strings.Builder
	b.WriteString("You are a retrieval assistant answering questions about an indexed knowledge base.\n")
	b.WriteString("Ground your answer in the context entries below. If the context does not cover the question, say so instead of guessing.\n")

	if len(history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for i := range history {
			b.WriteString(string(history[i].Role()))
			b.WriteString(": ")
			b.WriteString(history[i].Text())
			b.WriteByte('\n')
		}
	}

	if len(items) > 0 {
		b.WriteString("\nContext:\n")
		for i, line := range snippets(items, maxPromptSnippets) {
			fmt.Fprintf(&b, "%d. %s\n", i+1, line)
		}
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(q.Text())
	b.WriteByte('\n')
	return b.String()
}

// snippets renders the top fused entries as one line each.
func snippets(items []domain.FusedItem, limit int) []string {
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]string, 0, len(items))
	for i := range items {
		line := items[i].Title()
		if sn := items[i].Snippet(); sn != "" {
			if line != "" {
				line += ": "
			}
			line += sn
		}
		if line == "" {
			line = items[i].ID()
		}
		out = append(out, line)
	}
	return out
}
