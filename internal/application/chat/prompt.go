package chat

import (
	"strings"
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = `You are an onboarding assistant for new team members.
Answer using the knowledge base context you are given: company documentation,
domain background and developer setup guides.

Write answers in Markdown:
- **bold** for key terms, ## and ### for headings
- numbered lists for sequential steps, bullet lists otherwise
- fenced code blocks for commands, configuration and file paths, ` + "`inline code`" + ` for short technical terms
- > quotes for warnings and notes

Rules:
1. Use only the supplied context. When it is not enough, say so plainly.
2. Keep answers short but complete.
3. Setup questions get step-by-step instructions with a heading per stage.
4. Culture and team questions get a friendly, welcoming tone.
5. Mention the documents you relied on.
6. For topics the context does not cover, point the reader at the documentation that is most likely to help.`

// NotFoundAnswer is returned without calling the model when retrieval finds nothing.
const NotFoundAnswer = "I couldn't find relevant information in the knowledge base to answer your question. " +
	"Please try rephrasing your question or contact support for assistance."

const historyHeader = "\n\nPrevious conversation:\n"

// buildPrompt lays out system instructions, context, history and the question in that order.
func buildPrompt(system, context, history, query string) string {
	var sb strings.Builder
	sb.WriteString(system)
	sb.WriteString("\n\nContext from knowledge base:\n")
	sb.WriteString(context)
	if history != "" {
		sb.WriteString(historyHeader)
		sb.WriteString(history)
	}
	sb.WriteString("\n\nUser question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nProvide a helpful answer based on the context:")
	return sb.String()
}

// buildDocumentPrompt feeds one whole document as the context.
func buildDocumentPrompt(system, filename, text, query string) string {
	var sb strings.Builder
	sb.WriteString(system)
	sb.WriteString("\n\nDocument: ")
	sb.WriteString(filename)
	sb.WriteString("\n")
	sb.WriteString(text)
	sb.WriteString("\n\nUser question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nAnswer based only on the document above:")
	return sb.String()
}
