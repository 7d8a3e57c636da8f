package ask

import (
	"fmt"
	"strings"

	"github.com/jinford/study-rag/internal/core/indexing"
	"github.com/jinford/study-rag/internal/core/llm"
)

const chatSystemPrompt = `You are a helpful AI assistant. Answer questions using ONLY the provided sources.

RULES:
1. Provide clear, comprehensive answers based on the available sources
2. Write in a natural, conversational tone
3. Use simple formatting only: **bold**, *italic*, ` + "`code`" + `
4. Focus on directly answering the user's question with the information from the sources`

const summarySystemPrompt = `Write a summary paragraph of 4-5 lines about the content provided.

RULES:
- Use **bold** for key terms and *italic* for emphasis (sparingly)
- Write as if explaining the topic directly, not describing the sources
- Do NOT start with "The articles...", "The sources...", "This content..." or similar
- Start directly with the subject matter (e.g., "Quantum computing is...")
- Define or mention the main concepts

Respond with a single JSON object of the form {"summary": ...}.`

const exampleQuestionsSystemPrompt = `Generate exactly 3 questions based on this text.

RULES:
- Questions must be about the SUBJECT MATTER, not about the text itself
- Do NOT mention "article", "document", "text", "source", or "Wikipedia"
- Do NOT ask what the topic is or what is covered
- Ask questions that someone studying this subject would ask
- Each question must be answerable using ONLY the provided information

Respond with a single JSON object of the form {"questions": [...]}.`

const sourceSummarySystemPrompt = `You are an expert content summarizer. Your task is to create a concise summary of the provided content.
The summary should be 2-3 sentences that capture the essential information and main points.
Focus on the key concepts, findings, or conclusions presented in the content.`

var summaryShape = &llm.Shape{
	Name:        "notebook_summary",
	Description: "A short summary paragraph",
	Schema: map[string]any{
		"type":                 "object",
		"properties":           map[string]any{"summary": map[string]any{"type": "string"}},
		"required":             []string{"summary"},
		"additionalProperties": false,
	},
}

var exampleQuestionsShape = &llm.Shape{
	Name:        "example_questions",
	Description: "Example questions about the subject matter",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required":             []string{"questions"},
		"additionalProperties": false,
	},
}

// BuildChatPrompt は検索したチャンクを文脈として添えたユーザー入力を構築する
func BuildChatPrompt(query string, hits []*indexing.SearchHit) string {
	var sb strings.Builder

	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("Context information is below, surrounded by ---------------------\n\n")
	sb.WriteString("---------------------\n")
	if len(hits) == 0 {
		sb.WriteString("(no relevant sources were found)\n")
	}
	for i, hit := range hits {
		if hit == nil || hit.Record == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("[%d] %s\n", i+1, hit.Record.Metadata.Title))
		sb.WriteString(hit.Record.Text)
		sb.WriteString("\n\n")
	}
	sb.WriteString("---------------------\n\n")

	sb.WriteString("Given the context and provided history information and not prior knowledge, reply to the user comment. ")
	sb.WriteString("If the answer is not in the context, inform the user that you can't answer the question.\n")

	return sb.String()
}
