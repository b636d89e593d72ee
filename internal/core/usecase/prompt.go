package usecase

import (
	"fmt"
	"strings"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
)

func buildAnswerPrompt(question string, chunks []domain.HybridChunkResult) string {
	var b strings.Builder
	b.WriteString("You are a knowledge base assistant. Answer the question using only the context below.\n")
	b.WriteString("If the context does not contain the answer, say so honestly.\n\n")
	b.WriteString("Context:\n")
	for i, chunk := range chunks {
		fmt.Fprintf(&b, "[%d] %s", i+1, chunk.DocumentTitle)
		if chunk.SectionTitle != "" {
			fmt.Fprintf(&b, " / %s", chunk.SectionTitle)
		}
		b.WriteString("\n")
		b.WriteString(chunk.Content)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	b.WriteString("Respond with a single JSON object, no markdown, matching this schema:\n")
	b.WriteString(`{"answer": "concise answer grounded in the context", "confidence": 0.0, "follow_up_questions": ["question the user might ask next"]}`)
	b.WriteString("\nconfidence is a number between 0 and 1 reflecting how well the context supports the answer.")
	return b.String()
}

func buildRerankPrompt(query string, candidates []domain.HybridChunkResult) string {
	var b strings.Builder
	b.WriteString("Score each text chunk for how useful it is to answer the query.\n\n")
	b.WriteString("Weigh: direct answer to the query 40%, topical relevance 30%, information completeness 20%, text quality 10%.\n\n")
	fmt.Fprintf(&b, "Query: %s\n\n", query)
	b.WriteString("Chunks:\n")
	for _, candidate := range candidates {
		fmt.Fprintf(&b, "id=%s", candidate.ChunkID)
		if candidate.SectionTitle != "" {
			fmt.Fprintf(&b, " section=%q", candidate.SectionTitle)
		}
		b.WriteString("\n")
		b.WriteString(candidate.Content)
		b.WriteString("\n\n")
	}
	b.WriteString("Respond with a single JSON object, no markdown:\n")
	b.WriteString(`{"results": [{"chunk_id": "id", "relevance_score": 0.0, "reasoning": "one short sentence"}]}`)
	b.WriteString("\nrelevance_score is a number between 0 and 1. Include every chunk exactly once.")
	return b.String()
}
