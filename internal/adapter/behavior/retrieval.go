package behavior

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"concierge/internal/domain"
	"concierge/internal/infra/config"
)

// retrievalTopK is how many snippets are handed to the synthesis prompt.
const retrievalTopK = 2

// Retrieval is the knowledge-snippet behavior variant: lexical snippet
// scoring followed by LLM synthesis over the best matches.
type Retrieval struct {
	snippets []config.SnippetDef
	cfg      domain.AgentConfig
	provider domain.LLMProvider
}

// NewRetrieval creates a retrieval-based behavior.
func NewRetrieval(snippets []config.SnippetDef, cfg domain.AgentConfig, provider domain.LLMProvider) *Retrieval {
	return &Retrieval{snippets: snippets, cfg: cfg, provider: provider}
}

// Process implements domain.Behavior.
func (b *Retrieval) Process(ctx context.Context, message string, _ map[string]any) (*domain.ProcessResult, error) {
	hits := b.rank(message)
	if len(hits) == 0 {
		return &domain.ProcessResult{
			Response: "I couldn't find anything about that in my knowledge base.",
			Success:  true,
		}, nil
	}

	// Without a provider the best snippet is the answer.
	if b.provider == nil {
		return &domain.ProcessResult{
			Response: hits[0].Text,
			Success:  true,
			Metadata: map[string]any{"snippet": hits[0].Title},
		}, nil
	}

	var sb strings.Builder
	titles := make([]string, 0, len(hits))
	for _, s := range hits {
		fmt.Fprintf(&sb, "## %s\n%s\n\n", s.Title, s.Text)
		titles = append(titles, s.Title)
	}

	resp, err := b.provider.Complete(ctx, domain.CompletionRequest{
		System: "Answer the customer's question using only the provided knowledge snippets. " +
			"If the snippets do not answer the question, say so.",
		Prompt:      "Snippets:\n\n" + sb.String() + "Question: " + message,
		Model:       b.cfg.Model,
		Temperature: b.cfg.Temperature,
		Timeout:     b.cfg.Timeout,
	})
	if err != nil {
		return nil, domain.WrapOp("retrieval behavior", err)
	}
	return &domain.ProcessResult{
		Response: strings.TrimSpace(resp),
		Success:  true,
		Metadata: map[string]any{"snippets": titles},
	}, nil
}

// rank scores snippets by keyword overlap with the message and returns
// the top matches.
func (b *Retrieval) rank(message string) []config.SnippetDef {
	words := strings.Fields(strings.ToLower(message))

	type scored struct {
		snippet config.SnippetDef
		score   int
	}
	var ranked []scored
	for _, s := range b.snippets {
		body := strings.ToLower(s.Title + " " + s.Text)
		score := 0
		for _, w := range words {
			if len(w) < 3 {
				continue
			}
			if strings.Contains(body, w) {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{snippet: s, score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]config.SnippetDef, 0, retrievalTopK)
	for i := 0; i < len(ranked) && i < retrievalTopK; i++ {
		out = append(out, ranked[i].snippet)
	}
	return out
}

// Compile-time interface check.
var _ domain.Behavior = (*Retrieval)(nil)
