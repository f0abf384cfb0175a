package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"concierge/internal/domain"
)

// Canned responses used when the classifier does not generate one.
var defaultSpecialResponses = map[domain.SpecialCategory]string{
	domain.SpecialGreeting:     "Hello! How can I help you today?",
	domain.SpecialGoodbye:      "Thanks for reaching out. Have a great day!",
	domain.SpecialHumanRequest: "I'll connect you with a human agent. Please hold on while I transfer your conversation.",
}

// SpecialCase is an accepted special-case classification.
type SpecialCase struct {
	Category   domain.SpecialCategory
	Confidence float64
	Response   string
}

// SpecialCaseDetector classifies a message as greeting, goodbye, or
// human-handoff via a single LLM call. Accepted classifications
// short-circuit agent selection entirely.
type SpecialCaseDetector struct {
	llm       domain.LLMProvider
	floor     float64 // minimum confidence to accept a classification
	responses map[domain.SpecialCategory]string
	logger    *slog.Logger
}

// NewSpecialCaseDetector creates a detector. floor falls back to 0.7 when
// zero; responses override the canned defaults per category.
func NewSpecialCaseDetector(llm domain.LLMProvider, floor float64, responses map[domain.SpecialCategory]string, logger *slog.Logger) *SpecialCaseDetector {
	if floor <= 0 {
		floor = 0.7
	}
	merged := make(map[domain.SpecialCategory]string, len(defaultSpecialResponses))
	for k, v := range defaultSpecialResponses {
		merged[k] = v
	}
	for k, v := range responses {
		merged[k] = v
	}
	return &SpecialCaseDetector{llm: llm, floor: floor, responses: merged, logger: logger}
}

// specialCaseResponse is the structured output requested from the LLM.
type specialCaseResponse struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Response   string  `json:"response"`
}

// Classify returns an accepted special case or nil. Classification
// failures and low-confidence results mean "no special case".
func (d *SpecialCaseDetector) Classify(ctx context.Context, message string) *SpecialCase {
	prompt := fmt.Sprintf(
		`Classify the customer message into exactly one category: "greeting", "goodbye", "human_request", or "none".

Message: %q

Respond with JSON: {"category": "<category>", "confidence": <0.0-1.0>, "response": "<short reply, or empty>"}`,
		message)

	raw, err := d.llm.Complete(ctx, domain.CompletionRequest{
		System:   "You classify customer-service messages.",
		Prompt:   prompt,
		JSONOnly: true,
	})
	if err != nil {
		d.logger.Warn("special-case classification failed", "error", err)
		return nil
	}

	var resp specialCaseResponse
	if err := decodeJSON(raw, &resp); err != nil {
		d.logger.Warn("special-case classification returned malformed JSON", "error", err)
		return nil
	}

	category := domain.SpecialCategory(resp.Category)
	switch category {
	case domain.SpecialGreeting, domain.SpecialGoodbye, domain.SpecialHumanRequest:
	default:
		return nil
	}

	conf := clamp01(resp.Confidence)
	if conf < d.floor {
		d.logger.Debug("special case below floor", "category", category, "confidence", conf)
		return nil
	}

	response := resp.Response
	if response == "" {
		response = d.responses[category]
	}
	return &SpecialCase{Category: category, Confidence: conf, Response: response}
}
