package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

// TextGenerator produces free text from a system and user prompt.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

const enhancerSystemPrompt = "You are a friendly sleep coach. Given a person's sleep questionnaire answers, " +
	"the predicted sleep quality and the advice they already received, add at most two short, " +
	"concrete extra tips that do not repeat the existing advice. Do not give medical diagnoses. " +
	"Answer in plain text, one tip per line, each starting with \"• \"."

// GenAIEnhancer adds generated tips to the deterministic advice.
type GenAIEnhancer struct {
	gen TextGenerator
}

// NewGenAIEnhancer creates an AdviceEnhancer backed by gen.
func NewGenAIEnhancer(gen TextGenerator) *GenAIEnhancer {
	return &GenAIEnhancer{gen: gen}
}

// Enhance implements AdviceEnhancer.
func (g *GenAIEnhancer) Enhance(ctx context.Context, answers models.Answers, label int, advice string) (string, error) {
	var b strings.Builder
	b.WriteString("Answers:\n")
	for _, key := range DefaultCatalog().Keys() {
		if v, ok := answers[key]; ok {
			fmt.Fprintf(&b, "- %s: %v\n", key, v)
		}
	}
	fmt.Fprintf(&b, "Predicted sleep quality: %s\n\nExisting advice:\n%s", LabelText(label), advice)

	out, err := g.gen.Generate(ctx, enhancerSystemPrompt, b.String())
	if err != nil {
		return "", fmt.Errorf("advice enhancement failed: %w", err)
	}
	return out, nil
}
