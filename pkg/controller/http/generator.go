package http

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"

	"github.com/helixa-health/scribe/pkg/domain/types"
)

// Generator produces note and chat text for the dev backend. The managed
// service runs transcription and generation behind one opaque request; the
// dev server substitutes an LLM or a deterministic template.
type Generator interface {
	GenerateNote(ctx context.Context, audioSize int, templateID types.TemplateID) (string, error)
	Chat(ctx context.Context, messages []string) (string, error)
}

// LLMGenerator backs the dev server with a gollem LLM client
type LLMGenerator struct {
	client gollem.LLMClient
}

func NewLLMGenerator(client gollem.LLMClient) *LLMGenerator {
	return &LLMGenerator{client: client}
}

const noteSystemPrompt = `You are a clinical scribe. Produce a concise, structured clinical note from the consultation context provided. Use plain section headings.`

func (g *LLMGenerator) GenerateNote(ctx context.Context, audioSize int, templateID types.TemplateID) (string, error) {
	agent := gollem.New(g.client, gollem.WithSystemPrompt(noteSystemPrompt))
	prompt := fmt.Sprintf("Draft a clinical note using template %q for a dictated consultation (%d bytes of audio).", templateID, audioSize)

	resp, err := agent.Execute(ctx, gollem.Text(prompt))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate note", goerr.V("templateID", templateID))
	}
	return strings.Join(resp.Texts, "\n"), nil
}

const chatSystemPrompt = `You are a clinical assistant answering a doctor's questions. Be brief and factual.`

func (g *LLMGenerator) Chat(ctx context.Context, messages []string) (string, error) {
	agent := gollem.New(g.client, gollem.WithSystemPrompt(chatSystemPrompt))

	resp, err := agent.Execute(ctx, gollem.Text(strings.Join(messages, "\n")))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate chat response")
	}
	return strings.Join(resp.Texts, "\n"), nil
}

// TemplateGenerator is the deterministic fallback used when no LLM is
// configured, e.g. in tests and offline development.
type TemplateGenerator struct{}

func (TemplateGenerator) GenerateNote(ctx context.Context, audioSize int, templateID types.TemplateID) (string, error) {
	return fmt.Sprintf("Subjective:\nDictated consultation (%d bytes, template %s).\n\nAssessment:\nPending review.", audioSize, templateID), nil
}

func (TemplateGenerator) Chat(ctx context.Context, messages []string) (string, error) {
	if len(messages) == 0 {
		return "How can I help?", nil
	}
	return "Regarding: " + messages[len(messages)-1], nil
}
