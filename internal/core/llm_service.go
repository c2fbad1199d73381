package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	genaisdk "google.golang.org/genai"

	"navgurukul.org/assistant/internal/logger"
)

const defaultChatModelName = "gemini-2.5-flash"

// GeminiBackend streams chat answers from the Gemini API. Sessions with search
// grounding go through the genai SDK client, which supports the Google Search tool.
type GeminiBackend struct {
	client    *genai.Client
	search    *genaisdk.Client
	modelName string
	log       *logger.Logger
}

func NewGeminiBackend(ctx context.Context, apiKey, modelName string, log *logger.Logger) (*GeminiBackend, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	search, err := genaisdk.NewClient(ctx, &genaisdk.ClientConfig{
		APIKey:  apiKey,
		Backend: genaisdk.BackendGeminiAPI,
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create GenAI search client: %w", err)
	}
	if modelName == "" {
		modelName = defaultChatModelName
	}
	return &GeminiBackend{
		client:    client,
		search:    search,
		modelName: modelName,
		log:       log.With("component", "GeminiBackend", "model", modelName),
	}, nil
}

func (b *GeminiBackend) Close() {
	if b.client != nil {
		if err := b.client.Close(); err != nil {
			b.log.Warn("Error closing GenAI client", "error", err)
		} else {
			b.log.Info("GenAI client closed")
		}
	}
}

func (b *GeminiBackend) NewSession(ctx context.Context, systemInstruction string, caps Capabilities) (BackendSession, error) {
	if caps.SearchGrounding {
		chat, err := b.search.Chats.Create(ctx, b.modelName, groundedChatConfig(systemInstruction), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create grounded chat: %w", err)
		}
		return &groundedChat{chat: chat}, nil
	}

	model := b.client.GenerativeModel(b.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}
	return &geminiChat{cs: model.StartChat()}, nil
}

type geminiChat struct {
	cs *genai.ChatSession
}

func (c *geminiChat) SendStream(ctx context.Context, prompt string) (DeltaStream, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("prompt is empty")
	}
	return &geminiStream{iter: c.cs.SendMessageStream(ctx, genai.Text(prompt))}, nil
}

type geminiStream struct {
	iter *genai.GenerateContentResponseIterator
}

func (s *geminiStream) Next() (Delta, error) {
	resp, err := s.iter.Next()
	if err == iterator.Done {
		return Delta{}, io.EOF
	}
	if err != nil {
		return Delta{}, fmt.Errorf("gemini stream failed: %w", err)
	}
	return responseToDelta(resp), nil
}

// responseToDelta joins the text parts of the first candidate and collects its citations.
func responseToDelta(resp *genai.GenerateContentResponse) Delta {
	var d Delta
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return d
	}
	cand := resp.Candidates[0]

	if cand.Content != nil {
		var text strings.Builder
		for _, part := range cand.Content.Parts {
			if txt, ok := part.(genai.Text); ok {
				text.WriteString(string(txt))
			}
		}
		d.Text = text.String()
	}

	if cand.CitationMetadata != nil {
		for _, src := range cand.CitationMetadata.CitationSources {
			if src == nil || src.URI == nil || *src.URI == "" {
				continue
			}
			d.Citations = append(d.Citations, GroundingSource{URI: *src.URI})
		}
	}
	return d
}
