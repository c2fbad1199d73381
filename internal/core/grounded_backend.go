package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	genaisdk "google.golang.org/genai"
)

// groundedChatConfig enables Google Search so answers carry grounding chunks.
func groundedChatConfig(systemInstruction string) *genaisdk.GenerateContentConfig {
	return &genaisdk.GenerateContentConfig{
		SystemInstruction: genaisdk.NewContentFromText(systemInstruction, genaisdk.RoleUser),
		Tools:             []*genaisdk.Tool{{GoogleSearch: &genaisdk.GoogleSearch{}}},
	}
}

type groundedChat struct {
	chat *genaisdk.Chat
}

func (c *groundedChat) SendStream(ctx context.Context, prompt string) (DeltaStream, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("prompt is empty")
	}
	return newGroundedStream(ctx, c.chat.SendMessageStream(ctx, genaisdk.Part{Text: prompt})), nil
}

type streamItem struct {
	resp *genaisdk.GenerateContentResponse
	err  error
}

// groundedStream turns the SDK's push iterator into a DeltaStream. The producer
// goroutine exits when the iterator ends, fails, or ctx is done.
type groundedStream struct {
	ctx context.Context
	ch  <-chan streamItem
}

func newGroundedStream(ctx context.Context, seq iter.Seq2[*genaisdk.GenerateContentResponse, error]) *groundedStream {
	ch := make(chan streamItem)
	go func() {
		defer close(ch)
		for resp, err := range seq {
			select {
			case ch <- streamItem{resp: resp, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return &groundedStream{ctx: ctx, ch: ch}
}

func (s *groundedStream) Next() (Delta, error) {
	item, ok := <-s.ch
	if !ok {
		if err := s.ctx.Err(); err != nil {
			return Delta{}, err
		}
		return Delta{}, io.EOF
	}
	if item.err != nil {
		return Delta{}, fmt.Errorf("gemini stream failed: %w", item.err)
	}
	return groundedResponseToDelta(item.resp), nil
}

// groundedResponseToDelta joins the text parts of the first candidate and maps its
// grounding chunks to sources.
func groundedResponseToDelta(resp *genaisdk.GenerateContentResponse) Delta {
	var d Delta
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return d
	}
	cand := resp.Candidates[0]

	if cand.Content != nil {
		var text strings.Builder
		for _, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text.WriteString(part.Text)
		}
		d.Text = text.String()
	}

	if cand.GroundingMetadata == nil {
		return d
	}
	for _, chunk := range cand.GroundingMetadata.GroundingChunks {
		if chunk == nil {
			continue
		}
		var src GroundingSource
		if web := chunk.Web; web != nil {
			src.URI = web.URI
			src.Title = web.Title
		}
		if rc := chunk.RetrievedContext; rc != nil {
			src.RetrievedContextText = rc.Text
			if src.URI == "" {
				src.URI = rc.URI
			}
			if src.Title == "" {
				src.Title = rc.Title
			}
		}
		if src.URI == "" {
			continue
		}
		d.Citations = append(d.Citations, src)
	}
	return d
}
