package core

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// MockBackend streams a canned answer word by word. It is used for local development
// without an API key.
type MockBackend struct {
	Delay time.Duration
}

func NewMockBackend() *MockBackend {
	return &MockBackend{Delay: 40 * time.Millisecond}
}

func (m *MockBackend) NewSession(ctx context.Context, systemInstruction string, caps Capabilities) (BackendSession, error) {
	return &mockSession{delay: m.Delay, grounding: caps.SearchGrounding}, nil
}

type mockSession struct {
	delay     time.Duration
	grounding bool
	turns     int
}

func (s *mockSession) SendStream(ctx context.Context, prompt string) (DeltaStream, error) {
	s.turns++
	question := prompt
	if i := strings.LastIndex(prompt, "Question: "); i >= 0 {
		question = prompt[i+len("Question: "):]
	}
	answer := fmt.Sprintf("(mock reply %d) You asked: %q. The official NavGurukul website has the details.", s.turns, question)

	words := strings.SplitAfter(answer, " ")
	deltas := make([]Delta, 0, len(words))
	for _, w := range words {
		deltas = append(deltas, Delta{Text: w})
	}
	if s.grounding && len(deltas) > 0 {
		deltas[len(deltas)-1].Citations = []GroundingSource{
			{URI: "https://www.navgurukul.org/", Title: "NavGurukul"},
		}
	}
	return &sliceStream{ctx: ctx, deltas: deltas, delay: s.delay}, nil
}

type sliceStream struct {
	ctx    context.Context
	deltas []Delta
	delay  time.Duration
	next   int
}

func (s *sliceStream) Next() (Delta, error) {
	if err := s.ctx.Err(); err != nil {
		return Delta{}, err
	}
	if s.next >= len(s.deltas) {
		return Delta{}, io.EOF
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-s.ctx.Done():
			return Delta{}, s.ctx.Err()
		}
	}
	d := s.deltas[s.next]
	s.next++
	return d, nil
}
