package core

import (
	"context"
	"errors"
	"io"
	"sync"

	"navgurukul.org/assistant/internal/attachment"
)

// scriptedStream yields its deltas, then err (or io.EOF when err is nil).
type scriptedStream struct {
	deltas []Delta
	err    error
	next   int
}

func (s *scriptedStream) Next() (Delta, error) {
	if s.next < len(s.deltas) {
		d := s.deltas[s.next]
		s.next++
		return d, nil
	}
	if s.err != nil {
		return Delta{}, s.err
	}
	return Delta{}, io.EOF
}

// chanStream blocks until the test pushes a delta or closes the channel. It ignores
// cancellation so late deltas can be delivered after a reset.
type chanStream struct {
	ch chan Delta
}

func newChanStream() *chanStream {
	return &chanStream{ch: make(chan Delta)}
}

func (s *chanStream) Next() (Delta, error) {
	d, ok := <-s.ch
	if !ok {
		return Delta{}, io.EOF
	}
	return d, nil
}

type fakeBackend struct {
	mu         sync.Mutex
	streams    []DeltaStream
	openErr    error
	sessionErr error
	prompts    []string
	sessions   int
	lastSystem string
	lastCaps   Capabilities
}

func (b *fakeBackend) queue(streams ...DeltaStream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams = append(b.streams, streams...)
}

func (b *fakeBackend) Prompts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.prompts...)
}

func (b *fakeBackend) NewSession(ctx context.Context, systemInstruction string, caps Capabilities) (BackendSession, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sessionErr != nil {
		return nil, b.sessionErr
	}
	b.sessions++
	b.lastSystem = systemInstruction
	b.lastCaps = caps
	return &fakeBackendSession{b: b}, nil
}

type fakeBackendSession struct {
	b *fakeBackend
}

func (s *fakeBackendSession) SendStream(ctx context.Context, prompt string) (DeltaStream, error) {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.prompts = append(s.b.prompts, prompt)
	if s.b.openErr != nil {
		return nil, s.b.openErr
	}
	if len(s.b.streams) == 0 {
		return &scriptedStream{}, nil
	}
	st := s.b.streams[0]
	s.b.streams = s.b.streams[1:]
	return st, nil
}

type fakeExtractor struct {
	text string
	err  error
	got  []attachment.Attachment
}

func (e *fakeExtractor) ExtractText(ctx context.Context, a attachment.Attachment) (string, error) {
	e.got = append(e.got, a)
	return e.text, e.err
}

var errBackend = errors.New("backend unavailable")
