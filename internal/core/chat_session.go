package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"navgurukul.org/assistant/internal/attachment"
	"navgurukul.org/assistant/internal/logger"
)

var (
	ErrNotStarted      = errors.New("chat session not started")
	ErrRequestInFlight = errors.New("a request is already in flight")
	ErrEmptyPrompt     = errors.New("message text is empty")
	ErrSessionReset    = errors.New("chat session was reset during the request")
	ErrMessageNotFound = errors.New("message not found")
	ErrInvalidFeedback = errors.New("feedback must be \"up\" or \"down\"")
	ErrNoExtractor     = errors.New("attachments are not supported")
)

// Extractor turns an attachment into prompt text.
type Extractor interface {
	ExtractText(ctx context.Context, a attachment.Attachment) (string, error)
}

type EventType string

const (
	EventAppend   EventType = "append"
	EventUpdate   EventType = "update"
	EventFinalize EventType = "finalize"
)

// Event describes one transcript mutation. Message is a snapshot taken after the change.
type Event struct {
	Type    EventType `json:"type"`
	Epoch   uint64    `json:"epoch"`
	Message Message   `json:"message"`
}

// EventFunc receives events on the goroutine that called Send.
type EventFunc func(Event)

type SessionOptions struct {
	SystemInstruction string
	Greeting          string
	ClearedGreeting   string
	Capabilities      Capabilities
}

type SendInput struct {
	Text       string
	Attachment *attachment.Attachment
}

// ChatSession owns one conversation: the backend handle, the transcript and the
// in-flight flag. All state is guarded by mu. Work for a stale epoch is dropped.
type ChatSession struct {
	backend   Backend
	extractor Extractor
	opts      SessionOptions
	log       *logger.Logger

	mu         sync.Mutex
	epoch      uint64
	started    bool
	handle     BackendSession
	messages   []*Message
	byID       map[string]*Message
	inFlight   bool
	preparing  bool
	cancelSend context.CancelFunc
}

func NewChatSession(backend Backend, extractor Extractor, opts SessionOptions, log *logger.Logger) *ChatSession {
	if opts.ClearedGreeting == "" {
		opts.ClearedGreeting = opts.Greeting
	}
	return &ChatSession{
		backend:   backend,
		extractor: extractor,
		opts:      opts,
		log:       log.With("component", "ChatSession"),
		byID:      make(map[string]*Message),
	}
}

// Start opens a fresh backend session and resets the transcript to a single greeting.
// Any request still running for the previous epoch is orphaned.
func (s *ChatSession) Start(ctx context.Context) error {
	handle, err := s.backend.NewSession(ctx, s.opts.SystemInstruction, s.opts.Capabilities)

	s.mu.Lock()
	greeting := s.opts.Greeting
	if s.started {
		greeting = s.opts.ClearedGreeting
	}
	s.resetLocked()
	s.started = true
	if err == nil {
		s.handle = handle
	}
	s.appendLocked(newMessage(RoleModel, greeting))
	epoch := s.epoch
	s.mu.Unlock()

	if err != nil {
		s.log.Error("Failed to create backend session", "epoch", epoch, "error", err)
		return fmt.Errorf("failed to create backend session: %w", err)
	}
	s.log.Debug("Chat session started", "epoch", epoch)
	return nil
}

// Close abandons the session. Later sends fail with ErrNotStarted until Start is called.
func (s *ChatSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *ChatSession) resetLocked() {
	s.epoch++
	if s.cancelSend != nil {
		s.cancelSend()
		s.cancelSend = nil
	}
	s.handle = nil
	s.messages = nil
	s.byID = make(map[string]*Message)
	s.inFlight = false
	s.preparing = false
}

func (s *ChatSession) appendLocked(m *Message) {
	s.messages = append(s.messages, m)
	s.byID[m.ID] = m
}

// Send appends the user turn, streams the answer into the transcript and returns once
// the stream has ended. It is a no-op returning ErrNotStarted or ErrRequestInFlight when
// the session cannot take a request.
func (s *ChatSession) Send(ctx context.Context, in SendInput, onEvent EventFunc) error {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	text := strings.TrimSpace(in.Text)

	s.mu.Lock()
	if s.handle == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if s.inFlight || s.preparing {
		s.mu.Unlock()
		return ErrRequestInFlight
	}
	if text == "" && in.Attachment == nil {
		s.mu.Unlock()
		return ErrEmptyPrompt
	}
	epoch := s.epoch
	handle := s.handle

	var fileInfo *FileInfo
	var fileContent string
	if in.Attachment != nil {
		fileInfo = &FileInfo{Name: in.Attachment.Name, MimeType: in.Attachment.MimeType}
		if text == "" {
			text = defaultAttachmentQuestion(in.Attachment.Name)
		}

		s.preparing = true
		s.mu.Unlock()
		content, err := s.extract(ctx, *in.Attachment)
		s.mu.Lock()

		if s.epoch != epoch {
			s.mu.Unlock()
			return ErrSessionReset
		}
		s.preparing = false

		if err != nil {
			s.log.Warn("Failed to read attachment", "file", in.Attachment.Name, "error", err)
			user := newMessage(RoleUser, text)
			user.FileInfo = fileInfo
			reply := newMessage(RoleModel, FileReadErrorText)
			s.appendLocked(user)
			s.appendLocked(reply)
			events := []Event{
				{Type: EventAppend, Epoch: epoch, Message: user.clone()},
				{Type: EventAppend, Epoch: epoch, Message: reply.clone()},
			}
			s.mu.Unlock()
			emit(onEvent, events)
			return nil
		}
		fileContent = content
	}

	var events []Event
	if fileInfo != nil {
		notice := newMessage(RoleSystem, uploadNotice(fileInfo.Name))
		s.appendLocked(notice)
		events = append(events, Event{Type: EventAppend, Epoch: epoch, Message: notice.clone()})
	}
	user := newMessage(RoleUser, text)
	user.FileInfo = fileInfo
	s.appendLocked(user)
	events = append(events, Event{Type: EventAppend, Epoch: epoch, Message: user.clone()})

	reqCtx, cancel := context.WithCancel(ctx)
	s.inFlight = true
	s.cancelSend = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.epoch == epoch {
			s.inFlight = false
			s.cancelSend = nil
		}
		s.mu.Unlock()
		cancel()
	}()

	emit(onEvent, events)

	prompt := buildPrompt(text, nameOf(fileInfo), fileContent)
	writer := &epochWriter{s: s, epoch: epoch, emit: onEvent}
	outcome := newReducer(writer, s.log.With("epoch", epoch)).Run(func() (DeltaStream, error) {
		return handle.SendStream(reqCtx, prompt)
	})

	s.log.Debug("Request finished", "epoch", epoch, "outcome", outcome.String())
	if outcome == OutcomeAbandoned {
		return ErrSessionReset
	}
	return nil
}

func (s *ChatSession) extract(ctx context.Context, a attachment.Attachment) (string, error) {
	if s.extractor == nil {
		return "", ErrNoExtractor
	}
	return s.extractor.ExtractText(ctx, a)
}

// RecordFeedback sets feedback on a message that has none yet. It reports whether the
// value was stored. A second vote on the same message is ignored.
func (s *ChatSession) RecordFeedback(messageID string, value Feedback) (bool, error) {
	if !value.Valid() {
		return false, ErrInvalidFeedback
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.byID[messageID]
	if !ok {
		return false, ErrMessageNotFound
	}
	if msg.Feedback != FeedbackNone {
		return false, nil
	}
	msg.Feedback = value
	return true, nil
}

// Messages returns a copy of the transcript in order.
func (s *ChatSession) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, m.clone())
	}
	return out
}

func (s *ChatSession) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

func (s *ChatSession) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// epochWriter applies reducer output to the transcript only while its epoch is current.
type epochWriter struct {
	s     *ChatSession
	epoch uint64
	emit  EventFunc
}

func (w *epochWriter) AppendModel(text string, streaming bool) (string, bool) {
	w.s.mu.Lock()
	if w.s.epoch != w.epoch {
		w.s.mu.Unlock()
		return "", false
	}
	m := newMessage(RoleModel, text)
	m.Streaming = streaming
	w.s.appendLocked(m)
	snap := m.clone()
	w.s.mu.Unlock()

	w.emit(Event{Type: EventAppend, Epoch: w.epoch, Message: snap})
	return m.ID, true
}

func (w *epochWriter) ReplaceText(id, text string) bool {
	return w.mutate(id, EventUpdate, func(m *Message) {
		m.Text = text
	})
}

func (w *epochWriter) Finalize(id string, sources []GroundingSource) bool {
	return w.mutate(id, EventFinalize, func(m *Message) {
		m.Streaming = false
		if len(sources) > 0 {
			m.Sources = sources
		}
	})
}

func (w *epochWriter) mutate(id string, typ EventType, fn func(*Message)) bool {
	w.s.mu.Lock()
	if w.s.epoch != w.epoch {
		w.s.mu.Unlock()
		return false
	}
	m, ok := w.s.byID[id]
	if !ok {
		w.s.mu.Unlock()
		return false
	}
	fn(m)
	snap := m.clone()
	w.s.mu.Unlock()

	w.emit(Event{Type: typ, Epoch: w.epoch, Message: snap})
	return true
}

func emit(fn EventFunc, events []Event) {
	for _, e := range events {
		fn(e)
	}
}

func nameOf(fi *FileInfo) string {
	if fi == nil {
		return ""
	}
	return fi.Name
}
