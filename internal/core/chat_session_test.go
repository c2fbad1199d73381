package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navgurukul.org/assistant/internal/attachment"
	"navgurukul.org/assistant/internal/logger"
)

var testOptions = SessionOptions{
	SystemInstruction: "You answer campus questions.",
	Greeting:          "Hello!",
	ClearedGreeting:   "Chat cleared.",
	Capabilities:      Capabilities{SearchGrounding: true},
}

func newStartedSession(t *testing.T, b *fakeBackend, ex Extractor) *ChatSession {
	t.Helper()
	s := NewChatSession(b, ex, testOptions, logger.Nop())
	require.NoError(t, s.Start(context.Background()))
	return s
}

func roles(msgs []Message) []Role {
	out := make([]Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) record(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestStart_SeedsGreeting(t *testing.T) {
	b := &fakeBackend{}
	s := newStartedSession(t, b, nil)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleModel, msgs[0].Role)
	assert.Equal(t, "Hello!", msgs[0].Text)
	assert.NotEmpty(t, msgs[0].ID)
	assert.Equal(t, uint64(1), s.Epoch())
	assert.Equal(t, testOptions.SystemInstruction, b.lastSystem)
	assert.True(t, b.lastCaps.SearchGrounding)

	require.NoError(t, s.Start(context.Background()))
	msgs = s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Chat cleared.", msgs[0].Text)
	assert.Equal(t, uint64(2), s.Epoch())
	assert.Equal(t, 2, b.sessions)
}

func TestSend_BeforeStart(t *testing.T) {
	s := NewChatSession(&fakeBackend{}, nil, testOptions, logger.Nop())
	err := s.Send(context.Background(), SendInput{Text: "hi"}, nil)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Empty(t, s.Messages())
}

func TestStart_BackendFailureLeavesSessionUnusable(t *testing.T) {
	b := &fakeBackend{sessionErr: errBackend}
	s := NewChatSession(b, nil, testOptions, logger.Nop())

	require.Error(t, s.Start(context.Background()))
	assert.Len(t, s.Messages(), 1)
	assert.ErrorIs(t, s.Send(context.Background(), SendInput{Text: "hi"}, nil), ErrNotStarted)
}

func TestClose(t *testing.T) {
	s := newStartedSession(t, &fakeBackend{}, nil)
	s.Close()
	assert.Empty(t, s.Messages())
	assert.ErrorIs(t, s.Send(context.Background(), SendInput{Text: "hi"}, nil), ErrNotStarted)
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSend_StreamsSingleModelMessage(t *testing.T) {
	b := &fakeBackend{}
	b.queue(&scriptedStream{deltas: []Delta{
		{Text: "Eight hours "},
		{Text: "of coding.", Citations: []GroundingSource{{URI: "https://www.navgurukul.org/", Title: "NG"}}},
	}})
	s := newStartedSession(t, b, nil)
	var log eventLog

	err := s.Send(context.Background(), SendInput{Text: "  Tell me about the daily schedule.  "}, log.record)
	require.NoError(t, err)

	msgs := s.Messages()
	assert.Equal(t, []Role{RoleModel, RoleUser, RoleModel}, roles(msgs))
	assert.Equal(t, "Tell me about the daily schedule.", msgs[1].Text)
	assert.Nil(t, msgs[1].FileInfo)
	assert.Equal(t, "Eight hours of coding.", msgs[2].Text)
	assert.False(t, msgs[2].Streaming)
	assert.Equal(t, []GroundingSource{{URI: "https://www.navgurukul.org/", Title: "NG"}}, msgs[2].Sources)
	assert.False(t, s.InFlight())

	assert.Equal(t, []string{"Tell me about the daily schedule."}, b.Prompts())
	assert.Equal(t, []EventType{EventAppend, EventAppend, EventUpdate, EventFinalize}, log.types())
	assert.True(t, log.events[1].Message.Streaming)
	assert.Equal(t, msgs[2].ID, log.events[3].Message.ID)
}

func TestSend_EmptyStream(t *testing.T) {
	b := &fakeBackend{}
	b.queue(&scriptedStream{})
	s := newStartedSession(t, b, nil)

	require.NoError(t, s.Send(context.Background(), SendInput{Text: "hello"}, nil))

	msgs := s.Messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, RoleModel, last.Role)
	assert.Equal(t, EmptyResponseText, last.Text)
	assert.Nil(t, last.Sources)
	assert.False(t, s.InFlight())
}

func TestSend_BackendErrorBeforeAnyDelta(t *testing.T) {
	b := &fakeBackend{openErr: errBackend}
	s := newStartedSession(t, b, nil)

	require.NoError(t, s.Send(context.Background(), SendInput{Text: "hello"}, nil))

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, RoleUser, msgs[1].Role)
	assert.Equal(t, "hello", msgs[1].Text)
	assert.Equal(t, RoleModel, msgs[2].Role)
	assert.Equal(t, ErrorResponseText, msgs[2].Text)
	assert.False(t, s.InFlight())
}

func TestSend_ErrorAfterPartialAppendsTwoModelMessages(t *testing.T) {
	b := &fakeBackend{}
	b.queue(&scriptedStream{deltas: []Delta{{Text: "Half an ans"}}, err: errors.New("reset by peer")})
	s := newStartedSession(t, b, nil)

	require.NoError(t, s.Send(context.Background(), SendInput{Text: "hello"}, nil))

	msgs := s.Messages()
	assert.Equal(t, []Role{RoleModel, RoleUser, RoleModel, RoleModel}, roles(msgs))
	assert.Equal(t, "Half an ans", msgs[2].Text)
	assert.False(t, msgs[2].Streaming)
	assert.Equal(t, ErrorResponseText, msgs[3].Text)
}

func TestSend_EmptyPrompt(t *testing.T) {
	s := newStartedSession(t, &fakeBackend{}, nil)
	assert.ErrorIs(t, s.Send(context.Background(), SendInput{Text: "   "}, nil), ErrEmptyPrompt)
	assert.Len(t, s.Messages(), 1)
}

func TestSend_WithAttachment(t *testing.T) {
	b := &fakeBackend{}
	b.queue(&scriptedStream{deltas: []Delta{{Text: "It is a leave form."}}})
	ex := &fakeExtractor{text: "Leave application form"}
	s := newStartedSession(t, b, ex)

	file := &attachment.Attachment{Name: "X.txt", MimeType: "text/plain", Data: []byte("Leave application form")}
	require.NoError(t, s.Send(context.Background(), SendInput{Text: "What is this?", Attachment: file}, nil))

	msgs := s.Messages()
	assert.Equal(t, []Role{RoleModel, RoleSystem, RoleUser, RoleModel}, roles(msgs))
	assert.Equal(t, "You have uploaded X.txt.", msgs[1].Text)
	assert.Equal(t, "What is this?", msgs[2].Text)
	require.NotNil(t, msgs[2].FileInfo)
	assert.Equal(t, FileInfo{Name: "X.txt", MimeType: "text/plain"}, *msgs[2].FileInfo)
	assert.Equal(t, "It is a leave form.", msgs[3].Text)

	require.Len(t, b.Prompts(), 1)
	assert.Equal(t,
		"Based on the content of the file \"X.txt\", answer the following question.\n\nFile Content:\n---\nLeave application form\n---\n\nQuestion: What is this?",
		b.Prompts()[0])
	require.Len(t, ex.got, 1)
	assert.Equal(t, "X.txt", ex.got[0].Name)
}

func TestSend_AttachmentWithoutTextUsesDefaultQuestion(t *testing.T) {
	b := &fakeBackend{}
	s := newStartedSession(t, b, &fakeExtractor{text: ""})

	file := &attachment.Attachment{Name: "empty.txt", MimeType: "text/plain"}
	require.NoError(t, s.Send(context.Background(), SendInput{Attachment: file}, nil))

	msgs := s.Messages()
	assert.Equal(t, "Analyze this file: empty.txt", msgs[2].Text)
	// no extracted text, so the question goes out verbatim
	assert.Equal(t, []string{"Analyze this file: empty.txt"}, b.Prompts())
}

func TestSend_ExtractionFailure(t *testing.T) {
	b := &fakeBackend{}
	s := newStartedSession(t, b, &fakeExtractor{err: attachment.ErrUnsupported})
	var log eventLog

	file := &attachment.Attachment{Name: "photo.png", MimeType: "image/png"}
	require.NoError(t, s.Send(context.Background(), SendInput{Text: "What is this?", Attachment: file}, log.record))

	msgs := s.Messages()
	assert.Equal(t, []Role{RoleModel, RoleUser, RoleModel}, roles(msgs))
	assert.Equal(t, "What is this?", msgs[1].Text)
	require.NotNil(t, msgs[1].FileInfo)
	assert.Equal(t, FileReadErrorText, msgs[2].Text)
	assert.Empty(t, b.Prompts(), "backend must not be called")
	assert.False(t, s.InFlight())
	assert.Equal(t, []EventType{EventAppend, EventAppend}, log.types())

	// the session stays usable
	require.NoError(t, s.Send(context.Background(), SendInput{Text: "hello"}, nil))
	assert.Len(t, b.Prompts(), 1)
}

func TestSend_AttachmentWithoutExtractor(t *testing.T) {
	s := newStartedSession(t, &fakeBackend{}, nil)
	file := &attachment.Attachment{Name: "a.txt"}
	require.NoError(t, s.Send(context.Background(), SendInput{Text: "q", Attachment: file}, nil))
	msgs := s.Messages()
	assert.Equal(t, FileReadErrorText, msgs[len(msgs)-1].Text)
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestSend_RejectsWhileInFlight(t *testing.T) {
	b := &fakeBackend{}
	stream := newChanStream()
	b.queue(stream)
	s := newStartedSession(t, b, nil)

	done := make(chan error, 1)
	go func() { done <- s.Send(context.Background(), SendInput{Text: "first"}, nil) }()
	require.Eventually(t, s.InFlight, time.Second, time.Millisecond)

	before := s.Messages()
	err := s.Send(context.Background(), SendInput{Text: "second"}, nil)
	assert.ErrorIs(t, err, ErrRequestInFlight)
	assert.Equal(t, before, s.Messages())

	stream.ch <- Delta{Text: "answer"}
	close(stream.ch)
	require.NoError(t, <-done)

	assert.False(t, s.InFlight())
	assert.Equal(t, []Role{RoleModel, RoleUser, RoleModel}, roles(s.Messages()))
	assert.Equal(t, []string{"first"}, b.Prompts())
}

func TestStart_MidStreamOrphansOldEpoch(t *testing.T) {
	b := &fakeBackend{}
	stream := newChanStream()
	b.queue(stream)
	s := newStartedSession(t, b, nil)

	var log eventLog
	done := make(chan error, 1)
	go func() { done <- s.Send(context.Background(), SendInput{Text: "hello"}, log.record) }()

	stream.ch <- Delta{Text: "partial"}
	require.Eventually(t, func() bool { return len(s.Messages()) == 3 }, time.Second, time.Millisecond)

	require.NoError(t, s.Start(context.Background()))
	assert.False(t, s.InFlight(), "new epoch starts idle")
	fresh := s.Messages()
	require.Len(t, fresh, 1)

	// a late delta from epoch 1 must not touch the epoch 2 transcript
	stream.ch <- Delta{Text: " and more", Citations: []GroundingSource{{URI: "https://late"}}}
	close(stream.ch)

	assert.ErrorIs(t, <-done, ErrSessionReset)
	assert.Equal(t, fresh, s.Messages())
	assert.False(t, s.InFlight())

	for _, e := range log.events {
		assert.Equal(t, uint64(1), e.Epoch)
	}

	// the new epoch accepts requests
	require.NoError(t, s.Send(context.Background(), SendInput{Text: "again"}, nil))
	assert.Len(t, s.Messages(), 3)
}

func TestStart_DuringExtractionAbandonsSend(t *testing.T) {
	b := &fakeBackend{}
	release := make(chan struct{})
	entered := make(chan struct{})
	ex := extractorFunc(func(ctx context.Context, a attachment.Attachment) (string, error) {
		close(entered)
		<-release
		return "content", nil
	})
	s := newStartedSession(t, b, ex)

	done := make(chan error, 1)
	go func() {
		done <- s.Send(context.Background(), SendInput{Text: "q", Attachment: &attachment.Attachment{Name: "a.txt"}}, nil)
	}()
	<-entered

	assert.ErrorIs(t, s.Send(context.Background(), SendInput{Text: "other"}, nil), ErrRequestInFlight)
	assert.False(t, s.InFlight(), "extraction does not set the in-flight flag")

	require.NoError(t, s.Start(context.Background()))
	close(release)

	assert.ErrorIs(t, <-done, ErrSessionReset)
	assert.Len(t, s.Messages(), 1)
	assert.Empty(t, b.Prompts())
}

type extractorFunc func(ctx context.Context, a attachment.Attachment) (string, error)

func (f extractorFunc) ExtractText(ctx context.Context, a attachment.Attachment) (string, error) {
	return f(ctx, a)
}

// =============================================================================
// FEEDBACK TESTS
// =============================================================================

func TestRecordFeedback_FirstVoteWins(t *testing.T) {
	b := &fakeBackend{}
	b.queue(&scriptedStream{deltas: []Delta{{Text: "answer"}}})
	s := newStartedSession(t, b, nil)
	require.NoError(t, s.Send(context.Background(), SendInput{Text: "q"}, nil))
	id := s.Messages()[2].ID

	stored, err := s.RecordFeedback(id, FeedbackUp)
	require.NoError(t, err)
	assert.True(t, stored)

	stored, err = s.RecordFeedback(id, FeedbackDown)
	require.NoError(t, err)
	assert.False(t, stored)

	assert.Equal(t, FeedbackUp, s.Messages()[2].Feedback)
}

func TestRecordFeedback_Errors(t *testing.T) {
	s := newStartedSession(t, &fakeBackend{}, nil)
	id := s.Messages()[0].ID

	_, err := s.RecordFeedback("missing", FeedbackUp)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	_, err = s.RecordFeedback(id, Feedback("meh"))
	assert.ErrorIs(t, err, ErrInvalidFeedback)

	_, err = s.RecordFeedback(id, FeedbackNone)
	assert.ErrorIs(t, err, ErrInvalidFeedback)
	assert.Equal(t, FeedbackNone, s.Messages()[0].Feedback)
}

func TestMessages_ReturnsCopies(t *testing.T) {
	b := &fakeBackend{}
	b.queue(&scriptedStream{deltas: []Delta{{Text: "a", Citations: []GroundingSource{{URI: "u"}}}}})
	s := newStartedSession(t, b, nil)
	require.NoError(t, s.Send(context.Background(), SendInput{Text: "q"}, nil))

	msgs := s.Messages()
	msgs[2].Text = "changed"
	msgs[2].Sources[0].URI = "changed"

	again := s.Messages()
	assert.Equal(t, "a", again[2].Text)
	assert.Equal(t, "u", again[2].Sources[0].URI)
}

func TestMessageIDsUnique(t *testing.T) {
	b := &fakeBackend{}
	s := newStartedSession(t, b, nil)
	for i := 0; i < 5; i++ {
		b.queue(&scriptedStream{deltas: []Delta{{Text: "x"}}})
		require.NoError(t, s.Send(context.Background(), SendInput{Text: "q"}, nil))
	}
	seen := map[string]bool{}
	for _, m := range s.Messages() {
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
	}
}
