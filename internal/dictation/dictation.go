package dictation

import (
	"context"
	"errors"
)

// Status mirrors the microphone states a client shows while dictating.
type Status string

const (
	StatusListening Status = "listening"
	StatusIdle      Status = "idle"
	StatusDenied    Status = "denied"
	StatusError     Status = "error"
)

var (
	ErrDenied     = errors.New("speech recognition access denied")
	ErrEmptyAudio = errors.New("no audio received")
)

// Clip is one recorded utterance.
type Clip struct {
	Audio    []byte
	MimeType string
}

// Result is the single outcome of an activation. Text is set only when Status is idle
// and speech was recognized.
type Result struct {
	Status Status `json:"status"`
	Text   string `json:"text,omitempty"`
	Err    error  `json:"-"`
}

// Source turns a clip into at most one final transcript. The returned channel yields
// exactly one Result and is then closed. Abandoning the channel cancels nothing.
type Source interface {
	Listen(ctx context.Context, clip Clip) <-chan Result
}

// Await blocks for the result of an activation or until ctx is done.
func Await(ctx context.Context, ch <-chan Result) Result {
	select {
	case res, ok := <-ch:
		if !ok {
			return Result{Status: StatusError, Err: errors.New("dictation source closed without a result")}
		}
		return res
	case <-ctx.Done():
		return Result{Status: StatusError, Err: ctx.Err()}
	}
}
