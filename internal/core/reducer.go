package core

import (
	"errors"
	"io"
	"strings"

	"navgurukul.org/assistant/internal/logger"
)

// Outcome is how a single response stream ended.
type Outcome int

const (
	OutcomeAnswered Outcome = iota
	OutcomeEmpty
	OutcomeFailed
	// OutcomeAbandoned means the session was reset while the stream was running.
	OutcomeAbandoned
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAnswered:
		return "answered"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// transcriptWriter is the mutation surface the reducer gets. Every call reports false
// once the transcript belongs to a newer epoch.
type transcriptWriter interface {
	AppendModel(text string, streaming bool) (id string, ok bool)
	ReplaceText(id, text string) bool
	Finalize(id string, sources []GroundingSource) bool
}

// Reducer folds one response stream into the transcript.
type Reducer struct {
	w   transcriptWriter
	log *logger.Logger

	accumulated strings.Builder
	currentID   string // in-progress model message, "" until the first delta
	collected   []GroundingSource
}

func newReducer(w transcriptWriter, log *logger.Logger) *Reducer {
	return &Reducer{w: w, log: log}
}

// Run opens the stream and consumes it to the end.
func (r *Reducer) Run(open func() (DeltaStream, error)) Outcome {
	stream, err := open()
	if err != nil {
		return r.fail(err)
	}

	for {
		delta, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return r.fail(err)
		}
		if !r.apply(delta) {
			return OutcomeAbandoned
		}
	}
	return r.finish()
}

func (r *Reducer) apply(d Delta) bool {
	r.accumulated.WriteString(d.Text)
	r.collected = append(r.collected, d.Citations...)

	if r.currentID == "" {
		id, ok := r.w.AppendModel(r.accumulated.String(), true)
		if !ok {
			return false
		}
		r.currentID = id
		return true
	}
	return r.w.ReplaceText(r.currentID, r.accumulated.String())
}

func (r *Reducer) finish() Outcome {
	if r.currentID == "" {
		if _, ok := r.w.AppendModel(EmptyResponseText, false); !ok {
			return OutcomeAbandoned
		}
		return OutcomeEmpty
	}
	if !r.w.Finalize(r.currentID, DedupeSources(r.collected)) {
		return OutcomeAbandoned
	}
	return OutcomeAnswered
}

// fail keeps any partial answer as it is and appends a separate error message.
func (r *Reducer) fail(err error) Outcome {
	r.log.Warn("Response stream failed", "error", err, "partial", r.currentID != "")
	if r.currentID != "" {
		if !r.w.Finalize(r.currentID, nil) {
			return OutcomeAbandoned
		}
	}
	if _, ok := r.w.AppendModel(ErrorResponseText, false); !ok {
		return OutcomeAbandoned
	}
	return OutcomeFailed
}
