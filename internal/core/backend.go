package core

import "context"

// Delta is one incremental fragment of a streamed answer.
type Delta struct {
	Text      string
	Citations []GroundingSource
}

// DeltaStream yields deltas in arrival order. Next returns io.EOF after the last delta.
type DeltaStream interface {
	Next() (Delta, error)
}

type Capabilities struct {
	SearchGrounding bool
}

// Backend creates chat sessions on the external completion service.
type Backend interface {
	NewSession(ctx context.Context, systemInstruction string, caps Capabilities) (BackendSession, error)
}

// BackendSession is one conversation on the backend. It keeps its own turn history.
type BackendSession interface {
	SendStream(ctx context.Context, prompt string) (DeltaStream, error)
}
