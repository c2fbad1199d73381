package core

import (
	"time"

	"github.com/google/uuid"

	"navgurukul.org/assistant/internal/utils"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	// RoleSystem marks informational annotations such as "file uploaded", not a turn.
	RoleSystem Role = "system"
)

type Feedback string

const (
	FeedbackNone Feedback = ""
	FeedbackUp   Feedback = "up"
	FeedbackDown Feedback = "down"
)

func (f Feedback) Valid() bool {
	return f == FeedbackUp || f == FeedbackDown
}

type FileInfo struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
}

// GroundingSource is a citation returned alongside an answer. URI is the dedup key.
type GroundingSource struct {
	URI                  string `json:"uri"`
	Title                string `json:"title,omitempty"`
	RetrievedContextText string `json:"retrieved_context_text,omitempty"`
}

// DisplayTitle falls back to the URI host when the source has no title.
func (g GroundingSource) DisplayTitle() string {
	if g.Title != "" {
		return g.Title
	}
	return utils.HostFromURI(g.URI)
}

type Message struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Text      string            `json:"text"`
	FileInfo  *FileInfo         `json:"file_info,omitempty"`
	Sources   []GroundingSource `json:"sources,omitempty"`
	Feedback  Feedback          `json:"feedback,omitempty"`
	Streaming bool              `json:"streaming,omitempty"` // true while a model answer is still arriving
	CreatedAt time.Time         `json:"created_at"`
}

func newMessage(role Role, text string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}
}

// clone copies the message so callers never share slices with the transcript.
func (m *Message) clone() Message {
	c := *m
	if m.FileInfo != nil {
		fi := *m.FileInfo
		c.FileInfo = &fi
	}
	if m.Sources != nil {
		c.Sources = append([]GroundingSource(nil), m.Sources...)
	}
	return c
}
