package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"navgurukul.org/assistant/internal/attachment"
	"navgurukul.org/assistant/internal/auth"
	"navgurukul.org/assistant/internal/config"
	"navgurukul.org/assistant/internal/core"
	"navgurukul.org/assistant/internal/dictation"
	"navgurukul.org/assistant/internal/logger"
)

type ctxKey int

const sessionUserKey ctxKey = iota

type APIHandler struct {
	credentials    *auth.CredentialStore
	sessions       *core.SessionRegistry
	dictation      dictation.Source
	profile        config.Profile
	maxUploadBytes int64
	log            *logger.Logger
}

// NewAPIHandler wires the HTTP surface. dict may be nil, in which case dictation
// requests report 503.
func NewAPIHandler(creds *auth.CredentialStore, sessions *core.SessionRegistry, dict dictation.Source, profile config.Profile, maxUploadBytes int64, log *logger.Logger) *APIHandler {
	return &APIHandler{
		credentials:    creds,
		sessions:       sessions,
		dictation:      dict,
		profile:        profile,
		maxUploadBytes: maxUploadBytes,
		log:            log.With("component", "APIHandler"),
	}
}

func (h *APIHandler) TokenAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		user, ok := h.credentials.CurrentSession(r.Context(), token)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Invalid or expired session")
			return
		}

		ctx := context.WithValue(r.Context(), sessionUserKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}

func sessionUser(r *http.Request) *auth.SessionUser {
	user, _ := r.Context().Value(sessionUserKey).(*auth.SessionUser)
	return user
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res := h.credentials.SignUp(r.Context(), req.Email, req.Password)
	if !res.Success {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type LoginResponse struct {
	auth.Result
	Token string `json:"token,omitempty"`
	Email string `json:"email,omitempty"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, user := h.credentials.Login(r.Context(), req.Email, req.Password)
	if !res.Success || user == nil {
		writeJSON(w, http.StatusUnauthorized, LoginResponse{Result: res})
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Result: res, Token: user.Token, Email: user.Email})
}

func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	h.credentials.Logout(r.Context(), user.Token)
	h.sessions.Drop(user.Token)
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"email": sessionUser(r).Email})
}

type ChatResponse struct {
	Messages []core.Message `json:"messages"`
	InFlight bool           `json:"in_flight"`
	Epoch    uint64         `json:"epoch"`
}

func (h *APIHandler) chatSession(w http.ResponseWriter, r *http.Request) (*core.ChatSession, bool) {
	user := sessionUser(r)
	sess, err := h.sessions.Get(r.Context(), user.Token)
	if err != nil {
		h.log.Error("Failed to open chat session", "email", user.Email, "error", err)
		writeError(w, http.StatusServiceUnavailable, core.ErrorResponseText)
		return nil, false
	}
	return sess, true
}

func chatResponse(sess *core.ChatSession) ChatResponse {
	return ChatResponse{Messages: sess.Messages(), InFlight: sess.InFlight(), Epoch: sess.Epoch()}
}

func (h *APIHandler) GetChatHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.chatSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, chatResponse(sess))
}

func (h *APIHandler) SuggestionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"assistant": h.profile.Name,
		"prompts":   h.profile.SuggestedPrompts,
	})
}

func (h *APIHandler) ResetChatHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.chatSession(w, r)
	if !ok {
		return
	}
	if err := sess.Start(r.Context()); err != nil {
		h.log.Error("Failed to reset chat session", "email", sessionUser(r).Email, "error", err)
		writeError(w, http.StatusServiceUnavailable, core.ErrorResponseText)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse(sess))
}

type PostMessageRequest struct {
	Text string `json:"text"`
}

type streamDone struct {
	Epoch uint64 `json:"epoch"`
	Reset bool   `json:"reset,omitempty"`
}

// PostMessageHandler accepts JSON {text} or a multipart form with text and an optional
// file, and streams transcript events until the answer is complete.
func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	in, err := h.parseSendInput(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.Text) == "" && in.Attachment == nil {
		writeError(w, http.StatusBadRequest, "Message text or file is required")
		return
	}

	sess, ok := h.chatSession(w, r)
	if !ok {
		return
	}

	stream, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	log := h.log.With("email", sessionUser(r).Email)

	onEvent := func(e core.Event) {
		if err := stream.send(string(e.Type), e); err != nil {
			log.Debug("Dropping event for disconnected client", "type", e.Type, "error", err)
		}
	}

	// the answer keeps streaming into the transcript even if the client goes away
	err = sess.Send(context.WithoutCancel(r.Context()), in, onEvent)
	switch {
	case errors.Is(err, core.ErrRequestInFlight):
		_ = stream.send(sseEventBusy, map[string]string{"message": "A response is already being generated."})
	case errors.Is(err, core.ErrSessionReset):
		_ = stream.send(sseEventDone, streamDone{Epoch: sess.Epoch(), Reset: true})
	case err != nil:
		log.Error("Failed to send message", "error", err)
		_ = stream.send(sseEventError, map[string]string{"message": core.ErrorResponseText})
	default:
		_ = stream.send(sseEventDone, streamDone{Epoch: sess.Epoch()})
	}
}

func (h *APIHandler) parseSendInput(w http.ResponseWriter, r *http.Request) (core.SendInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		var req PostMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return core.SendInput{}, fmt.Errorf("Invalid request body: %w", err)
		}
		return core.SendInput{Text: req.Text}, nil
	}

	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		return core.SendInput{}, fmt.Errorf("Invalid multipart form: %w", err)
	}
	in := core.SendInput{Text: r.FormValue("text")}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return core.SendInput{}, fmt.Errorf("Invalid file upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return core.SendInput{}, fmt.Errorf("Failed to read file upload: %w", err)
	}
	a := attachment.Attachment{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	}
	a.MimeType = attachment.DetectMimeType(a)
	in.Attachment = &a
	return in, nil
}

type FeedbackRequest struct {
	Value core.Feedback `json:"value"`
}

func (h *APIHandler) MessageFeedbackHandler(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "messageID")

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	sess, ok := h.chatSession(w, r)
	if !ok {
		return
	}

	stored, err := sess.RecordFeedback(messageID, req.Value)
	switch {
	case errors.Is(err, core.ErrInvalidFeedback):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrMessageNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		h.log.Error("Failed to record feedback", "message_id", messageID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to set feedback")
	default:
		writeJSON(w, http.StatusOK, map[string]bool{"stored": stored})
	}
}

// DictationHandler transcribes one multipart "audio" clip.
func (h *APIHandler) DictationHandler(w http.ResponseWriter, r *http.Request) {
	if h.dictation == nil {
		writeJSON(w, http.StatusServiceUnavailable, dictation.Result{Status: dictation.StatusError})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read audio upload")
		return
	}

	clip := dictation.Clip{Audio: audio, MimeType: header.Header.Get("Content-Type")}
	res := dictation.Await(r.Context(), h.dictation.Listen(r.Context(), clip))

	switch res.Status {
	case dictation.StatusIdle:
		writeJSON(w, http.StatusOK, res)
	case dictation.StatusDenied:
		writeJSON(w, http.StatusForbidden, res)
	default:
		if errors.Is(res.Err, dictation.ErrEmptyAudio) {
			writeJSON(w, http.StatusBadRequest, res)
			return
		}
		h.log.Warn("Dictation failed", "error", res.Err)
		writeJSON(w, http.StatusBadGateway, res)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
