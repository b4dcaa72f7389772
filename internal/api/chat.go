package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/charla-ai/charla/internal/chat"
	"github.com/charla-ai/charla/internal/log"
	"github.com/charla-ai/charla/internal/session"
)

// Assistant is the pipeline surface the API depends on.
// Implemented by chat.Assistant.
type Assistant interface {
	Chat(ctx context.Context, sessionID, message string) (*chat.Answer, error)
	ChatStream(ctx context.Context, sessionID, message string, cb chat.StreamFunc) (*chat.Answer, error)
}

var _ Assistant = (*chat.Assistant)(nil)

// maxRequestBytes limits chat request bodies.
const maxRequestBytes = 1 << 20

// chatRequest is the payload for both chat endpoints.
// A blank session_id starts a new session; the generated ID is returned
// in the response so the client can continue the conversation.
type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// chatResponse is the synchronous chat payload.
type chatResponse struct {
	SessionID string      `json:"session_id"`
	Response  string      `json:"response"`
	Sources   []sourceDTO `json:"sources"`
	Degraded  bool        `json:"degraded,omitempty"`
	Query     queryDTO    `json:"query"`
}

// sourceDTO is the wire shape of one citation.
type sourceDTO struct {
	URL   string  `json:"url"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
}

// queryDTO describes how the utterance was interpreted.
type queryDTO struct {
	Rewritten          string `json:"rewritten,omitempty"`
	IsFollowUp         bool   `json:"is_follow_up"`
	IsMeta             bool   `json:"is_conversational_meta"`
	NeedsClarification bool   `json:"needs_clarification,omitempty"`
}

type chatHandler struct {
	assistant Assistant
	logger    log.Logger
}

// parseChatRequest decodes and validates the request body, filling in a
// fresh session ID when the client did not send one.
func parseChatRequest(w http.ResponseWriter, r *http.Request) (chatRequest, error) {
	var req chatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	if req.Message == "" {
		return req, errors.New("message is required")
	}
	if req.SessionID == "" {
		req.SessionID = session.NewID()
	}
	return req, nil
}

func toResponse(ans *chat.Answer) chatResponse {
	resp := chatResponse{
		SessionID: ans.SessionID,
		Response:  ans.Text,
		Sources:   make([]sourceDTO, 0, len(ans.Sources)),
		Degraded:  ans.Degraded,
		Query: queryDTO{
			Rewritten:          ans.Query.Rewritten,
			IsFollowUp:         ans.Query.IsFollowUp,
			IsMeta:             ans.Query.IsConversationalMeta,
			NeedsClarification: ans.Query.NeedsClarification,
		},
	}
	for _, src := range ans.Sources {
		resp.Sources = append(resp.Sources, sourceDTO{URL: src.URL, Title: src.Title, Score: src.Score})
	}
	return resp
}

// send handles POST /api/chat.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	req, err := parseChatRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
		return
	}

	ans, err := h.assistant.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil {
		h.writeChatError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toResponse(ans), h.logger)
}

func (h *chatHandler) writeChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidSession), errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
	default:
		h.logger.Error("chat request failed", "error", err)
		writeError(w, http.StatusBadGateway, "answer_failed", "failed to generate an answer", h.logger)
	}
}

// SSE event types for chat streaming.
const (
	eventChunk   = "chunk"   // partial answer text
	eventSources = "sources" // citation set, sent once before done
	eventDone    = "done"    // stream completed successfully
	eventError   = "error"   // error occurred during streaming
)

// chunkPayload is the SSE data payload for streaming text chunks.
type chunkPayload struct {
	Text string `json:"text"`
}

// donePayload is the SSE data payload when streaming completes.
type donePayload struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
	Degraded  bool   `json:"degraded,omitempty"`
}

// errorPayload is the SSE data payload when an error occurs.
type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// stream handles POST /api/chat/stream with Server-Sent Events.
// Event order: chunk* → sources → done, or error at any point.
func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	req, err := parseChatRequest(w, r)
	if err != nil {
		_ = writeEvent(w, flusher, eventError, errorPayload{Code: "invalid_request", Message: err.Error()})
		return
	}

	ctx := r.Context()
	h.logger.Debug("SSE stream started", "session_id", req.SessionID)

	ans, err := h.assistant.ChatStream(ctx, req.SessionID, req.Message,
		func(ctx context.Context, text string) error {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("client disconnected: %w", err)
			}
			return writeEvent(w, flusher, eventChunk, chunkPayload{Text: text})
		})
	if err != nil {
		if ctx.Err() != nil {
			h.logger.Info("client disconnected", "session_id", req.SessionID)
			return
		}
		_ = writeEvent(w, flusher, eventError, errorPayload{Code: "answer_failed", Message: err.Error()})
		return
	}

	resp := toResponse(ans)
	_ = writeEvent(w, flusher, eventSources, map[string]any{"sources": resp.Sources, "query": resp.Query})
	_ = writeEvent(w, flusher, eventDone, donePayload{
		SessionID: ans.SessionID,
		Response:  ans.Text,
		Degraded:  ans.Degraded,
	})

	h.logger.Debug("SSE stream completed", "session_id", req.SessionID)
}

// writeEvent writes a single SSE event with JSON-encoded data.
// SSE format: "event: <type>\ndata: <json>\n\n"
func writeEvent[T any](w io.Writer, flusher http.Flusher, event string, data T) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	flusher.Flush()
	return nil
}
