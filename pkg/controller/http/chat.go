package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/helixa-health/scribe/pkg/utils/errutil"
	"github.com/helixa-health/scribe/pkg/utils/safe"
)

type chatRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	PatientID *string `json:"patientId"`
}

// handleChat emulates the streaming chat endpoint. The response body is a
// sequence of `data: <json>\n` lines: content chunks followed by a terminal
// success event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	history := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		history = append(history, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}

	reply, err := s.generator.Chat(r.Context(), history)
	if err != nil {
		errutil.Handle(r.Context(), goerr.Wrap(err, "chat generation failed"), "chat handler")
		writeStreamEvent(r.Context(), w, map[string]any{"error": "chat generation failed"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, _ := w.(http.Flusher)
	for _, chunk := range splitChunks(reply, 24) {
		writeStreamEvent(r.Context(), w, map[string]any{"content": chunk})
		if flusher != nil {
			flusher.Flush()
		}
	}
	writeStreamEvent(r.Context(), w, map[string]any{"success": true})
}

func writeStreamEvent(ctx context.Context, w http.ResponseWriter, event map[string]any) {
	raw, err := json.Marshal(event)
	if err != nil {
		return
	}
	safe.Write(ctx, w, append([]byte("data: "), append(raw, '\n')...))
}

// splitChunks cuts text into word-boundary chunks of roughly the given size
func splitChunks(text string, size int) []string {
	words := strings.SplitAfter(text, " ")
	var chunks []string
	var cur strings.Builder
	for _, word := range words {
		cur.WriteString(word)
		if cur.Len() >= size {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}
