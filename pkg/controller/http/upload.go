package http

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/goerr/v2"

	"github.com/helixa-health/scribe/pkg/domain/types"
	"github.com/helixa-health/scribe/pkg/utils/errutil"
)

type uploadRequest struct {
	AudioBase64 string `json:"audioBase64"`
	FileName    string `json:"fileName"`
	TemplateID  string `json:"templateId"`
}

// handleUpload emulates the managed processing endpoint: it accepts a
// base64-encoded recording and responds with a generated note.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AudioBase64 == "" {
		respondError(w, http.StatusBadRequest, "audioBase64 is required")
		return
	}

	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "audioBase64 is not valid base64")
		return
	}

	note, err := s.generator.GenerateNote(r.Context(), len(audio), types.TemplateID(req.TemplateID))
	if err != nil {
		errutil.Handle(r.Context(), goerr.Wrap(err, "note generation failed",
			goerr.V("fileName", req.FileName)), "upload handler")
		respondError(w, http.StatusInternalServerError, "note generation failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"fileNote": note,
	})
}
