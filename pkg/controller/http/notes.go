package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helixa-health/scribe/pkg/domain/model"
	"github.com/helixa-health/scribe/pkg/domain/types"
	"github.com/helixa-health/scribe/pkg/repository"
	"github.com/helixa-health/scribe/pkg/utils/errutil"
)

type notePayload struct {
	ID         string    `json:"id"`
	PatientID  string    `json:"patientId"`
	Title      string    `json:"title"`
	Text       string    `json:"text"`
	Type       string    `json:"type"`
	Matter     string    `json:"matter,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	LastEdited time.Time `json:"lastEdited"`
}

func toNotePayload(n *model.Note) notePayload {
	return notePayload{
		ID:         n.ID.String(),
		PatientID:  n.PatientID.String(),
		Title:      n.Title,
		Text:       n.Text,
		Type:       string(n.Type),
		Matter:     n.Matter,
		CreatedAt:  n.CreatedAt,
		LastEdited: n.LastEdited,
	}
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	patientID := types.PatientID(chi.URLParam(r, "patientID"))

	page, err := s.repo.Note().List(r.Context(), patientID, listOptionsFromQuery(r)...)
	if err != nil {
		errutil.Handle(r.Context(), err, "list notes")
		respondError(w, http.StatusInternalServerError, "failed to list notes")
		return
	}

	notes := make([]notePayload, len(page.Notes))
	for i, n := range page.Notes {
		notes[i] = toNotePayload(n)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"notes":      notes,
		"totalCount": page.TotalCount,
		"nextCursor": page.NextCursor,
	})
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	id := types.NoteID(chi.URLParam(r, "noteID"))

	note, err := s.repo.Note().Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "note not found")
			return
		}
		errutil.Handle(r.Context(), err, "get note")
		respondError(w, http.StatusInternalServerError, "failed to get note")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"note": toNotePayload(note)})
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	var payload notePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.PatientID == "" {
		respondError(w, http.StatusBadRequest, "patientId is required")
		return
	}

	created, err := s.repo.Note().Create(r.Context(), &model.Note{
		PatientID: types.PatientID(payload.PatientID),
		Title:     payload.Title,
		Text:      payload.Text,
		Type:      types.ConsultationType(payload.Type),
		Matter:    payload.Matter,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "patient not found")
			return
		}
		errutil.Handle(r.Context(), err, "create note")
		respondError(w, http.StatusInternalServerError, "failed to create note")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"note": toNotePayload(created)})
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	id := types.NoteID(chi.URLParam(r, "noteID"))

	var payload notePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.repo.Note().Update(r.Context(), &model.Note{
		ID:     id,
		Title:  payload.Title,
		Text:   payload.Text,
		Type:   types.ConsultationType(payload.Type),
		Matter: payload.Matter,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "note not found")
			return
		}
		errutil.Handle(r.Context(), err, "update note")
		respondError(w, http.StatusInternalServerError, "failed to update note")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"note": toNotePayload(updated)})
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	id := types.NoteID(chi.URLParam(r, "noteID"))

	if err := s.repo.Note().Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "note not found")
			return
		}
		errutil.Handle(r.Context(), err, "delete note")
		respondError(w, http.StatusInternalServerError, "failed to delete note")
		return
	}
	respondJSON(w, http.StatusOK, nil)
}
