package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helixa-health/scribe/pkg/domain/interfaces"
	"github.com/helixa-health/scribe/pkg/domain/model"
	"github.com/helixa-health/scribe/pkg/domain/types"
	"github.com/helixa-health/scribe/pkg/repository"
	"github.com/helixa-health/scribe/pkg/utils/errutil"
)

type patientPayload struct {
	ID           string    `json:"patientId"`
	Name         string    `json:"name"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	NoteCount    int       `json:"noteCount"`
	CreatedAt    time.Time `json:"createdAt"`
	LastModified time.Time `json:"lastModified"`
}

func toPatientPayload(p *model.Patient) patientPayload {
	return patientPayload{
		ID:           p.ID.String(),
		Name:         p.Name,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		NoteCount:    p.NoteCount,
		CreatedAt:    p.CreatedAt,
		LastModified: p.LastModified,
	}
}

// listOptionsFromQuery translates the list query parameters shared by the
// patient and note list endpoints
func listOptionsFromQuery(r *http.Request) []interfaces.ListOption {
	var opts []interfaces.ListOption
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			opts = append(opts, interfaces.WithLimit(limit))
		}
	}
	if v := q.Get("cursor"); v != "" {
		opts = append(opts, interfaces.WithCursor(v))
	}
	if v := q.Get("sort"); v != "" {
		direction := interfaces.SortDesc
		if q.Get("dir") == "asc" {
			direction = interfaces.SortAsc
		}
		opts = append(opts, interfaces.WithSort(v, direction))
	}
	if v := q.Get("search"); v != "" {
		opts = append(opts, interfaces.WithSearch(v))
	}
	return opts
}

func (s *Server) handleListPatients(w http.ResponseWriter, r *http.Request) {
	page, err := s.repo.Patient().List(r.Context(), listOptionsFromQuery(r)...)
	if err != nil {
		errutil.Handle(r.Context(), err, "list patients")
		respondError(w, http.StatusInternalServerError, "failed to list patients")
		return
	}

	patients := make([]patientPayload, len(page.Patients))
	for i, p := range page.Patients {
		patients[i] = toPatientPayload(p)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"patients":   patients,
		"totalCount": page.TotalCount,
		"nextCursor": page.NextCursor,
	})
}

func (s *Server) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	id := types.PatientID(chi.URLParam(r, "patientID"))

	patient, err := s.repo.Patient().Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "patient not found")
			return
		}
		errutil.Handle(r.Context(), err, "get patient")
		respondError(w, http.StatusInternalServerError, "failed to get patient")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"patient": toPatientPayload(patient)})
}

func (s *Server) handleCreatePatient(w http.ResponseWriter, r *http.Request) {
	var payload patientPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Name == "" && payload.FirstName == "" && payload.LastName == "" {
		respondError(w, http.StatusBadRequest, "patient name is required")
		return
	}

	created, err := s.repo.Patient().Create(r.Context(), &model.Patient{
		Name:      payload.Name,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
	})
	if err != nil {
		errutil.Handle(r.Context(), err, "create patient")
		respondError(w, http.StatusInternalServerError, "failed to create patient")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"patient": toPatientPayload(created)})
}

func (s *Server) handleUpdatePatient(w http.ResponseWriter, r *http.Request) {
	id := types.PatientID(chi.URLParam(r, "patientID"))

	var payload patientPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := s.repo.Patient().Update(r.Context(), &model.Patient{
		ID:        id,
		Name:      payload.Name,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "patient not found")
			return
		}
		errutil.Handle(r.Context(), err, "update patient")
		respondError(w, http.StatusInternalServerError, "failed to update patient")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"patient": toPatientPayload(updated)})
}

func (s *Server) handleDeletePatient(w http.ResponseWriter, r *http.Request) {
	id := types.PatientID(chi.URLParam(r, "patientID"))

	if err := s.repo.Patient().Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "patient not found")
			return
		}
		errutil.Handle(r.Context(), err, "delete patient")
		respondError(w, http.StatusInternalServerError, "failed to delete patient")
		return
	}
	respondJSON(w, http.StatusOK, nil)
}
