package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/helixa-health/scribe/pkg/domain/interfaces"
	"github.com/helixa-health/scribe/pkg/domain/model"
	"github.com/helixa-health/scribe/pkg/domain/types"
)

type noteRepository struct {
	store *store
}

var _ interfaces.NoteRepository = &noteRepository{}

func (r *noteRepository) Create(ctx context.Context, n *model.Note) (*model.Note, error) {
	if err := n.PatientID.Validate(); err != nil {
		return nil, goerr.Wrap(err, "note requires a patient ID")
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	patient, exists := r.store.patients[n.PatientID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "patient not found", goerr.V("patientID", n.PatientID))
	}

	now := time.Now().UTC()
	created := n.Clone()
	created.ID = types.NewNoteID()
	created.CreatedAt = now
	created.LastEdited = now

	r.store.notes[created.ID] = created.Clone()
	patient.NoteCount++
	patient.LastModified = now

	return created, nil
}

func (r *noteRepository) Get(ctx context.Context, id types.NoteID) (*model.Note, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	n, exists := r.store.notes[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "note not found", goerr.V("id", id))
	}

	return n.Clone(), nil
}

func (r *noteRepository) List(ctx context.Context, patientID types.PatientID, opts ...interfaces.ListOption) (*model.NotePage, error) {
	cfg := interfaces.BuildListConfig(opts...)

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	search := strings.ToLower(cfg.Search())

	var all []*model.Note
	for _, n := range r.store.notes {
		if n.PatientID != patientID {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(n.Title), search) &&
			!strings.Contains(strings.ToLower(n.Text), search) {
			continue
		}
		all = append(all, n.Clone())
	}

	sortKey := cfg.SortKey()
	if sortKey == "" {
		sortKey = "createdAt"
	}
	asc := cfg.Direction() == interfaces.SortAsc
	sort.Slice(all, func(i, j int) bool {
		var less bool
		switch sortKey {
		case "lastEdited":
			less = all[i].LastEdited.Before(all[j].LastEdited)
		case "title":
			less = all[i].Title < all[j].Title
		default:
			less = all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		if asc {
			return less
		}
		return !less
	})

	totalCount := len(all)

	start := 0
	if cfg.Cursor() != "" {
		for i, n := range all {
			if n.ID.String() == cfg.Cursor() {
				start = i + 1
				break
			}
		}
	}

	end := start + cfg.Limit()
	if end > len(all) {
		end = len(all)
	}
	page := all[start:end]

	var nextCursor string
	if end < len(all) && len(page) > 0 {
		nextCursor = page[len(page)-1].ID.String()
	}

	return &model.NotePage{
		Notes:      page,
		TotalCount: totalCount,
		NextCursor: nextCursor,
	}, nil
}

func (r *noteRepository) Update(ctx context.Context, n *model.Note) (*model.Note, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, exists := r.store.notes[n.ID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "note not found", goerr.V("id", n.ID))
	}

	updated := n.Clone()
	updated.PatientID = existing.PatientID
	updated.CreatedAt = existing.CreatedAt
	updated.LastEdited = time.Now().UTC()

	r.store.notes[updated.ID] = updated.Clone()
	return updated, nil
}

func (r *noteRepository) Delete(ctx context.Context, id types.NoteID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	n, exists := r.store.notes[id]
	if !exists {
		return goerr.Wrap(ErrNotFound, "note not found", goerr.V("id", id))
	}

	delete(r.store.notes, id)

	if patient, ok := r.store.patients[n.PatientID]; ok {
		patient.NoteCount--
		patient.LastModified = time.Now().UTC()
	}

	return nil
}
