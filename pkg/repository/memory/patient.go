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

type patientRepository struct {
	store *store
}

var _ interfaces.PatientRepository = &patientRepository{}

func (r *patientRepository) Create(ctx context.Context, p *model.Patient) (*model.Patient, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()
	created := p.Clone()
	created.ID = types.NewPatientID()
	created.NoteCount = 0
	created.CreatedAt = now
	created.LastModified = now
	if created.Name == "" {
		created.Name = strings.TrimSpace(created.FirstName + " " + created.LastName)
	}

	r.store.patients[created.ID] = created.Clone()
	return created, nil
}

func (r *patientRepository) Get(ctx context.Context, id types.PatientID) (*model.Patient, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, exists := r.store.patients[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "patient not found", goerr.V("id", id))
	}

	return p.Clone(), nil
}

func (r *patientRepository) List(ctx context.Context, opts ...interfaces.ListOption) (*model.PatientPage, error) {
	cfg := interfaces.BuildListConfig(opts...)

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	search := strings.ToLower(cfg.Search())

	var all []*model.Patient
	for _, p := range r.store.patients {
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}
		all = append(all, p.Clone())
	}

	sortKey := cfg.SortKey()
	if sortKey == "" {
		sortKey = "lastModified"
	}
	asc := cfg.Direction() == interfaces.SortAsc
	sort.Slice(all, func(i, j int) bool {
		var less bool
		switch sortKey {
		case "name":
			less = all[i].Name < all[j].Name
		case "createdAt":
			less = all[i].CreatedAt.Before(all[j].CreatedAt)
		default:
			less = all[i].LastModified.Before(all[j].LastModified)
		}
		if asc {
			return less
		}
		return !less
	})

	totalCount := len(all)

	start := 0
	if cfg.Cursor() != "" {
		for i, p := range all {
			if p.ID.String() == cfg.Cursor() {
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

	return &model.PatientPage{
		Patients:   page,
		TotalCount: totalCount,
		NextCursor: nextCursor,
	}, nil
}

func (r *patientRepository) Update(ctx context.Context, p *model.Patient) (*model.Patient, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	existing, exists := r.store.patients[p.ID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "patient not found", goerr.V("id", p.ID))
	}

	updated := p.Clone()
	updated.NoteCount = existing.NoteCount
	updated.CreatedAt = existing.CreatedAt
	updated.LastModified = time.Now().UTC()
	if updated.Name == "" {
		updated.Name = strings.TrimSpace(updated.FirstName + " " + updated.LastName)
	}

	r.store.patients[updated.ID] = updated.Clone()
	return updated, nil
}

func (r *patientRepository) Delete(ctx context.Context, id types.PatientID) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.patients[id]; !exists {
		return goerr.Wrap(ErrNotFound, "patient not found", goerr.V("id", id))
	}

	delete(r.store.patients, id)

	// Orphaned notes are removed with their patient.
	for noteID, n := range r.store.notes {
		if n.PatientID == id {
			delete(r.store.notes, noteID)
		}
	}

	return nil
}
