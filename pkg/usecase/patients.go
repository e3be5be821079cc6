package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/helixa-health/scribe/pkg/domain/interfaces"
	"github.com/helixa-health/scribe/pkg/domain/model"
	"github.com/helixa-health/scribe/pkg/domain/types"
	"github.com/helixa-health/scribe/pkg/service/cache"
)

// PatientUseCase mirrors NoteUseCase for the patient directory: cache-first
// reads, optimistic mutations with snapshot rollback.
type PatientUseCase struct {
	repo  interfaces.Repository
	cache *cache.Store
	clock func() time.Time

	mu      sync.Mutex
	refetch *refetchHandle
}

func NewPatientUseCase(repo interfaces.Repository, store *cache.Store, clock func() time.Time) *PatientUseCase {
	return &PatientUseCase{
		repo:  repo,
		cache: store,
		clock: clock,
	}
}

// List returns one page of patients, from cache when the first page is fresh
func (uc *PatientUseCase) List(ctx context.Context, opts ...interfaces.ListOption) (*model.PatientPage, error) {
	cfg := interfaces.BuildListConfig(opts...)
	cacheable := cfg.Cursor() == "" && cfg.Search() == ""
	key := cache.PatientListKey()

	if cacheable && uc.cache.Fresh(key) {
		if v, ok := uc.cache.Get(key); ok {
			return v.(*model.PatientPage), nil
		}
	}

	ctx, done := uc.trackRefetch(ctx)
	defer done()

	page, err := uc.repo.Patient().List(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list patients")
	}
	if cacheable && ctx.Err() == nil {
		uc.cache.Set(key, page)
	}
	return page, nil
}

// Get returns a single patient by ID
func (uc *PatientUseCase) Get(ctx context.Context, id types.PatientID) (*model.Patient, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	patient, err := uc.repo.Patient().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get patient", goerr.V("patientID", id))
	}
	return patient, nil
}

// Create persists a new patient with an immediate temp-ID placeholder in the
// cached directory
func (uc *PatientUseCase) Create(ctx context.Context, p *model.Patient) (*model.Patient, error) {
	if p.Name == "" && p.FirstName == "" && p.LastName == "" {
		return nil, goerr.New("patient name is required")
	}

	key := cache.PatientListKey()
	uc.cancelRefetch()
	snap := uc.cache.Snapshot(key)

	now := uc.clock()
	optimistic := p.Clone()
	optimistic.ID = types.NewTempPatientID(now.UnixMilli())
	optimistic.CreatedAt = now
	optimistic.LastModified = now
	if optimistic.Name == "" {
		optimistic.Name = joinName(p.FirstName, p.LastName)
	}

	mutatePatientPage(uc.cache, key, func(page *model.PatientPage) {
		page.Patients = append([]*model.Patient{optimistic}, page.Patients...)
		page.TotalCount++
	})

	created, err := uc.repo.Patient().Create(ctx, p)
	uc.cache.Invalidate(key)
	if err != nil {
		uc.cache.Restore(snap)
		return nil, goerr.Wrap(err, "failed to create patient")
	}
	return created, nil
}

// Update persists changes to a patient, reflecting them in the cached
// directory immediately
func (uc *PatientUseCase) Update(ctx context.Context, p *model.Patient) (*model.Patient, error) {
	if err := p.ID.Validate(); err != nil {
		return nil, err
	}

	key := cache.PatientListKey()
	uc.cancelRefetch()
	snap := uc.cache.Snapshot(key)

	now := uc.clock()
	mutatePatientPage(uc.cache, key, func(page *model.PatientPage) {
		for i, existing := range page.Patients {
			if existing.ID == p.ID {
				updated := p.Clone()
				updated.NoteCount = existing.NoteCount
				updated.CreatedAt = existing.CreatedAt
				updated.LastModified = now
				if updated.Name == "" {
					updated.Name = joinName(updated.FirstName, updated.LastName)
				}
				page.Patients[i] = updated
			}
		}
	})

	updated, err := uc.repo.Patient().Update(ctx, p)
	uc.cache.Invalidate(key)
	if err != nil {
		uc.cache.Restore(snap)
		return nil, goerr.Wrap(err, "failed to update patient", goerr.V("patientID", p.ID))
	}
	return updated, nil
}

// Delete removes a patient and drops the patient's cached note list
func (uc *PatientUseCase) Delete(ctx context.Context, id types.PatientID) error {
	if err := id.Validate(); err != nil {
		return err
	}

	patientKey := cache.PatientListKey()
	noteKey := cache.NoteListKey(id.String())
	uc.cancelRefetch()

	patientSnap := uc.cache.Snapshot(patientKey)
	noteSnap := uc.cache.Snapshot(noteKey)

	mutatePatientPage(uc.cache, patientKey, func(page *model.PatientPage) {
		kept := page.Patients[:0]
		for _, existing := range page.Patients {
			if existing.ID == id {
				page.TotalCount--
				continue
			}
			kept = append(kept, existing)
		}
		page.Patients = kept
	})
	uc.cache.Delete(noteKey)

	err := uc.repo.Patient().Delete(ctx, id)
	uc.cache.Invalidate(patientKey)
	uc.cache.Invalidate(noteKey)
	if err != nil {
		uc.cache.Restore(patientSnap)
		uc.cache.Restore(noteSnap)
		return goerr.Wrap(err, "failed to delete patient", goerr.V("patientID", id))
	}
	return nil
}

func (uc *PatientUseCase) trackRefetch(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	handle := &refetchHandle{cancel: cancel}

	uc.mu.Lock()
	if uc.refetch != nil {
		uc.refetch.cancel()
	}
	uc.refetch = handle
	uc.mu.Unlock()

	return ctx, func() {
		uc.mu.Lock()
		defer uc.mu.Unlock()
		cancel()
		if uc.refetch == handle {
			uc.refetch = nil
		}
	}
}

func (uc *PatientUseCase) cancelRefetch() {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if uc.refetch != nil {
		uc.refetch.cancel()
		uc.refetch = nil
	}
}

func joinName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}
