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

// NoteUseCase serves note reads cache-first and applies mutations
// optimistically: the cached list is updated before the backend confirms,
// rolled back verbatim if it rejects, and invalidated either way so the next
// read reconciles with server truth.
type NoteUseCase struct {
	repo  interfaces.Repository
	cache *cache.Store
	clock func() time.Time

	mu        sync.Mutex
	refetches map[string]*refetchHandle
}

type refetchHandle struct {
	cancel context.CancelFunc
}

func NewNoteUseCase(repo interfaces.Repository, store *cache.Store, clock func() time.Time) *NoteUseCase {
	return &NoteUseCase{
		repo:      repo,
		cache:     store,
		clock:     clock,
		refetches: make(map[string]*refetchHandle),
	}
}

// List returns one page of a patient's notes, from cache when the first page
// is fresh. Cursor and search queries always go to the backend.
func (uc *NoteUseCase) List(ctx context.Context, patientID types.PatientID, opts ...interfaces.ListOption) (*model.NotePage, error) {
	if err := patientID.Validate(); err != nil {
		return nil, err
	}

	cfg := interfaces.BuildListConfig(opts...)
	cacheable := cfg.Cursor() == "" && cfg.Search() == ""
	key := cache.NoteListKey(patientID.String())

	if cacheable && uc.cache.Fresh(key) {
		if v, ok := uc.cache.Get(key); ok {
			return v.(*model.NotePage), nil
		}
	}

	ctx, done := uc.trackRefetch(ctx, key)
	defer done()

	page, err := uc.repo.Note().List(ctx, patientID, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list notes", goerr.V("patientID", patientID))
	}
	if cacheable && ctx.Err() == nil {
		uc.cache.Set(key, page)
	}
	return page, nil
}

// Get returns a single note by ID
func (uc *NoteUseCase) Get(ctx context.Context, id types.NoteID) (*model.Note, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	note, err := uc.repo.Note().Get(ctx, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get note", goerr.V("noteID", id))
	}
	return note, nil
}

// Create persists a new note. The cached note list shows a temp-ID
// placeholder immediately; the placeholder never outlives the settle because
// the invalidation-triggered refetch replaces it with server truth.
func (uc *NoteUseCase) Create(ctx context.Context, n *model.Note) (*model.Note, error) {
	if err := n.PatientID.Validate(); err != nil {
		return nil, err
	}

	noteKey := cache.NoteListKey(n.PatientID.String())
	patientKey := cache.PatientListKey()
	uc.cancelRefetch(noteKey)

	noteSnap := uc.cache.Snapshot(noteKey)
	patientSnap := uc.cache.Snapshot(patientKey)

	now := uc.clock()
	optimistic := n.Clone()
	optimistic.ID = types.NewTempNoteID(now.UnixMilli())
	optimistic.CreatedAt = now
	optimistic.LastEdited = now

	mutateNotePage(uc.cache, noteKey, func(page *model.NotePage) {
		page.Notes = append([]*model.Note{optimistic}, page.Notes...)
		page.TotalCount++
	})
	mutatePatientPage(uc.cache, patientKey, func(page *model.PatientPage) {
		for _, p := range page.Patients {
			if p.ID == n.PatientID {
				p.NoteCount++
			}
		}
	})

	created, err := uc.repo.Note().Create(ctx, n)
	uc.cache.Invalidate(noteKey)
	uc.cache.Invalidate(patientKey)
	if err != nil {
		uc.cache.Restore(noteSnap)
		uc.cache.Restore(patientSnap)
		return nil, goerr.Wrap(err, "failed to create note", goerr.V("patientID", n.PatientID))
	}
	return created, nil
}

// Update persists changes to an existing note, reflecting them in the cached
// list immediately
func (uc *NoteUseCase) Update(ctx context.Context, n *model.Note) (*model.Note, error) {
	if err := n.ID.Validate(); err != nil {
		return nil, err
	}
	if err := n.PatientID.Validate(); err != nil {
		return nil, err
	}

	noteKey := cache.NoteListKey(n.PatientID.String())
	uc.cancelRefetch(noteKey)
	snap := uc.cache.Snapshot(noteKey)

	now := uc.clock()
	mutateNotePage(uc.cache, noteKey, func(page *model.NotePage) {
		for i, existing := range page.Notes {
			if existing.ID == n.ID {
				updated := n.Clone()
				updated.CreatedAt = existing.CreatedAt
				updated.LastEdited = now
				page.Notes[i] = updated
			}
		}
	})

	updated, err := uc.repo.Note().Update(ctx, n)
	uc.cache.Invalidate(noteKey)
	if err != nil {
		uc.cache.Restore(snap)
		return nil, goerr.Wrap(err, "failed to update note", goerr.V("noteID", n.ID))
	}
	return updated, nil
}

// Delete removes a note, splicing it out of the cached list immediately
func (uc *NoteUseCase) Delete(ctx context.Context, patientID types.PatientID, id types.NoteID) error {
	if err := patientID.Validate(); err != nil {
		return err
	}
	if err := id.Validate(); err != nil {
		return err
	}

	noteKey := cache.NoteListKey(patientID.String())
	patientKey := cache.PatientListKey()
	uc.cancelRefetch(noteKey)

	noteSnap := uc.cache.Snapshot(noteKey)
	patientSnap := uc.cache.Snapshot(patientKey)

	mutateNotePage(uc.cache, noteKey, func(page *model.NotePage) {
		kept := page.Notes[:0]
		for _, existing := range page.Notes {
			if existing.ID == id {
				page.TotalCount--
				continue
			}
			kept = append(kept, existing)
		}
		page.Notes = kept
	})
	mutatePatientPage(uc.cache, patientKey, func(page *model.PatientPage) {
		for _, p := range page.Patients {
			if p.ID == patientID && p.NoteCount > 0 {
				p.NoteCount--
			}
		}
	})

	err := uc.repo.Note().Delete(ctx, id)
	uc.cache.Invalidate(noteKey)
	uc.cache.Invalidate(patientKey)
	if err != nil {
		uc.cache.Restore(noteSnap)
		uc.cache.Restore(patientSnap)
		return goerr.Wrap(err, "failed to delete note", goerr.V("noteID", id))
	}
	return nil
}

// trackRefetch registers a cancellable fetch for the key so a later mutation
// can abort it before writing optimistically. A newer fetch supersedes the
// previous one for the same key.
func (uc *NoteUseCase) trackRefetch(ctx context.Context, key cache.Key) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	handle := &refetchHandle{cancel: cancel}

	uc.mu.Lock()
	if prev, ok := uc.refetches[key.String()]; ok {
		prev.cancel()
	}
	uc.refetches[key.String()] = handle
	uc.mu.Unlock()

	return ctx, func() {
		uc.mu.Lock()
		defer uc.mu.Unlock()
		cancel()
		if uc.refetches[key.String()] == handle {
			delete(uc.refetches, key.String())
		}
	}
}

// cancelRefetch aborts the in-flight fetch for the key, if any. A fetch
// racing a mutation must not overwrite the optimistic state with stale
// server data.
func (uc *NoteUseCase) cancelRefetch(key cache.Key) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	if handle, ok := uc.refetches[key.String()]; ok {
		handle.cancel()
		delete(uc.refetches, key.String())
	}
}

// mutateNotePage applies an optimistic change by replacing the cached page
// with a mutated clone. The stored value is never mutated in place; rollback
// depends on that.
func mutateNotePage(store *cache.Store, key cache.Key, mutate func(*model.NotePage)) {
	v, ok := store.Get(key)
	if !ok {
		return
	}
	page := v.(*model.NotePage).Clone()
	mutate(page)
	store.Set(key, page)
}

func mutatePatientPage(store *cache.Store, key cache.Key, mutate func(*model.PatientPage)) {
	v, ok := store.Get(key)
	if !ok {
		return
	}
	page := v.(*model.PatientPage).Clone()
	mutate(page)
	store.Set(key, page)
}
