package firestore

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/helixa-health/scribe/pkg/domain/interfaces"
	"github.com/helixa-health/scribe/pkg/domain/model"
	"github.com/helixa-health/scribe/pkg/domain/types"
)

type noteRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.NoteRepository = &noteRepository{}

func newNoteRepository(client *firestore.Client) *noteRepository {
	return &noteRepository{client: client}
}

func (r *noteRepository) notesCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_notes"
	}
	return "notes"
}

func (r *noteRepository) patientsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_patients"
	}
	return "patients"
}

// noteDoc is the Firestore document shape for a note
type noteDoc struct {
	ID         string    `firestore:"id"`
	PatientID  string    `firestore:"patientId"`
	Title      string    `firestore:"title"`
	Text       string    `firestore:"text"`
	Type       string    `firestore:"type"`
	Matter     string    `firestore:"matter,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt"`
	LastEdited time.Time `firestore:"lastEdited"`
}

func toNoteDoc(n *model.Note) *noteDoc {
	return &noteDoc{
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

func (d *noteDoc) toModel() *model.Note {
	return &model.Note{
		ID:         types.NoteID(d.ID),
		PatientID:  types.PatientID(d.PatientID),
		Title:      d.Title,
		Text:       d.Text,
		Type:       types.ConsultationType(d.Type),
		Matter:     d.Matter,
		CreatedAt:  d.CreatedAt,
		LastEdited: d.LastEdited,
	}
}

// Create stores a new note and increments the owning patient's note count in
// the same transaction so list counts never drift from document counts.
func (r *noteRepository) Create(ctx context.Context, n *model.Note) (*model.Note, error) {
	if err := n.PatientID.Validate(); err != nil {
		return nil, goerr.Wrap(err, "note requires a patient ID")
	}

	now := time.Now().UTC()
	created := n.Clone()
	created.ID = types.NewNoteID()
	created.CreatedAt = now
	created.LastEdited = now

	noteRef := r.client.Collection(r.notesCollection()).Doc(created.ID.String())
	patientRef := r.client.Collection(r.patientsCollection()).Doc(created.PatientID.String())

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(patientRef); err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "patient not found", goerr.V("patientID", created.PatientID))
			}
			return goerr.Wrap(err, "failed to get patient")
		}

		if err := tx.Set(noteRef, toNoteDoc(created)); err != nil {
			return goerr.Wrap(err, "failed to create note")
		}
		return tx.Update(patientRef, []firestore.Update{
			{Path: "noteCount", Value: firestore.Increment(1)},
			{Path: "lastModified", Value: now},
		})
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create note", goerr.V("patientID", created.PatientID))
	}

	return created, nil
}

func (r *noteRepository) Get(ctx context.Context, id types.NoteID) (*model.Note, error) {
	docSnap, err := r.client.Collection(r.notesCollection()).Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "note not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get note", goerr.V("id", id))
	}

	var d noteDoc
	if err := docSnap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to decode note", goerr.V("id", id))
	}

	return d.toModel(), nil
}

func (r *noteRepository) List(ctx context.Context, patientID types.PatientID, opts ...interfaces.ListOption) (*model.NotePage, error) {
	cfg := interfaces.BuildListConfig(opts...)
	limit := cfg.Limit()

	sortKey := cfg.SortKey()
	if sortKey == "" {
		sortKey = "createdAt"
	}
	dir := firestore.Desc
	if cfg.Direction() == interfaces.SortAsc {
		dir = firestore.Asc
	}

	query := r.client.Collection(r.notesCollection()).
		Where("patientId", "==", patientID.String()).
		OrderBy(sortKey, dir)

	// Substring search is filtered client-side, so the window cannot be
	// bounded up front; the scan stops once limit+1 matches are seen.
	search := strings.ToLower(cfg.Search())
	if search == "" {
		query = query.Limit(limit + 1)
	}

	if cfg.Cursor() != "" {
		cursorDoc := r.client.Collection(r.notesCollection()).Doc(cfg.Cursor())
		docSnap, err := cursorDoc.Get(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get cursor document", goerr.V("cursor", cfg.Cursor()))
		}
		query = query.StartAfter(docSnap)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var notes []*model.Note
	var nextCursor string
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate notes", goerr.V("patientID", patientID))
		}

		var d noteDoc
		if err := docSnap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to decode note", goerr.V("doc_id", docSnap.Ref.ID))
		}

		n := d.toModel()
		if search != "" &&
			!strings.Contains(strings.ToLower(n.Title), search) &&
			!strings.Contains(strings.ToLower(n.Text), search) {
			continue
		}

		// A further match past the page boundary proves a next page exists
		if len(notes) >= limit {
			nextCursor = notes[len(notes)-1].ID.String()
			break
		}
		notes = append(notes, n)
	}

	// The patient's maintained note count is the total for the query;
	// search-filtered queries fall back to the page length.
	totalCount := len(notes)
	if search == "" {
		patientSnap, err := r.client.Collection(r.patientsCollection()).Doc(patientID.String()).Get(ctx)
		if err == nil {
			if count, err := patientSnap.DataAt("noteCount"); err == nil {
				if v, ok := count.(int64); ok {
					totalCount = int(v)
				}
			}
		}
	}

	return &model.NotePage{
		Notes:      notes,
		TotalCount: totalCount,
		NextCursor: nextCursor,
	}, nil
}

func (r *noteRepository) Update(ctx context.Context, n *model.Note) (*model.Note, error) {
	docRef := r.client.Collection(r.notesCollection()).Doc(n.ID.String())

	docSnap, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "note not found", goerr.V("id", n.ID))
		}
		return nil, goerr.Wrap(err, "failed to check note existence", goerr.V("id", n.ID))
	}

	var existing noteDoc
	if err := docSnap.DataTo(&existing); err != nil {
		return nil, goerr.Wrap(err, "failed to decode note", goerr.V("id", n.ID))
	}

	updated := n.Clone()
	updated.PatientID = types.PatientID(existing.PatientID)
	updated.CreatedAt = existing.CreatedAt
	updated.LastEdited = time.Now().UTC()

	if _, err := docRef.Set(ctx, toNoteDoc(updated)); err != nil {
		return nil, goerr.Wrap(err, "failed to update note", goerr.V("id", n.ID))
	}

	return updated, nil
}

// Delete removes the note and decrements the owning patient's note count.
func (r *noteRepository) Delete(ctx context.Context, id types.NoteID) error {
	noteRef := r.client.Collection(r.notesCollection()).Doc(id.String())

	docSnap, err := noteRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "note not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to check note existence", goerr.V("id", id))
	}

	var d noteDoc
	if err := docSnap.DataTo(&d); err != nil {
		return goerr.Wrap(err, "failed to decode note", goerr.V("id", id))
	}

	patientRef := r.client.Collection(r.patientsCollection()).Doc(d.PatientID)

	err = r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Reads must precede writes within a transaction.
		patientExists := true
		if _, err := tx.Get(patientRef); err != nil {
			if status.Code(err) != codes.NotFound {
				return goerr.Wrap(err, "failed to get patient")
			}
			patientExists = false
		}

		if err := tx.Delete(noteRef); err != nil {
			return goerr.Wrap(err, "failed to delete note")
		}
		if !patientExists {
			return nil
		}
		return tx.Update(patientRef, []firestore.Update{
			{Path: "noteCount", Value: firestore.Increment(-1)},
			{Path: "lastModified", Value: time.Now().UTC()},
		})
	})
	if err != nil {
		return goerr.Wrap(err, "failed to delete note", goerr.V("id", id))
	}

	return nil
}
