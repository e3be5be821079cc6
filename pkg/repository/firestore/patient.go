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

type patientRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

var _ interfaces.PatientRepository = &patientRepository{}

func newPatientRepository(client *firestore.Client) *patientRepository {
	return &patientRepository{client: client}
}

func (r *patientRepository) patientsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_patients"
	}
	return "patients"
}

func (r *patientRepository) countersCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_counters"
	}
	return "counters"
}

// patientDoc is the Firestore document shape for a patient
type patientDoc struct {
	PatientID    string    `firestore:"patientId"`
	Name         string    `firestore:"name"`
	FirstName    string    `firestore:"firstName"`
	LastName     string    `firestore:"lastName"`
	NoteCount    int64     `firestore:"noteCount"`
	CreatedAt    time.Time `firestore:"createdAt"`
	LastModified time.Time `firestore:"lastModified"`
}

func toPatientDoc(p *model.Patient) *patientDoc {
	return &patientDoc{
		PatientID:    p.ID.String(),
		Name:         p.Name,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		NoteCount:    int64(p.NoteCount),
		CreatedAt:    p.CreatedAt,
		LastModified: p.LastModified,
	}
}

func (d *patientDoc) toModel() *model.Patient {
	return &model.Patient{
		ID:           types.PatientID(d.PatientID),
		Name:         d.Name,
		FirstName:    d.FirstName,
		LastName:     d.LastName,
		NoteCount:    int(d.NoteCount),
		CreatedAt:    d.CreatedAt,
		LastModified: d.LastModified,
	}
}

func (r *patientRepository) Create(ctx context.Context, p *model.Patient) (*model.Patient, error) {
	now := time.Now().UTC()
	created := p.Clone()
	created.ID = types.NewPatientID()
	created.NoteCount = 0
	created.CreatedAt = now
	created.LastModified = now
	if created.Name == "" {
		created.Name = strings.TrimSpace(created.FirstName + " " + created.LastName)
	}

	patientRef := r.client.Collection(r.patientsCollection()).Doc(created.ID.String())
	counterRef := r.client.Collection(r.countersCollection()).Doc("patient_counter")

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(counterRef); err != nil {
			if status.Code(err) != codes.NotFound {
				return goerr.Wrap(err, "failed to get patient counter")
			}
			if err := tx.Set(counterRef, map[string]interface{}{"value": int64(0)}); err != nil {
				return goerr.Wrap(err, "failed to initialize patient counter")
			}
		}
		if err := tx.Set(patientRef, toPatientDoc(created)); err != nil {
			return goerr.Wrap(err, "failed to create patient")
		}
		return tx.Update(counterRef, []firestore.Update{
			{Path: "value", Value: firestore.Increment(1)},
		})
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create patient", goerr.V("id", created.ID))
	}

	return created, nil
}

func (r *patientRepository) Get(ctx context.Context, id types.PatientID) (*model.Patient, error) {
	docSnap, err := r.client.Collection(r.patientsCollection()).Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "patient not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get patient", goerr.V("id", id))
	}

	var d patientDoc
	if err := docSnap.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to decode patient", goerr.V("id", id))
	}

	return d.toModel(), nil
}

func (r *patientRepository) List(ctx context.Context, opts ...interfaces.ListOption) (*model.PatientPage, error) {
	cfg := interfaces.BuildListConfig(opts...)
	limit := cfg.Limit()

	sortKey := cfg.SortKey()
	if sortKey == "" {
		sortKey = "lastModified"
	}
	dir := firestore.Desc
	if cfg.Direction() == interfaces.SortAsc {
		dir = firestore.Asc
	}

	query := r.client.Collection(r.patientsCollection()).
		OrderBy(sortKey, dir)

	// Substring search is filtered client-side, so the window cannot be
	// bounded up front; the scan stops once limit+1 matches are seen.
	search := strings.ToLower(cfg.Search())
	if search == "" {
		query = query.Limit(limit + 1)
	}

	if cfg.Cursor() != "" {
		cursorDoc := r.client.Collection(r.patientsCollection()).Doc(cfg.Cursor())
		docSnap, err := cursorDoc.Get(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get cursor document", goerr.V("cursor", cfg.Cursor()))
		}
		query = query.StartAfter(docSnap)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var patients []*model.Patient
	var nextCursor string
	for {
		docSnap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate patients")
		}

		var d patientDoc
		if err := docSnap.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to decode patient", goerr.V("doc_id", docSnap.Ref.ID))
		}

		p := d.toModel()
		if search != "" && !strings.Contains(strings.ToLower(p.Name), search) {
			continue
		}

		// A further match past the page boundary proves a next page exists
		if len(patients) >= limit {
			nextCursor = patients[len(patients)-1].ID.String()
			break
		}
		patients = append(patients, p)
	}

	totalCount := len(patients)
	if search == "" {
		counterSnap, err := r.client.Collection(r.countersCollection()).Doc("patient_counter").Get(ctx)
		if err == nil {
			if v, err := counterSnap.DataAt("value"); err == nil {
				if count, ok := v.(int64); ok {
					totalCount = int(count)
				}
			}
		}
	}

	return &model.PatientPage{
		Patients:   patients,
		TotalCount: totalCount,
		NextCursor: nextCursor,
	}, nil
}

func (r *patientRepository) Update(ctx context.Context, p *model.Patient) (*model.Patient, error) {
	docRef := r.client.Collection(r.patientsCollection()).Doc(p.ID.String())

	docSnap, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "patient not found", goerr.V("id", p.ID))
		}
		return nil, goerr.Wrap(err, "failed to check patient existence", goerr.V("id", p.ID))
	}

	var existing patientDoc
	if err := docSnap.DataTo(&existing); err != nil {
		return nil, goerr.Wrap(err, "failed to decode patient", goerr.V("id", p.ID))
	}

	updated := p.Clone()
	updated.NoteCount = int(existing.NoteCount)
	updated.CreatedAt = existing.CreatedAt
	updated.LastModified = time.Now().UTC()
	if updated.Name == "" {
		updated.Name = strings.TrimSpace(updated.FirstName + " " + updated.LastName)
	}

	if _, err := docRef.Set(ctx, toPatientDoc(updated)); err != nil {
		return nil, goerr.Wrap(err, "failed to update patient", goerr.V("id", p.ID))
	}

	return updated, nil
}

func (r *patientRepository) Delete(ctx context.Context, id types.PatientID) error {
	docRef := r.client.Collection(r.patientsCollection()).Doc(id.String())
	counterRef := r.client.Collection(r.countersCollection()).Doc("patient_counter")

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(docRef); err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "patient not found", goerr.V("id", id))
			}
			return goerr.Wrap(err, "failed to check patient existence")
		}
		counterExists := true
		if _, err := tx.Get(counterRef); err != nil {
			if status.Code(err) != codes.NotFound {
				return goerr.Wrap(err, "failed to get patient counter")
			}
			counterExists = false
		}

		if err := tx.Delete(docRef); err != nil {
			return goerr.Wrap(err, "failed to delete patient")
		}
		if !counterExists {
			return nil
		}
		return tx.Update(counterRef, []firestore.Update{
			{Path: "value", Value: firestore.Increment(-1)},
		})
	})
	if err != nil {
		return goerr.Wrap(err, "failed to delete patient", goerr.V("id", id))
	}

	return nil
}
