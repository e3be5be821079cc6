package interfaces

import (
	"context"

	"github.com/helixa-health/scribe/pkg/domain/model"
	"github.com/helixa-health/scribe/pkg/domain/types"
)

// NoteRepository defines the interface for Note data access
type NoteRepository interface {
	// Create creates a new note with a server-assigned ID
	Create(ctx context.Context, n *model.Note) (*model.Note, error)

	// Get retrieves a note by ID
	Get(ctx context.Context, id types.NoteID) (*model.Note, error)

	// List retrieves one page of a patient's notes
	List(ctx context.Context, patientID types.PatientID, opts ...ListOption) (*model.NotePage, error)

	// Update updates an existing note and refreshes its LastEdited timestamp
	Update(ctx context.Context, n *model.Note) (*model.Note, error)

	// Delete deletes a note by ID
	Delete(ctx context.Context, id types.NoteID) error
}

// PatientRepository defines the interface for Patient data access
type PatientRepository interface {
	// Create creates a new patient with a server-assigned ID
	Create(ctx context.Context, p *model.Patient) (*model.Patient, error)

	// Get retrieves a patient by ID
	Get(ctx context.Context, id types.PatientID) (*model.Patient, error)

	// List retrieves one page of patients
	List(ctx context.Context, opts ...ListOption) (*model.PatientPage, error)

	// Update updates an existing patient and refreshes its LastModified timestamp
	Update(ctx context.Context, p *model.Patient) (*model.Patient, error)

	// Delete deletes a patient by ID
	Delete(ctx context.Context, id types.PatientID) error
}
