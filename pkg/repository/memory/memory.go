package memory

import (
	"sync"

	"github.com/helixa-health/scribe/pkg/domain/interfaces"
	"github.com/helixa-health/scribe/pkg/domain/model"
	"github.com/helixa-health/scribe/pkg/domain/types"
	"github.com/helixa-health/scribe/pkg/repository"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = repository.ErrNotFound

// store is shared between the note and patient repositories so note creation
// can keep patient note counts in lockstep, mirroring the Firestore
// transactional behavior.
type store struct {
	mu       sync.RWMutex
	notes    map[types.NoteID]*model.Note
	patients map[types.PatientID]*model.Patient
}

type Memory struct {
	store   *store
	note    *noteRepository
	patient *patientRepository
}

var _ interfaces.Repository = &Memory{}

// New creates an in-memory repository, used for development and tests
func New() *Memory {
	s := &store{
		notes:    make(map[types.NoteID]*model.Note),
		patients: make(map[types.PatientID]*model.Patient),
	}
	return &Memory{
		store:   s,
		note:    &noteRepository{store: s},
		patient: &patientRepository{store: s},
	}
}

func (m *Memory) Note() interfaces.NoteRepository {
	return m.note
}

func (m *Memory) Patient() interfaces.PatientRepository {
	return m.patient
}

func (m *Memory) Close() error {
	return nil
}
