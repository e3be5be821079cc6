package model

import (
	"time"

	"github.com/helixa-health/scribe/pkg/domain/types"
)

// Patient represents a patient record
type Patient struct {
	ID           types.PatientID
	Name         string
	FirstName    string
	LastName     string
	NoteCount    int
	CreatedAt    time.Time
	LastModified time.Time
}

// Clone returns a deep copy of the patient
func (x *Patient) Clone() *Patient {
	if x == nil {
		return nil
	}
	copied := *x
	return &copied
}

// PatientPage is one page of a paginated patient list
type PatientPage struct {
	Patients   []*Patient
	TotalCount int
	NextCursor string
}

// Clone returns a deep copy of the page
func (x *PatientPage) Clone() *PatientPage {
	if x == nil {
		return nil
	}
	copied := &PatientPage{
		TotalCount: x.TotalCount,
		NextCursor: x.NextCursor,
		Patients:   make([]*Patient, len(x.Patients)),
	}
	for i, p := range x.Patients {
		copied.Patients[i] = p.Clone()
	}
	return copied
}
