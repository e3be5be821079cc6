package model

import (
	"time"

	"github.com/helixa-health/scribe/pkg/domain/types"
)

// Note represents a clinical note attached to a patient record
type Note struct {
	ID         types.NoteID
	PatientID  types.PatientID
	Title      string
	Text       string
	Type       types.ConsultationType
	Matter     string
	CreatedAt  time.Time
	LastEdited time.Time
}

// Clone returns a deep copy of the note
func (x *Note) Clone() *Note {
	if x == nil {
		return nil
	}
	copied := *x
	return &copied
}

// NotePage is one page of a paginated note list. TotalCount is the count of
// all notes matching the query, not just this page.
type NotePage struct {
	Notes      []*Note
	TotalCount int
	NextCursor string
}

// Clone returns a deep copy of the page
func (x *NotePage) Clone() *NotePage {
	if x == nil {
		return nil
	}
	copied := &NotePage{
		TotalCount: x.TotalCount,
		NextCursor: x.NextCursor,
		Notes:      make([]*Note, len(x.Notes)),
	}
	for i, n := range x.Notes {
		copied.Notes[i] = n.Clone()
	}
	return copied
}
