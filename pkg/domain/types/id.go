package types

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

// TempIDPrefix marks IDs assigned optimistically before server confirmation.
// A temp ID never survives reconciliation; the invalidation-triggered refetch
// replaces it with the server-assigned ID.
const TempIDPrefix = "temp-"

// NoteID identifies a clinical note
type NoteID string

// NewNoteID generates a new random NoteID
func NewNoteID() NoteID {
	return NoteID(uuid.New().String())
}

// NewTempNoteID generates a placeholder ID for an optimistic note, derived
// from a millisecond timestamp.
func NewTempNoteID(unixMilli int64) NoteID {
	return NoteID(fmt.Sprintf("%s%d", TempIDPrefix, unixMilli))
}

// IsTemp reports whether the ID is an optimistic placeholder
func (x NoteID) IsTemp() bool {
	return strings.HasPrefix(string(x), TempIDPrefix)
}

// Validate checks if the NoteID is valid
func (x NoteID) Validate() error {
	if x == "" {
		return goerr.New("note ID is empty")
	}
	return nil
}

// String returns the string representation of the NoteID
func (x NoteID) String() string {
	return string(x)
}

// PatientID identifies a patient record
type PatientID string

// NewPatientID generates a new random PatientID
func NewPatientID() PatientID {
	return PatientID(uuid.New().String())
}

// NewTempPatientID generates a placeholder ID for an optimistic patient
func NewTempPatientID(unixMilli int64) PatientID {
	return PatientID(fmt.Sprintf("%s%d", TempIDPrefix, unixMilli))
}

// IsTemp reports whether the ID is an optimistic placeholder
func (x PatientID) IsTemp() bool {
	return strings.HasPrefix(string(x), TempIDPrefix)
}

// Validate checks if the PatientID is valid
func (x PatientID) Validate() error {
	if x == "" {
		return goerr.New("patient ID is empty")
	}
	return nil
}

// String returns the string representation of the PatientID
func (x PatientID) String() string {
	return string(x)
}

// TemplateID identifies a note generation template
type TemplateID string

// Validate checks if the TemplateID is valid
func (x TemplateID) Validate() error {
	if x == "" {
		return goerr.New("template ID is empty")
	}
	return nil
}

// String returns the string representation of the TemplateID
func (x TemplateID) String() string {
	return string(x)
}

// SessionID identifies a recording session
type SessionID string

// NewSessionID generates a new random SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

// String returns the string representation of the SessionID
func (x SessionID) String() string {
	return string(x)
}
