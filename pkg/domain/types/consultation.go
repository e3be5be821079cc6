package types

import "fmt"

// ConsultationType describes the kind of clinical encounter a dictation covers
type ConsultationType string

const (
	ConsultationComprehensive ConsultationType = "Comprehensive Examination"
	ConsultationFollowUp      ConsultationType = "Follow-up"
	ConsultationProcedure     ConsultationType = "Procedure"
)

// RecordTarget indicates which record a generated note is attached to
type RecordTarget string

const (
	RecordTargetConsultation RecordTarget = "consultation"
	RecordTargetPatient      RecordTarget = "patient"
)

// IsValid checks if the record target is valid
func (t RecordTarget) IsValid() bool {
	switch t {
	case RecordTargetConsultation, RecordTargetPatient:
		return true
	default:
		return false
	}
}

// String returns the string representation of the record target
func (t RecordTarget) String() string {
	return string(t)
}

// ParseRecordTarget parses a string into a RecordTarget
func ParseRecordTarget(s string) (RecordTarget, error) {
	target := RecordTarget(s)
	if !target.IsValid() {
		return "", fmt.Errorf("invalid record target: %s", s)
	}
	return target, nil
}
