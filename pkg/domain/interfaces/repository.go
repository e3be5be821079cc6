package interfaces

// Repository defines the interface for the backend notes/patients service
type Repository interface {
	Note() NoteRepository
	Patient() PatientRepository
	Close() error
}
