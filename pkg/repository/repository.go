// Package repository provides the storage backends for notes and patients.
// Firestore is the production backend; the in-memory backend serves tests and
// offline development.
package repository

import "errors"

// ErrNotFound is returned when a requested entity does not exist. Both
// backends wrap it so callers can use errors.Is without knowing which
// backend is behind the interface.
var ErrNotFound = errors.New("not found")
