package odm

import (
	"errors"
	"fmt"
)

var (
	// ErrUnbound is returned by the self-service methods of a Base that was
	// never produced by a Collection.
	ErrUnbound = errors.New("odm: document is not bound to a collection")
	// ErrNoID is returned when an operation needs an _id the document lacks.
	ErrNoID = errors.New("odm: document has no _id")
	// ErrUnknownModel is returned by Registry lookups for unregistered names.
	ErrUnknownModel = errors.New("odm: unknown model")
	// ErrWrongModel is returned when a document of another type is handed to a collection.
	ErrWrongModel = errors.New("odm: document type does not belong to this collection")
)

// ConnectionError reports that the store client could not be constructed.
type ConnectionError struct {
	Database string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("odm: connect to database %q: %v", e.Database, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ConversionError reports a stored record that cannot be turned into, or a
// value that cannot be turned from, the declared model type.
type ConversionError struct {
	Model string
	ID    interface{}
	Err   error
}

func (e *ConversionError) Error() string {
	if e.ID == nil {
		return fmt.Sprintf("odm: convert %s: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("odm: convert %s %v: %v", e.Model, e.ID, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// SyncError reports a conversion failure while refreshing a live document
// from the store. The document it names was left unmodified.
type SyncError struct {
	Model string
	ID    interface{}
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("odm: sync %s %v: %v", e.Model, e.ID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
