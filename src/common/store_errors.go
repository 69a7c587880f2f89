package common

import (
	"errors"
	"fmt"
)

// StoreErrType enumerates the ways a directory operation can fail.
type StoreErrType uint32

const (
	// KeyNotFound means the requested record does not exist.
	KeyNotFound StoreErrType = iota
	// PartialMove means a membership move could not be applied as a whole.
	// The directory is left as it was before the call.
	PartialMove
	// Empty means a required identifier was blank.
	Empty
	// Closed means the directory has already been closed.
	Closed
)

// StoreErr is the DirectoryError of the coordination protocol.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
	cause    error
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// WrapStoreErr is NewStoreErr with an underlying cause.
func WrapStoreErr(dataType string, errType StoreErrType, key string, cause error) StoreErr {
	e := NewStoreErr(dataType, errType, key)
	e.cause = cause
	return e
}

// Error ...
func (e StoreErr) Error() string {
	m := ""
	switch e.errType {
	case KeyNotFound:
		m = "Not Found"
	case PartialMove:
		m = "Partial Move"
	case Empty:
		m = "Empty"
	case Closed:
		m = "Closed"
	}

	if e.cause != nil {
		return fmt.Sprintf("%s, %s, %s: %v", e.dataType, e.key, m, e.cause)
	}
	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, m)
}

// Unwrap returns the underlying cause, if any.
func (e StoreErr) Unwrap() error {
	return e.cause
}

// IsStore checks that an error is (or wraps) a StoreErr and that its code
// matches the provided StoreErr code.
func IsStore(err error, t StoreErrType) bool {
	var storeErr StoreErr
	return errors.As(err, &storeErr) && storeErr.errType == t
}
