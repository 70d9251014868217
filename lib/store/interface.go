package store

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the interface of a record store with optimistic concurrency control.
// Every record carries an opaque ETag that changes with each write. Writes and deletes
// only succeed if the caller presents the current ETag of the record.
// All methods return a *Error (nil on success).
type IStore interface {
	// ReadState returns the value and ETag of a record. The boolean return value indicates
	// whether the record exists.
	ReadState(key string) (value []byte, etag string, found bool, err error)
	// WriteState stores value if etag is the current ETag of the record and returns the new ETag.
	// An empty etag means the record must not exist yet. If the ETag does not match, an error
	// with code RetCETagMismatch is returned.
	WriteState(key string, value []byte, etag string) (newETag string, err error)
	// ClearState deletes the record if etag is its current ETag. Deleting a record that does not
	// exist succeeds if etag is empty.
	ClearState(key string, etag string) (err error)
	// GetInfo returns metadata about the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetInfo() (info Info, err error)
}

// Info contains metadata about a store
type Info struct {
	// Type is the name of the implementation (e.g. "lstore")
	Type string `json:"type"`
	// Records is the number of stored records
	Records uint64 `json:"records"`
	// Bytes is the total size of all stored values
	Bytes uint64 `json:"bytes"`
	// LastETag is the most recently issued ETag
	LastETag string `json:"last_etag"`
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// NewError creates a new store error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// CodeOf returns the return code of err. Errors that are not of type *Error are
// internal errors.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var storeErr *Error
	if errors.As(err, &storeErr) {
		return storeErr.Code
	}
	return RetCInternalError
}

// IsETagMismatch returns whether err reports a mismatching ETag.
func IsETagMismatch(err error) bool {
	return CodeOf(err) == RetCETagMismatch
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the store.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCETagMismatch                        // 4: The presented ETag is not the current ETag of the record.
	RetCNotFound                            // 5: The requested store or record does not exist.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCETagMismatch:
		return "ETagMismatch"
	case RetCNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}
