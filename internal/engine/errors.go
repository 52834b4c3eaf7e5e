package engine

import (
	"errors"
	"fmt"
)

// EngineError represents a failure surfaced by the Engine Manager.
//
// Every failure is both recorded in the relevant registry entry (for
// introspection) and returned to the immediate caller - the manager never
// swallows errors silently.
type EngineError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// ConnectionID identifies the affected connection, when relevant.
	ConnectionID string

	// FileKey identifies the affected loaded-file entry, when relevant.
	FileKey string

	// Err is the underlying cause, when one exists.
	Err error
}

// ErrorCode categorizes manager errors.
type ErrorCode string

const (
	// ErrCodeInitFailed indicates the engine module failed to load or
	// instantiate.
	ErrCodeInitFailed ErrorCode = "INIT_FAILED"

	// ErrCodeConnectionNotFound indicates an operation referenced an
	// unknown or already-closed connection id.
	ErrCodeConnectionNotFound ErrorCode = "CONNECTION_NOT_FOUND"

	// ErrCodeFileLoadFailed indicates a fetch or ingestion failure
	// during LoadFile.
	ErrCodeFileLoadFailed ErrorCode = "FILE_LOAD_FAILED"

	// ErrCodeQueryFailed indicates the engine rejected a query; the SQL
	// error is propagated as-is, never interpreted or retried.
	ErrCodeQueryFailed ErrorCode = "QUERY_FAILED"
)

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.ConnectionID != "":
		msg = fmt.Sprintf("%s (connection=%s)", msg, e.ConnectionID)
	case e.FileKey != "":
		msg = fmt.Sprintf("%s (file=%s)", msg, e.FileKey)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// IsInitError reports whether err is an engine initialization failure.
func IsInitError(err error) bool {
	return hasCode(err, ErrCodeInitFailed)
}

// IsConnectionNotFound reports whether err references an unknown connection.
func IsConnectionNotFound(err error) bool {
	return hasCode(err, ErrCodeConnectionNotFound)
}

// IsFileLoadError reports whether err is a file fetch/ingestion failure.
func IsFileLoadError(err error) bool {
	return hasCode(err, ErrCodeFileLoadFailed)
}

// IsQueryError reports whether err is a query execution failure.
func IsQueryError(err error) bool {
	return hasCode(err, ErrCodeQueryFailed)
}

func hasCode(err error, code ErrorCode) bool {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

func newInitError(err error) *EngineError {
	return &EngineError{
		Code:    ErrCodeInitFailed,
		Message: "engine failed to initialize",
		Err:     err,
	}
}

func newConnectionNotFound(connectionID string) *EngineError {
	return &EngineError{
		Code:         ErrCodeConnectionNotFound,
		Message:      "no open connection with that id",
		ConnectionID: connectionID,
	}
}

func newFileLoadError(fileKey string, err error) *EngineError {
	return &EngineError{
		Code:    ErrCodeFileLoadFailed,
		Message: "file load failed",
		FileKey: fileKey,
		Err:     err,
	}
}

func newQueryError(err error) *EngineError {
	return &EngineError{
		Code:    ErrCodeQueryFailed,
		Message: "query execution failed",
		Err:     err,
	}
}
