package entities

import (
	"errors"
	"fmt"
)

var ErrStoreEntityNotFound = errors.New("store resource not found")

// NetworkError is a transport level failure: connection error, timeout or a body that is not JSON.
// It is transient, callers retry it after a fixed delay.
type NetworkError struct {
	Path string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling [%s]: %v", e.Path, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// MissingDataError means the requested slot or state is not available (yet).
type MissingDataError struct {
	Path    string
	Message string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("data not available for [%s]: %s", e.Path, e.Message)
}

// RemoteAPIError is returned when the node understood the request but refused it.
type RemoteAPIError struct {
	Path    string
	Code    int
	Message string
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("remote api error [%d] for [%s]: %s", e.Code, e.Path, e.Message)
}

// SchemaValidationError carries the offending field path and the raw body for diagnostics.
type SchemaValidationError struct {
	Path   string
	Reason string
	Body   []byte
}

func (e *SchemaValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("schema validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("schema validation failed at [%s]: %s", e.Path, e.Reason)
}

// ErrorKind names the taxonomy class of an error. Used for logging and metric labels.
func ErrorKind(err error) string {
	var (
		networkErr *NetworkError
		missingErr *MissingDataError
		remoteErr  *RemoteAPIError
		schemaErr  *SchemaValidationError
	)
	switch {
	case errors.As(err, &networkErr):
		return "network"
	case errors.As(err, &missingErr):
		return "missing_data"
	case errors.As(err, &remoteErr):
		return "remote_api"
	case errors.As(err, &schemaErr):
		return "schema"
	default:
		return "unknown"
	}
}

// IsSkippable reports whether err belongs to the fetch error taxonomy. Such errors never stop a pipeline.
func IsSkippable(err error) bool {
	return ErrorKind(err) != "unknown"
}
