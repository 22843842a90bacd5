package apiclient

import (
	"errors"
	"fmt"
)

// ErrSuperseded is returned by Panel actions whose response arrived after
// a newer request of the same region was issued. The response is dropped.
var ErrSuperseded = errors.New("superseded by a newer request")

const opConfigure = "configure"

// TransportError is a request that never produced an HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e.Op == opConfigure {
		return "configuration failed: " + e.Err.Error()
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is an error reported by the server in the response body.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string { return e.Message }

// DecodeError is a response body that does not have the expected shape.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
