package engine

import "fmt"

// Op names an engine operation for errors and logs.
type Op string

// Engine operations.
const (
	OpLookupBatch Op = "lookup_batch"
	OpExportBatch Op = "export_batch"
	OpLookup      Op = "lookup"
	OpHealth      Op = "health"
)

// ErrUnavailable indicates the engine could not be reached or answered with a
// non-success status. StatusCode is zero for transport failures.
type ErrUnavailable struct {
	Op         Op
	StatusCode int
	Cause      error
}

func (e *ErrUnavailable) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("engine %s: status %d: %v", e.Op, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("engine %s unavailable: %v", e.Op, e.Cause)
}

func (e *ErrUnavailable) Unwrap() error { return e.Cause }

// ErrMalformed indicates the engine answered successfully but the body could
// not be decoded.
type ErrMalformed struct {
	Op    Op
	Cause error
}

func (e *ErrMalformed) Error() string {
	return fmt.Sprintf("engine %s: malformed response: %v", e.Op, e.Cause)
}

func (e *ErrMalformed) Unwrap() error { return e.Cause }
