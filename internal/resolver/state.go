package resolver

import (
	"github.com/sydlexius/partsub/internal/export"
	"github.com/sydlexius/partsub/internal/part"
)

// Phase is where the controller is in the request lifecycle.
type Phase int

// Lifecycle phases.
const (
	Idle Phase = iota
	InFlight
	Settled
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case InFlight:
		return "in_flight"
	case Settled:
		return "settled"
	default:
		return "unknown"
	}
}

// Kind is the operation that owns the current lifecycle.
type Kind int

// Operation kinds.
const (
	KindNone Kind = iota
	KindLookup
	KindBatch
	KindExport
)

func (k Kind) String() string {
	switch k {
	case KindLookup:
		return "lookup"
	case KindBatch:
		return "batch"
	case KindExport:
		return "export"
	default:
		return "none"
	}
}

// User-facing messages for settled errors. Causes are logged, never shown.
const (
	MsgNoResults        = "no results found"
	MsgConnectionFailed = "connection failed"
	MsgNothingToExport  = "nothing to export"
	MsgExportFailed     = "export failed"
	MsgTimeout          = "timeout"
)

// Snapshot is a copy of the controller state at one point in time.
type Snapshot struct {
	Phase Phase
	Kind  Kind
	// Result is the displayed result set; nil when nothing is shown.
	Result *part.BatchResult
	// Err is the user-facing message of a failed operation.
	Err string
	// LastExport describes the most recent delivered export.
	LastExport *export.Receipt
	// Seq is the token of the latest issued operation.
	Seq uint64
	// Discarded is set when the returned operation was superseded; the
	// other fields then describe the newer operation's state.
	Discarded bool
}

// Loading reports whether an operation is outstanding. Triggers for new
// operations should be disabled while it is true.
func (s Snapshot) Loading() bool { return s.Phase == InFlight }

// Failed reports whether the latest operation settled with an error.
func (s Snapshot) Failed() bool { return s.Phase == Settled && s.Err != "" }

// Groups returns the number of result groups on display.
func (s Snapshot) Groups() int { return s.Result.Len() }
