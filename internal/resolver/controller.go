// Package resolver owns the batch resolution workflow: it normalizes input,
// issues one engine operation per user action, and reconciles the outcome
// into a single presentation state.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sydlexius/partsub/internal/disclosure"
	"github.com/sydlexius/partsub/internal/engine"
	"github.com/sydlexius/partsub/internal/event"
	"github.com/sydlexius/partsub/internal/export"
	"github.com/sydlexius/partsub/internal/metrics"
	"github.com/sydlexius/partsub/internal/mpn"
	"github.com/sydlexius/partsub/internal/part"
)

// Engine is the resolution engine as seen by the controller.
type Engine interface {
	LookupBatch(ctx context.Context, req engine.BatchRequest) (*part.BatchResult, error)
	ExportBatch(ctx context.Context, req engine.BatchRequest) (*engine.Export, error)
	Lookup(ctx context.Context, brand part.Brand, mpn string) (*part.MpnResult, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithTimeout bounds every engine operation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) { c.timeout = d }
}

// WithClock overrides the time source used for export file names.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithEventBus publishes settle, export and discard events to bus.
func WithEventBus(bus *event.Bus) Option {
	return func(c *Controller) { c.bus = bus }
}

// Controller is the state container for lookups and exports. Operations
// block until settled and are safe to call from several goroutines; when they
// overlap, only the most recently issued one is applied.
type Controller struct {
	engine     Engine
	sink       export.Sink
	logger     *slog.Logger
	bus        *event.Bus
	timeout    time.Duration
	now        func() time.Time
	disclosure *disclosure.State

	mu         sync.Mutex
	seq        uint64
	phase      Phase
	kind       Kind
	result     *part.BatchResult
	errMsg     string
	lastExport *export.Receipt
}

// New creates a Controller. sink may be nil, in which case every export fails.
func New(eng Engine, sink export.Sink, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		engine:     eng,
		sink:       sink,
		logger:     logger.With(slog.String("component", "resolver")),
		now:        time.Now,
		disclosure: disclosure.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		Phase:  c.phase,
		Kind:   c.kind,
		Result: c.result.Clone(),
		Err:    c.errMsg,
		Seq:    c.seq,
	}
	if c.lastExport != nil {
		r := *c.lastExport
		s.LastExport = &r
	}
	return s
}

// Busy reports whether an operation is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == InFlight
}

// SubmitBatch resolves every MPN in raw. Input that normalizes to nothing
// is ignored without touching state.
func (c *Controller) SubmitBatch(ctx context.Context, brand part.Brand, raw string) Snapshot {
	mpns := mpn.Normalize(raw)
	if len(mpns) == 0 {
		metrics.OperationsTotal.WithLabelValues(KindBatch.String(), metrics.OutcomeNoInput).Inc()
		return c.Snapshot()
	}

	token := c.beginLookup(KindBatch)
	defer metrics.OperationsInFlight.Dec()
	metrics.MPNsSubmitted.Add(float64(len(mpns)))

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	result, err := c.engine.LookupBatch(ctx, engine.BatchRequest{Brand: brand, MPNs: mpns})
	metrics.OperationDuration.WithLabelValues(KindBatch.String()).Observe(time.Since(start).Seconds())

	return c.settleLookup(token, KindBatch, result, err)
}

// Lookup resolves a single MPN through the engine's single-lookup endpoint.
// An undetected series is a normal, displayed result.
func (c *Controller) Lookup(ctx context.Context, brand part.Brand, raw string) Snapshot {
	number := strings.TrimSpace(raw)
	if number == "" {
		metrics.OperationsTotal.WithLabelValues(KindLookup.String(), metrics.OutcomeNoInput).Inc()
		return c.Snapshot()
	}

	token := c.beginLookup(KindLookup)
	defer metrics.OperationsInFlight.Dec()
	metrics.MPNsSubmitted.Inc()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	single, err := c.engine.Lookup(ctx, brand, number)
	metrics.OperationDuration.WithLabelValues(KindLookup.String()).Observe(time.Since(start).Seconds())

	var result *part.BatchResult
	if err == nil && single != nil {
		result = &part.BatchResult{Brand: brand, Total: 1, Results: []part.MpnResult{*single}}
	}
	return c.settleLookup(token, KindLookup, result, err)
}

// ExportBatch requests a spreadsheet for the MPNs in raw and delivers it to
// the sink. It never changes the displayed results or disclosure state.
func (c *Controller) ExportBatch(ctx context.Context, brand part.Brand, raw string) Snapshot {
	mpns := mpn.Normalize(raw)
	if len(mpns) == 0 {
		c.mu.Lock()
		c.seq++
		c.phase = Settled
		c.kind = KindExport
		c.errMsg = MsgNothingToExport
		snap := c.snapshotLocked()
		c.mu.Unlock()
		metrics.OperationsTotal.WithLabelValues(KindExport.String(), metrics.OutcomeNoInput).Inc()
		return snap
	}

	token := c.begin(KindExport)
	defer metrics.OperationsInFlight.Dec()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	payload, err := c.engine.ExportBatch(ctx, engine.BatchRequest{Brand: brand, MPNs: mpns})
	metrics.OperationDuration.WithLabelValues(KindExport.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return c.settleExportFailure(token, err)
	}
	if c.sink == nil {
		return c.settleExportFailure(token, errors.New("no export sink configured"))
	}
	if c.stale(token) {
		return c.discard(token, KindExport)
	}

	name := export.FileName(brand, c.now(), token, payload.ContentType)
	receipt, err := c.sink.Deliver(ctx, name, payload.ContentType, payload.Data)
	if err != nil {
		return c.settleExportFailure(token, err)
	}

	c.mu.Lock()
	if token != c.seq {
		c.mu.Unlock()
		// Already on disk; the newer operation owns the state.
		return c.discard(token, KindExport)
	}
	c.phase = Settled
	c.errMsg = ""
	c.lastExport = &receipt
	snap := c.snapshotLocked()
	c.mu.Unlock()

	metrics.OperationsTotal.WithLabelValues(KindExport.String(), metrics.OutcomeOK).Inc()
	metrics.ExportBytes.Add(float64(receipt.Size))
	c.logger.Info("export delivered",
		slog.Uint64("seq", token),
		slog.String("name", receipt.Name),
		slog.String("location", receipt.Location),
		slog.Int("mpns", len(mpns)))
	c.publish(event.Event{Type: event.ExportDelivered, Seq: token, Data: map[string]any{
		"name":     receipt.Name,
		"location": receipt.Location,
		"size":     receipt.Size,
	}})
	return snap
}

// Reset returns to Idle and forgets results, errors and disclosure state.
// Any operation still in flight is discarded when it completes.
func (c *Controller) Reset() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.phase = Idle
	c.kind = KindNone
	c.result = nil
	c.errMsg = ""
	c.disclosure.Reset()
	return c.snapshotLocked()
}

// Toggle flips the expanded state of result group index.
func (c *Controller) Toggle(index int) {
	c.disclosure.Toggle(index)
}

// IsExpanded reports whether group index is in the expanded set.
func (c *Controller) IsExpanded(index int) bool {
	return c.disclosure.IsExpanded(index)
}

// ShowExpanded reports whether group index should be rendered expanded.
func (c *Controller) ShowExpanded(index int) bool {
	c.mu.Lock()
	n := c.result.Len()
	c.mu.Unlock()
	return c.disclosure.ShowExpanded(index, n)
}

// ShowExpandedIn is ShowExpanded judged against a result set of the given
// size, for rendering a snapshot taken earlier.
func (c *Controller) ShowExpandedIn(index, groups int) bool {
	return c.disclosure.ShowExpanded(index, groups)
}

// Expanded returns the expanded group indices in ascending order.
func (c *Controller) Expanded() []int {
	return c.disclosure.Expanded()
}

// ExpandAll expands every displayed result group.
func (c *Controller) ExpandAll() {
	c.mu.Lock()
	n := c.result.Len()
	c.mu.Unlock()
	c.disclosure.ExpandAll(n)
}

// CollapseAll collapses every result group.
func (c *Controller) CollapseAll() {
	c.disclosure.Reset()
}

// begin issues a new token and moves to InFlight, clearing the error.
func (c *Controller) begin(kind Kind) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.phase = InFlight
	c.kind = kind
	c.errMsg = ""
	metrics.OperationsInFlight.Inc()
	return c.seq
}

// beginLookup is begin for operations that replace the result set.
func (c *Controller) beginLookup(kind Kind) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.phase = InFlight
	c.kind = kind
	c.errMsg = ""
	c.result = nil
	c.disclosure.Reset()
	metrics.OperationsInFlight.Inc()
	return c.seq
}

func (c *Controller) settleLookup(token uint64, kind Kind, result *part.BatchResult, err error) Snapshot {
	c.mu.Lock()
	if token != c.seq {
		c.mu.Unlock()
		return c.discard(token, kind)
	}

	var outcome string
	switch {
	case err != nil:
		var msg string
		msg, outcome = failureMessage(err, MsgConnectionFailed)
		c.errMsg = msg
		c.result = nil
		c.logger.Error("lookup failed",
			slog.Uint64("seq", token),
			slog.String("kind", kind.String()),
			slog.Any("error", err))
	case result.Len() == 0:
		outcome = metrics.OutcomeEmpty
		c.errMsg = MsgNoResults
		c.result = nil
	default:
		outcome = metrics.OutcomeOK
		c.errMsg = ""
		c.result = result.Clone()
		c.disclosure.Seed(result.Len())
		metrics.UndetectedTotal.Add(float64(result.Undetected()))
	}
	c.phase = Settled
	snap := c.snapshotLocked()
	c.mu.Unlock()

	metrics.OperationsTotal.WithLabelValues(kind.String(), outcome).Inc()
	c.logger.Debug("lookup settled",
		slog.Uint64("seq", token),
		slog.String("kind", kind.String()),
		slog.String("outcome", outcome),
		slog.Int("results", snap.Groups()))
	c.publish(event.Event{Type: event.LookupSettled, Seq: token, Data: map[string]any{
		"kind":       kind.String(),
		"results":    snap.Groups(),
		"undetected": snap.Result.Undetected(),
		"error":      snap.Err,
	}})
	return snap
}

func (c *Controller) settleExportFailure(token uint64, err error) Snapshot {
	c.mu.Lock()
	if token != c.seq {
		c.mu.Unlock()
		return c.discard(token, KindExport)
	}
	msg, outcome := failureMessage(err, MsgExportFailed)
	c.phase = Settled
	c.errMsg = msg
	snap := c.snapshotLocked()
	c.mu.Unlock()

	metrics.OperationsTotal.WithLabelValues(KindExport.String(), outcome).Inc()
	c.logger.Error("export failed", slog.Uint64("seq", token), slog.Any("error", err))
	c.publish(event.Event{Type: event.ExportFailed, Seq: token, Data: map[string]any{"error": msg}})
	return snap
}

// discard drops the outcome of a superseded operation.
func (c *Controller) discard(token uint64, kind Kind) Snapshot {
	metrics.OperationsTotal.WithLabelValues(kind.String(), metrics.OutcomeDiscarded).Inc()
	c.logger.Debug("discarding stale response",
		slog.Uint64("seq", token),
		slog.String("kind", kind.String()))
	c.publish(event.Event{Type: event.ResponseDiscarded, Seq: token, Data: map[string]any{"kind": kind.String()}})
	snap := c.Snapshot()
	snap.Discarded = true
	return snap
}

func (c *Controller) stale(token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return token != c.seq
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *Controller) publish(e event.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

// failureMessage picks the user-facing message for err.
func failureMessage(err error, fallback string) (string, string) {
	if errors.Is(err, context.DeadlineExceeded) {
		return MsgTimeout, metrics.OutcomeTimeout
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return MsgTimeout, metrics.OutcomeTimeout
	}
	return fallback, metrics.OutcomeError
}
