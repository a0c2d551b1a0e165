// Package dispatch owns the lifecycle of one request execution: the
// cancellation boundary around the transport call, timing, and assembly of
// the response descriptor.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/VoidenHQ/voiden-pipeline/internal/core/domain"
	"github.com/VoidenHQ/voiden-pipeline/internal/core/ports"
	"github.com/VoidenHQ/voiden-pipeline/internal/telemetry"
)

// DefaultCancelGrace bounds how long Execute waits for the transport to
// acknowledge an abort after cancellation.
const DefaultCancelGrace = 5 * time.Second

// ErrAlreadyDispatched is returned by a second Execute call on the same
// coordinator: exactly one execution proceeds per cancellation token.
var ErrAlreadyDispatched = errors.New("execution already dispatched")

// Coordinator runs exactly one dispatch. Create one per execution.
type Coordinator struct {
	transport  ports.Transport
	grace      time.Duration
	logger     *slog.Logger
	dispatched atomic.Bool
}

// NewCoordinator creates a coordinator over the injected transport
// capability. grace <= 0 selects DefaultCancelGrace.
func NewCoordinator(transport ports.Transport, grace time.Duration, logger *slog.Logger) *Coordinator {
	if grace <= 0 {
		grace = DefaultCancelGrace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{transport: transport, grace: grace, logger: logger}
}

// Execute seals the request, delegates the network call to the transport,
// and measures elapsed time. If ctx is cancelled before dispatch the
// transport is never invoked. If cancelled during transport, the transport
// is expected to abort via ctx; Execute reports CancelledError once the
// abort completes or after the grace period. A TransportError yields a
// synthetic ResponseState carrying the failure alongside the error.
func (c *Coordinator) Execute(ctx context.Context, pctx *domain.PipelineContext) (*domain.ResponseState, error) {
	if !c.dispatched.CompareAndSwap(false, true) {
		return nil, ErrAlreadyDispatched
	}

	if ctx.Err() != nil {
		return nil, &domain.CancelledError{Phase: string(ports.StageDispatch)}
	}

	req := pctx.Request
	req.Seal()
	pctx.RequestTrace = req.Clone()

	spanCtx, span := telemetry.StartDispatchSpan(ctx, c.transport.Name(), pctx.ID)
	defer span.End()

	type result struct {
		resp *domain.ResponseState
		err  error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		resp, err := c.transport.Dispatch(spanCtx, req)
		done <- result{resp, err}
	}()

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		// Cooperative abort: the transport sees the same ctx. Give it a
		// bounded grace period to unwind before reporting cancellation.
		select {
		case <-done:
		case <-time.After(c.grace):
			c.logger.Warn("transport did not abort within grace period",
				slog.String("transport", c.transport.Name()),
				slog.String("execution", pctx.ID))
		}
		return nil, &domain.CancelledError{Phase: string(ports.StageDispatch)}
	}
	elapsed := time.Since(start)

	if res.err != nil {
		if ctx.Err() != nil {
			return nil, &domain.CancelledError{Phase: string(ports.StageDispatch)}
		}
		telemetry.RecordError(spanCtx, res.err)
		terr := &domain.TransportError{Err: res.err}
		synthetic := &domain.ResponseState{
			StatusText: terr.Error(),
			Elapsed:    elapsed,
		}
		pctx.Response = synthetic
		return synthetic, terr
	}

	resp := res.resp
	resp.Elapsed = elapsed
	pctx.Response = resp

	// Response receipt: expose capture values for later stages of this
	// execution ({{$res.*}} templates in chained requests).
	pctx.Capture("$res.status", strconv.Itoa(resp.StatusCode))
	pctx.Capture("$res.body", string(resp.Body))

	c.logger.Debug("dispatch complete",
		slog.String("execution", pctx.ID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", elapsed))
	return resp, nil
}
