// Package sequencer drives the ordered stage list for one request
// execution, invoking the hook registry and the secure resolver at their
// contractual points.
package sequencer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/VoidenHQ/voiden-pipeline/internal/compiler"
	"github.com/VoidenHQ/voiden-pipeline/internal/core/domain"
	"github.com/VoidenHQ/voiden-pipeline/internal/core/ports"
	"github.com/VoidenHQ/voiden-pipeline/internal/telemetry"
)

// Sequencer executes stages 1 through 5 (document compilation up to
// pre-send) over one PipelineContext. Dispatch and response receipt belong
// to the coordinator; post-processing belongs to the renderer.
type Sequencer struct {
	hooks    ports.HookSource
	resolver ports.Resolver
	compiler *compiler.Compiler
	logger   *slog.Logger
}

// New creates a sequencer over the given hook source and resolver.
func New(hooks ports.HookSource, resolver ports.Resolver, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		hooks:    hooks,
		resolver: resolver,
		compiler: compiler.New(),
		logger:   logger,
	}
}

// RunPreDispatch runs the pre-dispatch stages in order. Hook failures are
// contained per handler; only compilation and secure-resolution failures
// (and cancellation) abort, leaving the request undispatched.
func (s *Sequencer) RunPreDispatch(ctx context.Context, pctx *domain.PipelineContext) error {
	// Stage 1: document compilation.
	if err := checkCancelled(ctx, string(ports.StageDocumentCompilation)); err != nil {
		return err
	}
	rs, err := s.compiler.Compile(pctx.Document)
	if err != nil {
		return err
	}
	pctx.Request = rs
	pctx.Capture("$req.method", rs.Method)
	pctx.Capture("$req.url", rs.URL)
	if err := RunStageHooks(ctx, s.hooks, pctx, ports.StageDocumentCompilation, s.logger); err != nil {
		return err
	}

	// Stage 2: pre-resolution. Extensions declare additional variables or
	// request captures before any secret is touched.
	if err := s.runHookStage(ctx, pctx, ports.StagePreResolution); err != nil {
		return err
	}

	// Stage 3: secure substitution. The only stage allowed to call the
	// resolver with real values; it runs in the host context, never
	// inside an extension's execution environment. A resolution failure
	// here is fatal: an unresolved secret must not proceed to dispatch.
	if err := checkCancelled(ctx, string(ports.StageSecureSubstitution)); err != nil {
		return err
	}
	if err := s.substitute(ctx, pctx); err != nil {
		return err
	}
	if err := RunStageHooks(ctx, s.hooks, pctx, ports.StageSecureSubstitution, s.logger); err != nil {
		return err
	}

	// Stage 4: authentication injection, over already-substituted text.
	if err := s.runHookStage(ctx, pctx, ports.StageAuthInjection); err != nil {
		return err
	}

	// Stage 5: pre-send transformation, last point before dispatch.
	return s.runHookStage(ctx, pctx, ports.StagePreSend)
}

func (s *Sequencer) runHookStage(ctx context.Context, pctx *domain.PipelineContext, stage ports.Stage) error {
	if err := checkCancelled(ctx, string(stage)); err != nil {
		return err
	}
	return RunStageHooks(ctx, s.hooks, pctx, stage, s.logger)
}

// substitute resolves every template-bearing field of the request.
func (s *Sequencer) substitute(ctx context.Context, pctx *domain.PipelineContext) error {
	spanCtx, span := telemetry.StartStageSpan(ctx, string(ports.StageSecureSubstitution), pctx.ID)
	defer span.End()

	rs := pctx.Request
	var err error

	if rs.URL, err = s.resolver.Resolve(rs.URL, pctx); err != nil {
		telemetry.RecordError(spanCtx, err)
		return err
	}
	for i := range rs.Headers {
		if !rs.Headers[i].Enabled {
			continue
		}
		if rs.Headers[i].Value, err = s.resolver.Resolve(rs.Headers[i].Value, pctx); err != nil {
			telemetry.RecordError(spanCtx, err)
			return err
		}
	}
	for i := range rs.Query {
		if rs.Query[i].Value, err = s.resolver.Resolve(rs.Query[i].Value, pctx); err != nil {
			telemetry.RecordError(spanCtx, err)
			return err
		}
	}
	for i := range rs.PathParams {
		if rs.PathParams[i].Value, err = s.resolver.Resolve(rs.PathParams[i].Value, pctx); err != nil {
			telemetry.RecordError(spanCtx, err)
			return err
		}
	}

	switch rs.Body.Kind {
	case domain.BodyJSON, domain.BodyXML, domain.BodyYAML:
		if rs.Body.Text, err = s.resolver.Resolve(rs.Body.Text, pctx); err != nil {
			telemetry.RecordError(spanCtx, err)
			return err
		}
	case domain.BodyURLEncoded, domain.BodyMultipart:
		for i := range rs.Body.Form {
			if rs.Body.Form[i].Value, err = s.resolver.Resolve(rs.Body.Form[i].Value, pctx); err != nil {
				telemetry.RecordError(spanCtx, err)
				return err
			}
		}
	case domain.BodyGraphQL:
		// Templates can hide inside string literals of an otherwise valid
		// operation, so the query text is resolved too.
		if rs.Body.GraphQL.Query, err = s.resolver.Resolve(rs.Body.GraphQL.Query, pctx); err != nil {
			telemetry.RecordError(spanCtx, err)
			return err
		}
		if rs.Body.GraphQL.Variables, err = s.resolver.Resolve(rs.Body.GraphQL.Variables, pctx); err != nil {
			telemetry.RecordError(spanCtx, err)
			return err
		}
	}

	pctx.Capture("$req.url", rs.URL)
	return nil
}

// RunStageHooks invokes the handlers applicable to the context's protocol
// at the given stage, strictly in priority order. The handler list is
// snapshotted once at stage entry; registry mutations never affect it. A
// handler that errors or panics is recorded as a HookError tagged with the
// owning extension and the stage continues to the next handler.
func RunStageHooks(ctx context.Context, src ports.HookSource, pctx *domain.PipelineContext, stage ports.Stage, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	protocol := ports.ProtocolHTTP
	if pctx.Request != nil {
		protocol = pctx.Request.Protocol
	}
	handlers := src.HandlersFor(protocol, stage)
	if len(handlers) == 0 {
		return nil
	}

	spanCtx, span := telemetry.StartStageSpan(ctx, string(stage), pctx.ID)
	defer span.End()

	for _, reg := range handlers {
		if err := checkCancelled(ctx, string(stage)); err != nil {
			return err
		}
		if err := invokeHook(spanCtx, reg, pctx); err != nil {
			hookErr := &domain.HookError{
				Extension: reg.Extension,
				Hook:      reg.Name,
				Stage:     string(stage),
				Err:       err,
			}
			pctx.RecordHookError(hookErr)
			logger.Warn("hook failed",
				slog.String("extension", reg.Extension),
				slog.String("hook", reg.Name),
				slog.String("stage", string(stage)),
				slog.String("execution", pctx.ID),
				slog.Any("error", err))
		}
	}
	return nil
}

// invokeHook runs one handler inside a deferred recover so a panicking
// extension cannot take down the execution. The owning extension is set as
// the context's active identity for the duration of the call; response
// metadata writes are checked against it.
func invokeHook(ctx context.Context, reg ports.Registration, pctx *domain.PipelineContext) (retErr error) {
	pctx.SetActiveExtension(reg.Extension)
	defer func() {
		pctx.SetActiveExtension("")
		if r := recover(); r != nil {
			retErr = fmt.Errorf("panic: %v", r)
		}
	}()
	return reg.Handler(ctx, pctx)
}

func checkCancelled(ctx context.Context, phase string) error {
	if ctx.Err() != nil {
		return &domain.CancelledError{Phase: phase}
	}
	return nil
}
