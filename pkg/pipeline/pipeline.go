// Package pipeline is the public embedding surface of the request
// pipeline: it wires the compiler, hook registry, secure resolver,
// coordinator and post-processor into a single Send operation.
//
// Each Send is one independent execution with its own PipelineContext and
// cancellation context; arbitrarily many may run concurrently. The hook
// registry and the environment are the only shared structures, and both
// are read-mostly with snapshot-on-read semantics.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/VoidenHQ/voiden-pipeline/internal/core/domain"
	"github.com/VoidenHQ/voiden-pipeline/internal/core/ports"
	"github.com/VoidenHQ/voiden-pipeline/internal/dispatch"
	"github.com/VoidenHQ/voiden-pipeline/internal/hooks"
	"github.com/VoidenHQ/voiden-pipeline/internal/render"
	"github.com/VoidenHQ/voiden-pipeline/internal/sequencer"
	"github.com/VoidenHQ/voiden-pipeline/internal/transport"
	"github.com/VoidenHQ/voiden-pipeline/internal/vault"
)

// Result is the outcome of one execution. ResponseDocument is always
// populated: a failed execution renders a structured error block rather
// than disappearing.
type Result struct {
	ResponseDocument *domain.Document
	Context          *domain.PipelineContext
	Err              error
}

// Pipeline is an application session's request pipeline.
type Pipeline struct {
	registry   *hooks.Registry
	resolver   ports.Resolver
	transports map[string]ports.Transport
	grace      time.Duration
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger shared by all components.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithResolver injects the secure resolver. Defaults to a resolver over an
// empty environment, which makes every secure substitution of an
// environment reference fatal until sources are loaded.
func WithResolver(r ports.Resolver) Option {
	return func(p *Pipeline) { p.resolver = r }
}

// WithTransport installs the capability for a protocol, replacing the
// default.
func WithTransport(protocol string, t ports.Transport) Option {
	return func(p *Pipeline) { p.transports[protocol] = t }
}

// WithCancelGrace bounds the post-cancellation wait on the transport.
func WithCancelGrace(d time.Duration) Option {
	return func(p *Pipeline) { p.grace = d }
}

// New creates a pipeline session with default HTTP, GraphQL and socket
// transport capabilities and an isolated hook registry.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		transports: make(map[string]ports.Transport),
		grace:      dispatch.DefaultCancelGrace,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.registry == nil {
		p.registry = hooks.NewRegistry(p.logger)
	}
	if p.resolver == nil {
		p.resolver = vault.NewResolver(vault.NewEnvironment(), nil, p.logger)
	}
	if _, ok := p.transports[ports.ProtocolHTTP]; !ok {
		p.transports[ports.ProtocolHTTP] = transport.NewHTTPTransport(transport.WithLogger(p.logger))
	}
	if _, ok := p.transports[ports.ProtocolGraphQL]; !ok {
		if ht, ok := p.transports[ports.ProtocolHTTP].(*transport.HTTPTransport); ok {
			p.transports[ports.ProtocolGraphQL] = transport.NewGraphQLTransport(ht)
		}
	}
	if _, ok := p.transports[ports.ProtocolSocket]; !ok {
		p.transports[ports.ProtocolSocket] = transport.NewSocketTransport(0)
	}
	return p
}

// Registry exposes the session's hook registry for extension loading.
func (p *Pipeline) Registry() *hooks.Registry { return p.registry }

// Send executes one document end to end. Cancel ctx to abort; cancelling
// one Send never affects others. The returned Result always carries a
// response document (normal or error-structured); Result.Err carries the
// terminal error, including CancelledError, which is a terminal state
// rather than a failure.
func (p *Pipeline) Send(ctx context.Context, doc *domain.Document) *Result {
	pctx := domain.NewPipelineContext(doc)
	seq := sequencer.New(p.registry, p.resolver, p.logger)
	post := render.New(p.registry, p.logger)

	if err := seq.RunPreDispatch(ctx, pctx); err != nil {
		p.logger.Warn("execution aborted before dispatch",
			slog.String("execution", pctx.ID), slog.Any("error", err))
		return &Result{ResponseDocument: render.RenderError(pctx, err), Context: pctx, Err: err}
	}

	transportForProtocol, ok := p.transports[pctx.Request.Protocol]
	if !ok {
		transportForProtocol = p.transports[ports.ProtocolHTTP]
	}
	coord := dispatch.NewCoordinator(transportForProtocol, p.grace, p.logger)

	resp, err := coord.Execute(ctx, pctx)
	if err != nil {
		if resp == nil {
			return &Result{ResponseDocument: render.RenderError(pctx, err), Context: pctx, Err: err}
		}
		// Transport failure: post-process the synthetic response so
		// assertion hooks still observe the failed exchange, then render
		// the structured error.
		if _, perr := post.PostProcess(ctx, pctx); perr != nil {
			p.logger.Warn("post-processing failed", slog.String("execution", pctx.ID), slog.Any("error", perr))
		}
		return &Result{ResponseDocument: render.RenderError(pctx, err), Context: pctx, Err: err}
	}

	responseDoc, err := post.PostProcess(ctx, pctx)
	if err != nil {
		return &Result{ResponseDocument: render.RenderError(pctx, err), Context: pctx, Err: err}
	}
	return &Result{ResponseDocument: responseDoc, Context: pctx}
}
