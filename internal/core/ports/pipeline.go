// Package ports defines the interfaces between the pipeline's components:
// the stage enumeration, the hook contract, the variable resolver consumed
// by the secure-substitution stage, and the transport capability.
package ports

import (
	"context"

	"github.com/VoidenHQ/voiden-pipeline/internal/core/domain"
)

// Stage is one ordered phase of the pipeline. The order and trust-boundary
// placement of the stages is a contract; see Ordered.
type Stage string

const (
	StageDocumentCompilation Stage = "document_compilation"
	StagePreResolution       Stage = "pre_resolution"
	StageSecureSubstitution  Stage = "secure_substitution"
	StageAuthInjection       Stage = "auth_injection"
	StagePreSend             Stage = "pre_send"
	StageDispatch            Stage = "dispatch"
	StageResponseReceipt     Stage = "response_receipt"
	StagePostProcessing      Stage = "post_processing"
)

// Ordered returns the stages in execution order.
func Ordered() []Stage {
	return []Stage{
		StageDocumentCompilation,
		StagePreResolution,
		StageSecureSubstitution,
		StageAuthInjection,
		StagePreSend,
		StageDispatch,
		StageResponseReceipt,
		StagePostProcessing,
	}
}

// Valid reports whether s is a known stage identifier.
func (s Stage) Valid() bool {
	switch s {
	case StageDocumentCompilation, StagePreResolution, StageSecureSubstitution,
		StageAuthInjection, StagePreSend, StageDispatch, StageResponseReceipt,
		StagePostProcessing:
		return true
	}
	return false
}

// Hookable reports whether extensions may register handlers for s.
// Dispatch and response receipt belong to the coordinator alone.
func (s Stage) Hookable() bool {
	return s.Valid() && s != StageDispatch && s != StageResponseReceipt
}

// Protocol scopes for hook registrations.
const (
	ProtocolAny     = "any"
	ProtocolHTTP    = "http"
	ProtocolGraphQL = "graphql"
	ProtocolSocket  = "socket"
)

// Hook is an extension-contributed handler bound to one stage. Handlers
// run strictly sequentially in priority order within their stage and may
// mutate the PipelineContext in place. A handler that returns an error or
// panics is recorded as a HookError and does not abort the stage.
type Hook func(ctx context.Context, pctx *domain.PipelineContext) error

// Registration binds a hook to a (protocol, stage) point with a priority.
// Lower priority numbers run earlier; ties run in registration order.
type Registration struct {
	// Extension is the registered name of the owning extension. It also
	// names the response-metadata namespace the extension writes under.
	Extension string
	// Name identifies the hook within its extension; the
	// (Protocol, Stage, Extension, Name) tuple is the idempotency key
	// for re-registration during hot reload.
	Name     string
	Protocol string
	Stage    Stage
	Priority int
	Handler  Hook
}

// HookSource yields the handlers applicable to a (protocol, stage) point.
// Implementations must return a snapshot: mutations to the underlying
// registry never affect a list already captured.
type HookSource interface {
	HandlersFor(protocol string, stage Stage) []Registration
}

// Resolver is the privileged substitution capability of the trusted half.
// It is consumed only by the secure-substitution stage and is never handed
// to extension code; extensions observe post-substitution text only.
type Resolver interface {
	// ListNames returns variable names only, never values. Safe to expose
	// to extensions and the UI.
	ListNames() []string
	// Resolve substitutes {{name}} templates in text. Unknown names are
	// left literal and recorded as warnings on the context; a missing
	// environment table is a ResolutionError.
	Resolve(text string, pctx *domain.PipelineContext) (string, error)
}

// Transport is the injected capability that performs the network call.
// Implementations must honor ctx cancellation by aborting the in-flight
// exchange.
type Transport interface {
	Name() string
	Dispatch(ctx context.Context, req *domain.RequestState) (*domain.ResponseState, error)
}
