package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// PipelineContext is the per-execution aggregate. It is exclusively owned
// by one coordinator for the duration of one execution and is never shared
// across concurrent executions, so it carries no locking.
type PipelineContext struct {
	// ID identifies one execution, for logs and trace correlation.
	ID string

	// Document is the originating document tree.
	Document *Document

	// Request is populated by compilation and mutated in place by
	// successive stage hooks until dispatch seals it.
	Request *RequestState

	// Response is populated after transport receipt.
	Response *ResponseState

	// RequestTrace is the post-dispatch snapshot of the sealed request,
	// used purely for trace display by post-processing.
	RequestTrace *RequestState

	// Captures holds live values computed earlier in the same execution,
	// addressed by the {{$req.*}} / {{$res.*}} template namespaces.
	Captures map[string]string

	// Meta is scratch state shared read/write across stages.
	Meta map[string]any

	// Warnings accumulates non-fatal resolution warnings.
	Warnings []UnresolvedVariableWarning

	// HookErrors accumulates isolated per-handler failures.
	HookErrors []*HookError

	// activeExtension identifies the extension whose handler is currently
	// executing. Set by the stage runner around each invocation; it is the
	// owner identity enforced by AttachMetadata.
	activeExtension string
}

// NewPipelineContext creates the context for one execution of doc.
func NewPipelineContext(doc *Document) *PipelineContext {
	return &PipelineContext{
		ID:       uuid.NewString(),
		Document: doc,
		Captures: make(map[string]string),
		Meta:     make(map[string]any),
	}
}

// AddWarning appends a non-fatal resolution warning.
func (p *PipelineContext) AddWarning(w UnresolvedVariableWarning) {
	p.Warnings = append(p.Warnings, w)
}

// RecordHookError appends an isolated hook failure.
func (p *PipelineContext) RecordHookError(e *HookError) {
	p.HookErrors = append(p.HookErrors, e)
}

// Capture stores a live value under the $req. / $res. capture namespace.
func (p *PipelineContext) Capture(name, value string) {
	p.Captures[name] = value
}

// SetActiveExtension records which extension's handler is executing.
// Called by the stage runner before and after each invocation; handlers
// themselves never call it.
func (p *PipelineContext) SetActiveExtension(extension string) {
	p.activeExtension = extension
}

// ActiveExtension returns the extension whose handler is currently
// executing, or "" outside hook invocation.
func (p *PipelineContext) ActiveExtension() string {
	return p.activeExtension
}

// AttachMetadata writes a response metadata namespace on behalf of the
// running handler's extension. Writing a namespace owned by another
// extension fails.
func (p *PipelineContext) AttachMetadata(namespace string, value any) error {
	if p.Response == nil {
		return fmt.Errorf("no response to attach metadata to")
	}
	return p.Response.AttachMetadata(p.activeExtension, namespace, value)
}
