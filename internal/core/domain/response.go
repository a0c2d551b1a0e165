package domain

import (
	"fmt"
	"time"
)

// ResponseState is the canonical descriptor of a received response, or of
// a transport failure (synthetic response with StatusCode 0).
type ResponseState struct {
	StatusCode  int           `json:"status_code"`
	StatusText  string        `json:"status_text"`
	Headers     []Header      `json:"headers,omitempty"`
	Body        []byte        `json:"body,omitempty"`
	ContentType string        `json:"content_type,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`

	// Metadata namespaces contributed by post-processing hooks, keyed by
	// the contributing extension's registered name. Insertion order is
	// preserved because the renderer emits namespaces in hook order.
	meta      map[string]any
	metaOrder []string
}

// AttachMetadata records a structured result under namespace on behalf of
// owner. A namespace belongs to the extension of the same name: a write by
// any other extension fails, so no hook can clobber another's results. An
// empty owner is host code and is unrestricted. Hooks go through
// PipelineContext.AttachMetadata, which supplies the owner from the
// running handler's registration.
func (r *ResponseState) AttachMetadata(owner, namespace string, value any) error {
	if namespace == "" {
		return fmt.Errorf("metadata namespace must not be empty")
	}
	if owner != "" && owner != namespace {
		return fmt.Errorf("extension %q may not write metadata namespace %q", owner, namespace)
	}
	if r.meta == nil {
		r.meta = make(map[string]any)
	}
	if _, exists := r.meta[namespace]; !exists {
		r.metaOrder = append(r.metaOrder, namespace)
	}
	r.meta[namespace] = value
	return nil
}

// Metadata returns the value attached under the given namespace.
func (r *ResponseState) Metadata(namespace string) (any, bool) {
	v, ok := r.meta[namespace]
	return v, ok
}

// MetadataNamespaces returns the attached namespaces in insertion order.
func (r *ResponseState) MetadataNamespaces() []string {
	return append([]string(nil), r.metaOrder...)
}
