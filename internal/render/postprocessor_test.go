package render

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/VoidenHQ/voiden-pipeline/internal/core/domain"
	"github.com/VoidenHQ/voiden-pipeline/internal/core/ports"
	"github.com/VoidenHQ/voiden-pipeline/internal/hooks"
)

func dispatchedContext() *domain.PipelineContext {
	pctx := domain.NewPipelineContext(&domain.Document{})
	pctx.Request = &domain.RequestState{
		Protocol: ports.ProtocolHTTP,
		Method:   "GET",
		URL:      "https://api.example.com/items",
		Headers: []domain.Header{
			{Key: "Authorization", Value: "Bearer abc123", Enabled: true},
		},
	}
	pctx.Request.Seal()
	pctx.RequestTrace = pctx.Request.Clone()
	pctx.Response = &domain.ResponseState{
		StatusCode:  200,
		StatusText:  "OK",
		Headers:     []domain.Header{{Key: "Content-Type", Value: "application/json", Enabled: true}},
		Body:        []byte(`{"ok":true}`),
		ContentType: "application/json",
		Elapsed:     42 * time.Millisecond,
	}
	return pctx
}

func TestPostProcess_BlockOrdering(t *testing.T) {
	registry := hooks.NewRegistry(nil)
	mustRegister(t, registry, ports.Registration{
		Extension: "assertions", Name: "check", Stage: ports.StagePostProcessing, Priority: 1,
		Handler: func(ctx context.Context, pctx *domain.PipelineContext) error {
			return pctx.AttachMetadata("assertions", map[string]any{"passed": 3})
		},
	})
	mustRegister(t, registry, ports.Registration{
		Extension: "validator", Name: "schema", Stage: ports.StagePostProcessing, Priority: 2,
		Handler: func(ctx context.Context, pctx *domain.PipelineContext) error {
			return pctx.AttachMetadata("validator", "valid")
		},
	})

	doc, err := New(registry, nil).PostProcess(context.Background(), dispatchedContext())
	if err != nil {
		t.Fatalf("post-process: %v", err)
	}

	wantKinds := []domain.BlockKind{
		domain.BlockResponseBody,
		domain.BlockResponseMeta, // assertions, hook-registration order
		domain.BlockResponseMeta, // validator
		domain.BlockResponseHeaders,
		domain.BlockRequestTrace,
	}
	if len(doc.Blocks) != len(wantKinds) {
		t.Fatalf("expected %d blocks, got %d", len(wantKinds), len(doc.Blocks))
	}
	for i, kind := range wantKinds {
		if doc.Blocks[i].Kind != kind {
			t.Errorf("block %d: expected %s, got %s", i, kind, doc.Blocks[i].Kind)
		}
	}
	if ns := doc.Blocks[1].Data["namespace"]; ns != "assertions" {
		t.Errorf("metadata blocks out of registration order: first is %v", ns)
	}
}

func TestPostProcess_MetadataNamespaceOwnership(t *testing.T) {
	registry := hooks.NewRegistry(nil)
	mustRegister(t, registry, ports.Registration{
		Extension: "assertions", Name: "check", Stage: ports.StagePostProcessing, Priority: 1,
		Handler: func(ctx context.Context, pctx *domain.PipelineContext) error {
			return pctx.AttachMetadata("assertions", "3 passed")
		},
	})
	mustRegister(t, registry, ports.Registration{
		Extension: "rogue", Name: "clobber", Stage: ports.StagePostProcessing, Priority: 2,
		Handler: func(ctx context.Context, pctx *domain.PipelineContext) error {
			return pctx.AttachMetadata("assertions", "clobbered")
		},
	})

	pctx := dispatchedContext()
	if _, err := New(registry, nil).PostProcess(context.Background(), pctx); err != nil {
		t.Fatalf("post-process: %v", err)
	}

	if v, _ := pctx.Response.Metadata("assertions"); v != "3 passed" {
		t.Errorf("cross-extension write must not clobber the namespace, got %v", v)
	}
	if len(pctx.HookErrors) != 1 || pctx.HookErrors[0].Extension != "rogue" {
		t.Errorf("expected the rejected write recorded as a HookError for 'rogue', got %+v", pctx.HookErrors)
	}
}

func TestPostProcess_HookErrorDoesNotBlockLaterHandlers(t *testing.T) {
	registry := hooks.NewRegistry(nil)
	mustRegister(t, registry, ports.Registration{
		Extension: "first", Name: "fails", Stage: ports.StagePostProcessing, Priority: 1,
		Handler: func(ctx context.Context, pctx *domain.PipelineContext) error {
			return errors.New("assertion engine crashed")
		},
	})
	mustRegister(t, registry, ports.Registration{
		Extension: "second", Name: "writes", Stage: ports.StagePostProcessing, Priority: 5,
		Handler: func(ctx context.Context, pctx *domain.PipelineContext) error {
			return pctx.AttachMetadata("second", "wrote")
		},
	})

	pctx := dispatchedContext()
	doc, err := New(registry, nil).PostProcess(context.Background(), pctx)
	if err != nil {
		t.Fatalf("post-process: %v", err)
	}

	if v, ok := pctx.Response.Metadata("second"); !ok || v != "wrote" {
		t.Error("later handler's metadata namespace missing after earlier HookError")
	}
	if len(pctx.HookErrors) != 1 || pctx.HookErrors[0].Extension != "first" {
		t.Errorf("expected one HookError tagged 'first', got %+v", pctx.HookErrors)
	}
	if doc == nil {
		t.Fatal("response document must still be rendered")
	}
}

func TestPostProcess_RequestTraceVerbatim(t *testing.T) {
	pctx := dispatchedContext()
	doc, err := New(hooks.NewRegistry(nil), nil).PostProcess(context.Background(), pctx)
	if err != nil {
		t.Fatalf("post-process: %v", err)
	}

	trace := doc.Blocks[len(doc.Blocks)-1]
	if trace.Kind != domain.BlockRequestTrace {
		t.Fatalf("last block must be the request trace, got %s", trace.Kind)
	}
	if trace.Data["method"] != "GET" || trace.Data["url"] != "https://api.example.com/items" {
		t.Errorf("trace does not preserve method/url verbatim: %+v", trace.Data)
	}
	if len(trace.Rows) != 1 || trace.Rows[0].Key != "Authorization" || trace.Rows[0].Value != "Bearer abc123" {
		t.Errorf("trace does not preserve headers verbatim: %+v", trace.Rows)
	}
}

func TestRenderError(t *testing.T) {
	pctx := dispatchedContext()
	doc := RenderError(pctx, &domain.TransportError{Err: errors.New("connection refused")})

	if len(doc.Blocks) == 0 || doc.Blocks[0].Kind != domain.BlockErrorReport {
		t.Fatalf("expected error-report block first, got %+v", doc.Blocks)
	}
	if doc.Blocks[0].Data["kind"] != "transport" {
		t.Errorf("expected transport error kind, got %v", doc.Blocks[0].Data["kind"])
	}
	if doc.Blocks[1].Kind != domain.BlockRequestTrace {
		t.Error("error document should still carry the request trace")
	}
}

func TestRenderError_Cancelled(t *testing.T) {
	doc := RenderError(domain.NewPipelineContext(&domain.Document{}), &domain.CancelledError{Phase: "dispatch"})
	if doc.Blocks[0].Data["kind"] != "cancelled" {
		t.Errorf("expected cancelled kind, got %v", doc.Blocks[0].Data["kind"])
	}
}

func mustRegister(t *testing.T, r *hooks.Registry, reg ports.Registration) {
	t.Helper()
	if err := r.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
}
