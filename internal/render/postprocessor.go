// Package render runs the post-processing stage and converts the final
// ResponseState into a document tree for the editing surface.
package render

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/VoidenHQ/voiden-pipeline/internal/core/domain"
	"github.com/VoidenHQ/voiden-pipeline/internal/core/ports"
	"github.com/VoidenHQ/voiden-pipeline/internal/sequencer"
)

// PostProcessor runs stage-8 hooks and renders response documents.
// Post-processing hooks run after the trust-sensitive work is finished, so
// they observe only the dispatched request snapshot and the response,
// never secret tables.
type PostProcessor struct {
	hooks  ports.HookSource
	logger *slog.Logger
}

// New creates a post-processor over the given hook source.
func New(hooks ports.HookSource, logger *slog.Logger) *PostProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostProcessor{hooks: hooks, logger: logger}
}

// PostProcess runs the post-processing hooks and renders the response.
// Hook failures are isolated per handler and never prevent rendering.
func (p *PostProcessor) PostProcess(ctx context.Context, pctx *domain.PipelineContext) (*domain.Document, error) {
	if pctx.Response == nil {
		return nil, fmt.Errorf("post-process called without a response")
	}

	if err := sequencer.RunStageHooks(ctx, p.hooks, pctx, ports.StagePostProcessing, p.logger); err != nil {
		return nil, err
	}
	return p.renderResponse(pctx), nil
}

// renderResponse emits blocks in the contractual order: body first, then
// validation/assertion metadata in hook-registration order, then response
// headers, then the request-trace block.
func (p *PostProcessor) renderResponse(pctx *domain.PipelineContext) *domain.Document {
	resp := pctx.Response
	doc := &domain.Document{}
	pos := 0

	doc.Blocks = append(doc.Blocks, domain.Block{
		Kind:     domain.BlockResponseBody,
		Position: pos,
		Text:     string(resp.Body),
		Data: map[string]any{
			"status_code":  resp.StatusCode,
			"status_text":  resp.StatusText,
			"content_type": resp.ContentType,
			"elapsed_ms":   resp.Elapsed.Milliseconds(),
		},
	})
	pos++

	for _, ns := range resp.MetadataNamespaces() {
		value, _ := resp.Metadata(ns)
		doc.Blocks = append(doc.Blocks, domain.Block{
			Kind:     domain.BlockResponseMeta,
			Position: pos,
			Data:     map[string]any{"namespace": ns, "value": value},
		})
		pos++
	}

	headerRows := make([]domain.Row, 0, len(resp.Headers))
	for _, h := range resp.Headers {
		headerRows = append(headerRows, domain.Row{Key: h.Key, Value: h.Value, Enabled: true})
	}
	doc.Blocks = append(doc.Blocks, domain.Block{
		Kind:     domain.BlockResponseHeaders,
		Position: pos,
		Rows:     headerRows,
	})
	pos++

	doc.Blocks = append(doc.Blocks, requestTraceBlock(pctx, pos))
	return doc
}

// RenderError renders a failed execution into a document with a structured
// error block, so a failed execution never silently disappears.
func RenderError(pctx *domain.PipelineContext, execErr error) *domain.Document {
	kind := "error"
	switch {
	case domain.IsMalformedDocument(execErr):
		kind = "malformed_document"
	case domain.IsResolution(execErr):
		kind = "resolution"
	case domain.IsTransport(execErr):
		kind = "transport"
	case domain.IsCancelled(execErr):
		kind = "cancelled"
	}

	doc := &domain.Document{
		Blocks: []domain.Block{{
			Kind:     domain.BlockErrorReport,
			Position: 0,
			Text:     execErr.Error(),
			Data:     map[string]any{"kind": kind},
		}},
	}
	if pctx != nil && pctx.RequestTrace != nil {
		doc.Blocks = append(doc.Blocks, requestTraceBlock(pctx, 1))
	}
	return doc
}

// requestTraceBlock snapshots the dispatched request verbatim for display.
func requestTraceBlock(pctx *domain.PipelineContext, pos int) domain.Block {
	trace := pctx.RequestTrace
	if trace == nil {
		trace = pctx.Request
	}
	block := domain.Block{
		Kind:     domain.BlockRequestTrace,
		Position: pos,
		Text:     trace.Method + " " + trace.URL,
		Data: map[string]any{
			"method":   trace.Method,
			"url":      trace.URL,
			"protocol": trace.Protocol,
		},
	}
	for _, h := range trace.Headers {
		block.Rows = append(block.Rows, domain.Row{Key: h.Key, Value: h.Value, Enabled: h.Enabled})
	}
	if len(pctx.Warnings) > 0 {
		block.Data["warnings"] = warningStrings(pctx.Warnings)
	}
	if len(pctx.HookErrors) > 0 {
		var errs []string
		for _, he := range pctx.HookErrors {
			errs = append(errs, he.Error())
		}
		block.Data["hook_errors"] = errs
	}
	return block
}

func warningStrings(ws []domain.UnresolvedVariableWarning) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.String()
	}
	return out
}
