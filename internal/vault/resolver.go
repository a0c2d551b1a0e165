package vault

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/VoidenHQ/voiden-pipeline/internal/core/domain"
	"github.com/VoidenHQ/voiden-pipeline/internal/core/ports"
)

var templatePattern = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Template namespaces, checked in resolution order: capture variables
// ($req.* / $res.*), process variables (process.*), then the active
// environment. First matching namespace wins.
const (
	captureReqPrefix = "$req."
	captureResPrefix = "$res."
	processPrefix    = "process."
)

// Resolver performs variable substitution against the environment and
// process stores. It is constructed in the trusted half and consumed only
// by the secure-substitution stage; extension code receives post-
// substitution text, never the resolver or a table.
type Resolver struct {
	env     *Environment
	process *ProcessStore
	logger  *slog.Logger
}

// NewResolver creates a resolver over the given stores. process may be nil.
func NewResolver(env *Environment, process *ProcessStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if process == nil {
		process = NewProcessStore()
	}
	return &Resolver{env: env, process: process, logger: logger}
}

// ListNames returns the names visible to extensions and the UI: the active
// environment's names plus process variables under their namespace prefix.
// Values are never included.
func (r *Resolver) ListNames() []string {
	names := r.env.Names()
	for _, n := range r.process.Names() {
		names = append(names, processPrefix+n)
	}
	return names
}

// Resolve substitutes every {{name}} template in text.
//
// Unknown capture and process references are left literal and recorded as
// warnings. Environment references are also left literal on a miss when a
// table is present; when no environment table is loaded at all, an
// environment reference is a ResolutionError, because a secret template
// must not silently proceed to dispatch as a literal string.
func (r *Resolver) Resolve(text string, pctx *domain.PipelineContext) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	var fatal error
	out := templatePattern.ReplaceAllStringFunc(text, func(match string) string {
		if fatal != nil {
			return match
		}
		name := strings.TrimSpace(templatePattern.FindStringSubmatch(match)[1])

		switch {
		case strings.HasPrefix(name, captureReqPrefix), strings.HasPrefix(name, captureResPrefix):
			if v, ok := pctx.Captures[name]; ok {
				return v
			}
		case strings.HasPrefix(name, processPrefix):
			if v, ok := r.process.lookup(strings.TrimPrefix(name, processPrefix)); ok {
				return v
			}
		default:
			if !r.env.hasTable() {
				fatal = &domain.ResolutionError{Name: name, Reason: "no active environment"}
				return match
			}
			if v, ok := r.env.lookup(name); ok {
				return v
			}
		}

		pctx.AddWarning(domain.UnresolvedVariableWarning{Name: name})
		r.logger.Debug("unresolved variable", slog.String("name", name), slog.String("execution", pctx.ID))
		return match
	})
	if fatal != nil {
		return text, fatal
	}
	return out, nil
}

var _ ports.Resolver = (*Resolver)(nil)
