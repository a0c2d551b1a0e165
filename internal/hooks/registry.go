// Package hooks implements the process-wide hook registry. The registry is
// an explicit, constructor-injected component so each application session
// (and each test) owns an isolated instance.
package hooks

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/VoidenHQ/voiden-pipeline/internal/core/domain"
	"github.com/VoidenHQ/voiden-pipeline/internal/core/ports"
)

// Registry stores extension-contributed handlers keyed by (protocol,
// stage), ordered by priority. Lookup takes no lock contention in steady
// state beyond an RLock; mutation (extension load/unload) is the only
// writer. HandlersFor returns snapshots, so in-flight executions finish
// with the handler list as captured.
type Registry struct {
	mu     sync.RWMutex
	regs   []ports.Registration // registration order preserved
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds or replaces a registration. Re-registration under an
// identical (protocol, stage, extension, name) key is idempotent with
// last-write-wins semantics, keeping the original registration-order slot
// so hot reload does not shuffle tie-broken ordering.
func (r *Registry) Register(reg ports.Registration) error {
	if !reg.Stage.Valid() {
		return &domain.ConfigurationError{Reason: "unknown stage identifier " + string(reg.Stage)}
	}
	if !reg.Stage.Hookable() {
		return &domain.ConfigurationError{Reason: "stage " + string(reg.Stage) + " is not hookable"}
	}
	if reg.Handler == nil {
		return &domain.ConfigurationError{Reason: "nil handler"}
	}
	if reg.Extension == "" {
		return &domain.ConfigurationError{Reason: "registration missing extension identity"}
	}
	if reg.Protocol == "" {
		reg.Protocol = ports.ProtocolAny
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.regs {
		if sameIdentity(r.regs[i], reg) {
			r.regs[i] = reg
			r.logger.Debug("hook re-registered",
				slog.String("extension", reg.Extension),
				slog.String("hook", reg.Name),
				slog.String("stage", string(reg.Stage)))
			return nil
		}
	}
	r.regs = append(r.regs, reg)
	r.logger.Debug("hook registered",
		slog.String("extension", reg.Extension),
		slog.String("hook", reg.Name),
		slog.String("stage", string(reg.Stage)),
		slog.String("protocol", reg.Protocol),
		slog.Int("priority", reg.Priority))
	return nil
}

// UnregisterAll removes every registration owned by the given extension.
// Used on extension disable or reload.
func (r *Registry) UnregisterAll(extensionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.regs[:0]
	for _, reg := range r.regs {
		if reg.Extension != extensionID {
			kept = append(kept, reg)
		}
	}
	if len(kept) != len(r.regs) {
		r.logger.Debug("extension hooks removed",
			slog.String("extension", extensionID),
			slog.Int("removed", len(r.regs)-len(kept)))
	}
	r.regs = kept
}

// HandlersFor returns the handlers applicable to a protocol at a stage:
// those registered for that exact protocol plus those registered for
// "any", sorted ascending by priority with ties in registration order.
// The returned slice is a snapshot owned by the caller.
func (r *Registry) HandlersFor(protocol string, stage ports.Stage) []ports.Registration {
	r.mu.RLock()
	var out []ports.Registration
	for _, reg := range r.regs {
		if reg.Stage != stage {
			continue
		}
		if reg.Protocol != protocol && reg.Protocol != ports.ProtocolAny {
			continue
		}
		out = append(out, reg)
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// Len returns the number of live registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.regs)
}

func sameIdentity(a, b ports.Registration) bool {
	return a.Protocol == b.Protocol && a.Stage == b.Stage &&
		a.Extension == b.Extension && a.Name == b.Name
}

var _ ports.HookSource = (*Registry)(nil)
