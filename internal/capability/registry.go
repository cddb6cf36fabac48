package capability

import (
	"log/slog"
	"strings"

	"github.com/odyssey-erp/odyssey-authz/internal/modules"
)

// ModuleSource lists enabled modules in registration order.
type ModuleSource interface {
	EnabledModules() []modules.Module
}

// Registry exposes the capabilities contributed by enabled modules.
type Registry struct {
	source ModuleSource
	logger *slog.Logger
}

// NewRegistry builds a registry over the given module source.
func NewRegistry(source ModuleSource, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{source: source, logger: logger}
}

// All returns one descriptor per declared capability entry. Entries without a
// key are skipped. Keys declared by several modules yield several descriptors.
func (r *Registry) All() []Descriptor {
	if r == nil || r.source == nil {
		return nil
	}
	var out []Descriptor
	for _, mod := range r.source.EnabledModules() {
		for _, entry := range mod.Capabilities {
			key := strings.TrimSpace(entry.Key)
			if key == "" {
				r.logger.Debug("skip capability without key", slog.String("module", mod.Slug))
				continue
			}
			label := entry.Label
			if label == "" {
				label = key
			}
			roles := make([]string, 0, len(entry.DefaultRoles))
			for _, role := range entry.DefaultRoles {
				if role = strings.TrimSpace(role); role != "" {
					roles = append(roles, role)
				}
			}
			meta := entry.Metadata
			if meta == nil {
				meta = map[string]any{}
			}
			out = append(out, Descriptor{
				Key:          key,
				Module:       mod.Slug,
				Label:        label,
				DefaultRoles: roles,
				Metadata:     meta,
			})
		}
	}
	return out
}

// DefaultRolesFor returns the default roles of the first descriptor with the
// given key, or an empty list.
func (r *Registry) DefaultRolesFor(key string) []string {
	for _, d := range r.All() {
		if d.Key == key {
			return d.DefaultRoles
		}
	}
	return []string{}
}
