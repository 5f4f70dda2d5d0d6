package cmd

import (
	"log/slog"

	"github.com/loomworks/loom/pkg/registry"
)

// NewRegistry builds the executor registry with all built-in executors.
// Registration failures are programming errors, so they panic at startup.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	if err := reg.RegisterDefaults(); err != nil {
		panic(err)
	}

	return reg
}
