package registry_test

import (
	"testing"

	"github.com/marianozunino/gatedrop/internal/registry"
	"github.com/marianozunino/gatedrop/internal/registry/registrytest"
)

func TestMemoryRegistry(t *testing.T) {
	registrytest.Run(t, func(t *testing.T) (registry.Registry, func()) {
		return registry.NewMemory(), func() {}
	})
}
