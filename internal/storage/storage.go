// Package storage prepares a job's input volumes on the local disk.
//
// The content-addressed network behind an ipfs volume is out of scope;
// only its HTTP gateway boundary is spoken here. A local provider
// exists for tests and offline runs.
package storage

import (
	"context"
	"fmt"

	"github.com/roach88/trawl/internal/model"
)

// Provider materializes one storage spec's content under destDir.
// After Fetch returns, destDir holds the volume's content and can be
// bind-mounted into the container at spec.Path.
type Provider interface {
	Fetch(ctx context.Context, spec model.StorageSpec, destDir string) error
}

// Registry maps storage kinds to providers.
type Registry struct {
	providers map[model.StorageKind]Provider
}

// NewRegistry builds a registry from kind/provider pairs.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[model.StorageKind]Provider)}
}

// Register adds or replaces the provider for a kind.
func (r *Registry) Register(kind model.StorageKind, p Provider) {
	r.providers[kind] = p
}

// Get returns the provider for a kind, or an error for unknown kinds.
func (r *Registry) Get(kind model.StorageKind) (Provider, error) {
	p, ok := r.providers[kind]
	if !ok {
		return nil, fmt.Errorf("no storage provider registered for kind %q", kind)
	}
	return p, nil
}
