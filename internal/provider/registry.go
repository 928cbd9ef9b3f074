package provider

import (
	"net/http"
	"sync"

	"git.home.luguber.info/inful/buildrelay/internal/content"
	"git.home.luguber.info/inful/buildrelay/internal/errors"
)

// Registry holds the static table of provider descriptors and caches resolved
// normalizer instances.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]Descriptor
	resolved    map[string]Normalizer
}

// NewRegistry builds a registry from the given descriptors. Call
// NewDefaultRegistry for the built-in provider set.
func NewRegistry(descriptors ...Descriptor) *Registry {
	r := &Registry{
		descriptors: make(map[string]Descriptor, len(descriptors)),
		resolved:    make(map[string]Normalizer),
	}
	for _, d := range descriptors {
		r.descriptors[d.ProviderName] = d
	}
	return r
}

// NewDefaultRegistry returns a registry with all built-in adapters.
func NewDefaultRegistry() *Registry {
	return NewRegistry(
		ContentfulDescriptor(),
		SanityDescriptor(),
		StrapiDescriptor(),
		ShopifyDescriptor(),
		WooCommerceDescriptor(),
	)
}

// Providers returns the names of all registered providers.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.descriptors))
	for name := range r.descriptors {
		names = append(names, name)
	}
	return names
}

// Supports reports whether a provider is registered.
func (r *Registry) Supports(providerName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.descriptors[providerName]
	return ok
}

// Descriptor returns the descriptor for a provider.
func (r *Registry) Descriptor(providerName string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.descriptors[providerName]
	return d, ok
}

// Resolve returns the cached normalizer for a provider, constructing it on
// first use. Unknown providers yield a not-found classified error.
func (r *Registry) Resolve(providerName string) (Normalizer, error) {
	r.mu.RLock()
	if n, ok := r.resolved[providerName]; ok {
		r.mu.RUnlock()
		return n, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.resolved[providerName]; ok {
		return n, nil
	}
	d, ok := r.descriptors[providerName]
	if !ok {
		return nil, errors.NotFoundError("unsupported provider").
			WithContext("provider", providerName).Build()
	}
	n := d.New()
	r.resolved[providerName] = n
	return n, nil
}

// Normalize resolves the provider's normalizer and invokes it.
func (r *Registry) Normalize(providerName string, payload []byte, headers http.Header) ([]content.Content, error) {
	n, err := r.Resolve(providerName)
	if err != nil {
		return nil, err
	}
	return n.Normalize(payload, headers)
}
