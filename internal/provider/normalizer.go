// Package provider decouples webhook routing from provider-specific parsing.
// Each supported vendor registers a Normalizer that turns its native payload
// into unified content items; the Registry resolves and caches them by name.
package provider

import (
	"net/http"

	"git.home.luguber.info/inful/buildrelay/internal/content"
)

// Normalizer translates one vendor's webhook format into unified content.
// Implementations return zero or more items in payload order. A malformed
// payload yields a normalization-category error that callers treat as an
// item-level failure, not a systemic one.
type Normalizer interface {
	// Normalize parses the raw payload and headers into unified content items.
	Normalize(payload []byte, headers http.Header) ([]content.Content, error)
}

// Descriptor declares one built-in provider adapter. Registration is static
// and explicit so the set of supported providers is known at startup.
type Descriptor struct {
	ProviderName    string
	ProviderType    content.ProviderType
	SupportedEvents []string
	Priority        int
	New             func() Normalizer
}
