package provider

import (
	"encoding/json"
	"net/http"
	"time"

	"git.home.luguber.info/inful/buildrelay/internal/content"
	"git.home.luguber.info/inful/buildrelay/internal/errors"
)

// SanityDescriptor declares the Sanity CMS adapter.
func SanityDescriptor() Descriptor {
	return Descriptor{
		ProviderName:    "sanity",
		ProviderType:    content.ProviderTypeCMS,
		SupportedEvents: []string{"create", "update", "delete"},
		Priority:        10,
		New:             func() Normalizer { return &sanityNormalizer{} },
	}
}

type sanityNormalizer struct{}

type sanityDocument struct {
	ID        string    `json:"_id"`
	Type      string    `json:"_type"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"_createdAt"`
	UpdatedAt time.Time `json:"_updatedAt"`
}

func (n *sanityNormalizer) Normalize(payload []byte, headers http.Header) ([]content.Content, error) {
	var doc sanityDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, errors.NormalizationError("malformed sanity payload").
			WithContext("provider", "sanity").
			WithContext("error", err.Error()).Build()
	}
	if doc.ID == "" {
		return nil, errors.NormalizationError("sanity payload missing _id").
			WithContext("provider", "sanity").Build()
	}

	// Sanity GROQ-powered webhooks carry the operation in a header; documents
	// themselves are published by definition (drafts live under drafts.*).
	status := content.StatusPublished
	switch headers.Get("Sanity-Operation") {
	case "delete":
		status = content.StatusDeleted
	}
	if len(doc.ID) > 7 && doc.ID[:7] == "drafts." {
		status = content.StatusDraft
	}

	item := content.Content{
		ID:           "sanity-" + doc.ID,
		Type:         mapContentfulType(doc.Type),
		Status:       status,
		Title:        doc.Title,
		ProviderName: "sanity",
		ProviderType: content.ProviderTypeCMS,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
		SyncedAt:     time.Now().UTC(),
	}
	return []content.Content{item}, nil
}
