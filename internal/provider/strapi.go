package provider

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"git.home.luguber.info/inful/buildrelay/internal/content"
	"git.home.luguber.info/inful/buildrelay/internal/errors"
)

// StrapiDescriptor declares the Strapi CMS adapter.
func StrapiDescriptor() Descriptor {
	return Descriptor{
		ProviderName: "strapi",
		ProviderType: content.ProviderTypeCMS,
		SupportedEvents: []string{
			"entry.create", "entry.update", "entry.delete",
			"entry.publish", "entry.unpublish",
		},
		Priority: 10,
		New:      func() Normalizer { return &strapiNormalizer{} },
	}
}

type strapiNormalizer struct{}

type strapiPayload struct {
	Event string `json:"event"` // entry.publish, entry.delete, ...
	Model string `json:"model"`
	Entry struct {
		ID          int64      `json:"id"`
		Title       string     `json:"title"`
		CreatedAt   time.Time  `json:"createdAt"`
		UpdatedAt   time.Time  `json:"updatedAt"`
		PublishedAt *time.Time `json:"publishedAt"`
	} `json:"entry"`
}

func (n *strapiNormalizer) Normalize(payload []byte, _ http.Header) ([]content.Content, error) {
	var p strapiPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, errors.NormalizationError("malformed strapi payload").
			WithContext("provider", "strapi").
			WithContext("error", err.Error()).Build()
	}
	if p.Entry.ID == 0 {
		return nil, errors.NormalizationError("strapi payload missing entry.id").
			WithContext("provider", "strapi").Build()
	}

	status := content.StatusDraft
	switch p.Event {
	case "entry.delete":
		status = content.StatusDeleted
	case "entry.unpublish":
		status = content.StatusArchived
	default:
		if p.Entry.PublishedAt != nil {
			status = content.StatusPublished
		}
	}

	item := content.Content{
		ID:           "strapi-" + p.Model + "-" + strconv.FormatInt(p.Entry.ID, 10),
		Type:         mapContentfulType(p.Model),
		Status:       status,
		Title:        p.Entry.Title,
		ProviderName: "strapi",
		ProviderType: content.ProviderTypeCMS,
		CreatedAt:    p.Entry.CreatedAt,
		UpdatedAt:    p.Entry.UpdatedAt,
		SyncedAt:     time.Now().UTC(),
	}
	return []content.Content{item}, nil
}
