package provider

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/buildrelay/internal/content"
	"git.home.luguber.info/inful/buildrelay/internal/errors"
)

// ContentfulDescriptor declares the Contentful CMS adapter.
func ContentfulDescriptor() Descriptor {
	return Descriptor{
		ProviderName:    "contentful",
		ProviderType:    content.ProviderTypeCMS,
		SupportedEvents: []string{"Entry.publish", "Entry.unpublish", "Entry.delete", "Entry.save"},
		Priority:        10,
		New:             func() Normalizer { return &contentfulNormalizer{} },
	}
}

type contentfulNormalizer struct{}

// contentfulPayload covers the sys envelope Contentful sends for entry
// webhooks. Fields are projected from the localized fields map.
type contentfulPayload struct {
	Sys struct {
		ID          string `json:"id"`
		Type        string `json:"type"`
		ContentType struct {
			Sys struct {
				ID string `json:"id"`
			} `json:"sys"`
		} `json:"contentType"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	} `json:"sys"`
	Fields map[string]map[string]any `json:"fields"`
}

func (n *contentfulNormalizer) Normalize(payload []byte, headers http.Header) ([]content.Content, error) {
	var p contentfulPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, errors.NormalizationError("malformed contentful payload").
			WithContext("provider", "contentful").
			WithContext("error", err.Error()).Build()
	}
	if p.Sys.ID == "" {
		return nil, errors.NormalizationError("contentful payload missing sys.id").
			WithContext("provider", "contentful").Build()
	}

	// Topic is ContentManagement.<Type>.<action>, e.g. ContentManagement.Entry.publish.
	topic := headers.Get("X-Contentful-Topic")
	action := topic[strings.LastIndex(topic, ".")+1:]

	status := content.StatusDraft
	switch action {
	case "publish":
		status = content.StatusPublished
	case "unpublish":
		status = content.StatusArchived
	case "delete":
		status = content.StatusDeleted
	}

	item := content.Content{
		ID:           p.Sys.ID,
		Type:         mapContentfulType(p.Sys.ContentType.Sys.ID),
		Status:       status,
		Title:        firstLocalized(p.Fields, "title"),
		ProviderName: "contentful",
		ProviderType: content.ProviderTypeCMS,
		CreatedAt:    p.Sys.CreatedAt,
		UpdatedAt:    p.Sys.UpdatedAt,
		SyncedAt:     time.Now().UTC(),
	}
	return []content.Content{item}, nil
}

func mapContentfulType(model string) content.Type {
	switch strings.ToLower(model) {
	case "product":
		return content.TypeProduct
	case "article", "blogpost", "post":
		return content.TypeArticle
	case "collection", "category":
		return content.TypeCollection
	case "asset", "media":
		return content.TypeMedia
	default:
		return content.TypePage
	}
}

// firstLocalized pulls the first locale's value for a field, Contentful
// delivers every field keyed by locale.
func firstLocalized(fields map[string]map[string]any, name string) string {
	for _, v := range fields[name] {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
