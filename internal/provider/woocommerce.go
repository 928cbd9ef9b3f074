package provider

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/buildrelay/internal/content"
	"git.home.luguber.info/inful/buildrelay/internal/errors"
)

// WooCommerceDescriptor declares the WooCommerce commerce adapter.
func WooCommerceDescriptor() Descriptor {
	return Descriptor{
		ProviderName: "woocommerce",
		ProviderType: content.ProviderTypeEcommerce,
		SupportedEvents: []string{
			"product.created", "product.updated", "product.deleted",
		},
		Priority: 20,
		New:      func() Normalizer { return &wooCommerceNormalizer{} },
	}
}

type wooCommerceNormalizer struct{}

type wooProduct struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Status       string `json:"status"` // publish, draft, pending, private
	DateCreated  string `json:"date_created_gmt"`
	DateModified string `json:"date_modified_gmt"`
}

func (n *wooCommerceNormalizer) Normalize(payload []byte, headers http.Header) ([]content.Content, error) {
	var p wooProduct
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, errors.NormalizationError("malformed woocommerce payload").
			WithContext("provider", "woocommerce").
			WithContext("error", err.Error()).Build()
	}
	if p.ID == 0 {
		return nil, errors.NormalizationError("woocommerce payload missing id").
			WithContext("provider", "woocommerce").Build()
	}

	status := content.StatusDraft
	if p.Status == "publish" {
		status = content.StatusPublished
	}
	if strings.HasSuffix(headers.Get("X-WC-Webhook-Topic"), ".deleted") {
		status = content.StatusDeleted
	}

	item := content.Content{
		ID:           "woocommerce-product-" + strconv.FormatInt(p.ID, 10),
		Type:         content.TypeProduct,
		Status:       status,
		Title:        p.Name,
		ProviderName: "woocommerce",
		ProviderType: content.ProviderTypeEcommerce,
		CreatedAt:    parseWooTime(p.DateCreated),
		UpdatedAt:    parseWooTime(p.DateModified),
		SyncedAt:     time.Now().UTC(),
	}
	return []content.Content{item}, nil
}

// WooCommerce GMT timestamps omit the zone suffix.
func parseWooTime(s string) time.Time {
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now().UTC()
}
