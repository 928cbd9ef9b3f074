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

// ShopifyDescriptor declares the Shopify commerce adapter.
func ShopifyDescriptor() Descriptor {
	return Descriptor{
		ProviderName: "shopify",
		ProviderType: content.ProviderTypeEcommerce,
		SupportedEvents: []string{
			"products/create", "products/update", "products/delete",
			"inventory_levels/update", "collections/create", "collections/update",
		},
		Priority: 20,
		New:      func() Normalizer { return &shopifyNormalizer{} },
	}
}

type shopifyNormalizer struct{}

type shopifyProduct struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Status    string `json:"status"` // active, draft, archived
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type shopifyInventoryLevel struct {
	InventoryItemID int64  `json:"inventory_item_id"`
	Available       int    `json:"available"`
	UpdatedAt       string `json:"updated_at"`
}

func (n *shopifyNormalizer) Normalize(payload []byte, headers http.Header) ([]content.Content, error) {
	topic := headers.Get("X-Shopify-Topic")
	switch {
	case strings.HasPrefix(topic, "inventory_levels/"):
		return n.normalizeInventory(payload)
	case strings.HasPrefix(topic, "collections/"):
		return n.normalizeCollection(payload, topic)
	default:
		return n.normalizeProduct(payload, topic)
	}
}

func (n *shopifyNormalizer) normalizeProduct(payload []byte, topic string) ([]content.Content, error) {
	var p shopifyProduct
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, errors.NormalizationError("malformed shopify product payload").
			WithContext("provider", "shopify").
			WithContext("error", err.Error()).Build()
	}
	if p.ID == 0 {
		return nil, errors.NormalizationError("shopify payload missing id").
			WithContext("provider", "shopify").Build()
	}

	status := content.StatusPublished
	switch p.Status {
	case "draft":
		status = content.StatusDraft
	case "archived":
		status = content.StatusArchived
	}
	if strings.HasSuffix(topic, "/delete") {
		status = content.StatusDeleted
	}

	item := content.Content{
		ID:           "shopify-product-" + strconv.FormatInt(p.ID, 10),
		Type:         content.TypeProduct,
		Status:       status,
		Title:        p.Title,
		ProviderName: "shopify",
		ProviderType: content.ProviderTypeEcommerce,
		CreatedAt:    parseShopifyTime(p.CreatedAt),
		UpdatedAt:    parseShopifyTime(p.UpdatedAt),
		SyncedAt:     time.Now().UTC(),
	}
	return []content.Content{item}, nil
}

func (n *shopifyNormalizer) normalizeInventory(payload []byte) ([]content.Content, error) {
	var lvl shopifyInventoryLevel
	if err := json.Unmarshal(payload, &lvl); err != nil {
		return nil, errors.NormalizationError("malformed shopify inventory payload").
			WithContext("provider", "shopify").
			WithContext("error", err.Error()).Build()
	}
	if lvl.InventoryItemID == 0 {
		return nil, errors.NormalizationError("shopify inventory payload missing item id").
			WithContext("provider", "shopify").Build()
	}
	now := time.Now().UTC()
	item := content.Content{
		ID:              "shopify-product-" + strconv.FormatInt(lvl.InventoryItemID, 10),
		Type:            content.TypeProduct,
		Status:          content.StatusPublished,
		ProviderName:    "shopify",
		ProviderType:    content.ProviderTypeEcommerce,
		InventoryChange: true,
		CreatedAt:       parseShopifyTime(lvl.UpdatedAt),
		UpdatedAt:       parseShopifyTime(lvl.UpdatedAt),
		SyncedAt:        now,
	}
	return []content.Content{item}, nil
}

func (n *shopifyNormalizer) normalizeCollection(payload []byte, topic string) ([]content.Content, error) {
	var p shopifyProduct // collections share the id/title/timestamps shape
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, errors.NormalizationError("malformed shopify collection payload").
			WithContext("provider", "shopify").
			WithContext("error", err.Error()).Build()
	}
	if p.ID == 0 {
		return nil, errors.NormalizationError("shopify collection payload missing id").
			WithContext("provider", "shopify").Build()
	}
	status := content.StatusPublished
	if strings.HasSuffix(topic, "/delete") {
		status = content.StatusDeleted
	}
	item := content.Content{
		ID:           "shopify-collection-" + strconv.FormatInt(p.ID, 10),
		Type:         content.TypeCollection,
		Status:       status,
		Title:        p.Title,
		ProviderName: "shopify",
		ProviderType: content.ProviderTypeEcommerce,
		CreatedAt:    parseShopifyTime(p.CreatedAt),
		UpdatedAt:    parseShopifyTime(p.UpdatedAt),
		SyncedAt:     time.Now().UTC(),
	}
	return []content.Content{item}, nil
}

func parseShopifyTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now().UTC()
}
