// Package content defines the provider-agnostic content model shared by the
// ingestion pipeline: unified content items and the events derived from them.
package content

import "time"

// Type enumerates the unified content types.
type Type string

const (
	TypeProduct    Type = "product"
	TypeArticle    Type = "article"
	TypePage       Type = "page"
	TypeCollection Type = "collection"
	TypeMedia      Type = "media"
)

// Status enumerates the lifecycle states of a content item.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)

// ProviderType distinguishes CMS providers from commerce providers.
type ProviderType string

const (
	ProviderTypeCMS       ProviderType = "cms"
	ProviderTypeEcommerce ProviderType = "ecommerce"
)

// Content is the unified representation of one content/product entity.
// ID is stable across re-normalization of the same source entity; deleted
// items carry only the fields needed to identify them.
type Content struct {
	ID           string       `json:"id"`
	Type         Type         `json:"contentType"`
	Status       Status       `json:"status"`
	Title        string       `json:"title,omitempty"`
	ProviderName string       `json:"providerName"`
	ProviderType ProviderType `json:"providerType"`
	// Critical marks content whose changes must bypass batching.
	Critical bool `json:"critical,omitempty"`
	// InventoryChange marks a stock-level-only update on a product.
	InventoryChange bool      `json:"inventoryChange,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	SyncedAt        time.Time `json:"syncedAt"`
}

// Deleted reports whether the item represents a deletion of the source entity.
func (c Content) Deleted() bool { return c.Status == StatusDeleted }

// Published reports whether the item is publicly visible.
func (c Content) Published() bool { return c.Status == StatusPublished }
