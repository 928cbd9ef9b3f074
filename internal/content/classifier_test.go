package content

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func item(t Type, s Status) Content {
	return Content{
		ID:           "c1",
		Type:         t,
		Status:       s,
		ProviderName: "contentful",
		ProviderType: ProviderTypeCMS,
	}
}

func TestClassifyProductUpdateIsHighPriority(t *testing.T) {
	c := NewClassifier("acme", "production")

	evt := c.Classify(item(TypeProduct, StatusPublished), true)

	require.Equal(t, EventUpdated, evt.Type)
	require.Equal(t, PriorityHigh, evt.Priority)
	require.True(t, evt.RequiresBuild)
	require.Equal(t, "acme", evt.ClientID)
	require.NotEmpty(t, evt.EventID)
}

func TestClassifyDraftDoesNotRequireBuild(t *testing.T) {
	c := NewClassifier("acme", "production")

	evt := c.Classify(item(TypeArticle, StatusDraft), false)

	require.Equal(t, EventCreated, evt.Type)
	require.Equal(t, PriorityLow, evt.Priority)
	require.False(t, evt.RequiresBuild)
}

func TestClassifyDeletionAlwaysRequiresBuild(t *testing.T) {
	c := NewClassifier("acme", "production")

	evt := c.Classify(item(TypePage, StatusDeleted), true)

	require.Equal(t, EventDeleted, evt.Type)
	require.True(t, evt.RequiresBuild)
	require.Equal(t, PriorityMedium, evt.Priority)
}

func TestClassifyInventoryChange(t *testing.T) {
	c := NewClassifier("acme", "production")

	it := item(TypeProduct, StatusPublished)
	it.InventoryChange = true
	evt := c.Classify(it, true)

	require.Equal(t, EventInventoryUpdated, evt.Type)
	require.True(t, evt.RequiresBuild)
}

func TestClassifyCollectionEvents(t *testing.T) {
	c := NewClassifier("acme", "production")

	created := c.Classify(item(TypeCollection, StatusPublished), false)
	require.Equal(t, EventCollectionCreated, created.Type)
	require.True(t, created.CollectionLevel())

	updated := c.Classify(item(TypeCollection, StatusPublished), true)
	require.Equal(t, EventCollectionUpdated, updated.Type)
}

func TestClassifyCriticalFlagWins(t *testing.T) {
	c := NewClassifier("acme", "production")

	it := item(TypePage, StatusPublished)
	it.Critical = true
	evt := c.Classify(it, true)

	require.Equal(t, PriorityHigh, evt.Priority)
}
