package content

import "time"

// EventType enumerates the change notifications derived from content items.
type EventType string

const (
	EventCreated           EventType = "created"
	EventUpdated           EventType = "updated"
	EventDeleted           EventType = "deleted"
	EventInventoryUpdated  EventType = "inventory.updated"
	EventCollectionCreated EventType = "collection.created"
	EventCollectionUpdated EventType = "collection.updated"
)

// Priority ranks an event for build-decision purposes.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Event is an immutable notification that a unified content item changed.
// The routing attributes (Priority, RequiresBuild, Environment) are carried
// as filterable metadata so subscribers can select events without
// deserializing the body.
type Event struct {
	EventID       string    `json:"eventId"`
	Type          EventType `json:"eventType"`
	ContentID     string    `json:"contentId"`
	ContentType   Type      `json:"contentType"`
	ProviderName  string    `json:"providerName"`
	ClientID      string    `json:"clientId"`
	Environment   string    `json:"environment"`
	Priority      Priority  `json:"priority"`
	RequiresBuild bool      `json:"requiresBuild"`
	Timestamp     time.Time `json:"timestamp"`
}

// CollectionLevel reports whether the event affects a whole collection,
// which forces a full rebuild downstream.
func (e Event) CollectionLevel() bool {
	return e.Type == EventCollectionCreated || e.Type == EventCollectionUpdated ||
		e.ContentType == TypeCollection
}
