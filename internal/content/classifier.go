package content

import (
	"time"

	"github.com/google/uuid"
)

// Classifier derives events from normalized content items: event type from
// status and prior state, priority from business impact, and whether the
// change warrants a site rebuild.
type Classifier struct {
	ClientID    string
	Environment string
}

// NewClassifier constructs a Classifier scoped to one client/environment.
func NewClassifier(clientID, environment string) *Classifier {
	return &Classifier{ClientID: clientID, Environment: environment}
}

// Classify computes the event for one content item. hadPrior reports whether
// the store already held a version of the item before this change.
func (c *Classifier) Classify(item Content, hadPrior bool) Event {
	evtType := c.eventType(item, hadPrior)
	return Event{
		EventID:       uuid.NewString(),
		Type:          evtType,
		ContentID:     item.ID,
		ContentType:   item.Type,
		ProviderName:  item.ProviderName,
		ClientID:      c.ClientID,
		Environment:   c.Environment,
		Priority:      c.priority(item, evtType),
		RequiresBuild: c.requiresBuild(item, evtType),
		Timestamp:     time.Now().UTC(),
	}
}

func (c *Classifier) eventType(item Content, hadPrior bool) EventType {
	switch {
	case item.Deleted():
		return EventDeleted
	case item.InventoryChange && item.Type == TypeProduct:
		return EventInventoryUpdated
	case item.Type == TypeCollection && !hadPrior:
		return EventCollectionCreated
	case item.Type == TypeCollection:
		return EventCollectionUpdated
	case hadPrior:
		return EventUpdated
	default:
		return EventCreated
	}
}

func (c *Classifier) priority(item Content, evtType EventType) Priority {
	if item.Critical {
		return PriorityHigh
	}
	if item.Type == TypeProduct && (evtType == EventCreated || evtType == EventUpdated) {
		return PriorityHigh
	}
	if c.requiresBuild(item, evtType) {
		return PriorityMedium
	}
	return PriorityLow
}

// requiresBuild is true iff the resulting content is published and the change
// is a create/update/delete, or it is an inventory change on a product.
// Draft-only changes never require a build.
func (c *Classifier) requiresBuild(item Content, evtType EventType) bool {
	if evtType == EventInventoryUpdated {
		return true
	}
	if evtType == EventDeleted {
		return true
	}
	return item.Published()
}
