package dispatch

import (
	"time"

	"git.home.luguber.info/inful/buildrelay/internal/content"
)

// BuildType distinguishes immediate builds from batch-window builds.
type BuildType string

const (
	BuildImmediate BuildType = "immediate"
	BuildBatch     BuildType = "batch"
)

// BuildContext is the aggregated invocation payload handed to the build
// service: enough for it to choose incremental vs full rebuild without
// replaying individual events.
type BuildContext struct {
	BuildType           BuildType      `json:"buildType"`
	TotalEvents         int            `json:"totalEvents"`
	ContentTypeCounts   map[string]int `json:"contentTypeCounts"`
	ProviderCounts      map[string]int `json:"providerCounts"`
	EventTypeCounts     map[string]int `json:"eventTypeCounts"`
	AffectedContentIDs  []string       `json:"affectedContentIds"`
	RequiresFullRebuild bool           `json:"requiresFullRebuild"`
	ClientID            string         `json:"clientId"`
	Timestamp           time.Time      `json:"timestamp"`
}

// aggregateContext folds events into a BuildContext. A full rebuild is forced
// by any collection-level or deletion event, or by an event count too large
// to apply incrementally.
func aggregateContext(buildType BuildType, clientID string, events []content.Event, fullRebuildThreshold int) BuildContext {
	bc := BuildContext{
		BuildType:          buildType,
		TotalEvents:        len(events),
		ContentTypeCounts:  make(map[string]int),
		ProviderCounts:     make(map[string]int),
		EventTypeCounts:    make(map[string]int),
		AffectedContentIDs: make([]string, 0, len(events)),
		ClientID:           clientID,
		Timestamp:          time.Now().UTC(),
	}
	seen := make(map[string]bool, len(events))
	for _, evt := range events {
		bc.ContentTypeCounts[string(evt.ContentType)]++
		bc.ProviderCounts[evt.ProviderName]++
		bc.EventTypeCounts[string(evt.Type)]++
		if !seen[evt.ContentID] {
			seen[evt.ContentID] = true
			bc.AffectedContentIDs = append(bc.AffectedContentIDs, evt.ContentID)
		}
		if evt.CollectionLevel() || evt.Type == content.EventDeleted {
			bc.RequiresFullRebuild = true
		}
	}
	if fullRebuildThreshold > 0 && len(events) > fullRebuildThreshold {
		bc.RequiresFullRebuild = true
	}
	return bc
}
