package websocket

import (
	"slices"
)

// eventAllowlist holds the event types clients may send.
type eventAllowlist struct {
	allowed []string
}

func newEventAllowlist(eventTypes ...string) *eventAllowlist {
	valid := make([]string, 0, len(eventTypes))
	for _, t := range eventTypes {
		if t != "" {
			valid = append(valid, t)
		}
	}
	return &eventAllowlist{allowed: valid}
}

// IsAllowed reports whether clients may send eventType.
func (a *eventAllowlist) IsAllowed(eventType string) bool {
	if eventType == "" {
		return false
	}
	return slices.Contains(a.allowed, eventType)
}
