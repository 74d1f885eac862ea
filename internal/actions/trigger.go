package actions

import (
	"encoding/json"
	"fmt"
)

// TriggerConfig is the config of a trigger node: the event kind it listens
// for plus optional attribute filters, e.g. {"toStageId":"won"}.
type TriggerConfig struct {
	EventKind string         `json:"eventKind"`
	Filters   map[string]any `json:"filters,omitempty"`
}

func ParseTrigger(raw string) (TriggerConfig, error) {
	var c TriggerConfig
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return c, fmt.Errorf("trigger config: %w", err)
	}
	if c.EventKind == "" {
		return c, fmt.Errorf("trigger config: eventKind is required")
	}
	return c, nil
}

// Matches reports whether an event of the given kind and attributes satisfies
// this trigger. A filter on an attribute the event lacks never matches.
func (c TriggerConfig) Matches(eventKind string, attrs map[string]any) bool {
	if c.EventKind != eventKind {
		return false
	}
	for key, want := range c.Filters {
		got, ok := attrs[key]
		if !ok || got == nil {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
