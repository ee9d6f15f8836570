package model

import "time"

type EventType string

const (
	EventTreeUpdated   EventType = "skill-tree-updated"
	EventStatusUpdated EventType = "status-updated"
	EventTreeDeleted   EventType = "skill-tree-deleted"
)

// Event announces a change to other listeners of the same store. Origin
// identifies the publishing process so subscribers can skip their own events.
type Event struct {
	Type      EventType `json:"type"`
	TreeID    string    `json:"treeId"`
	UpdatedAt time.Time `json:"updatedAt"`
	Origin    string    `json:"origin,omitempty"`
}
