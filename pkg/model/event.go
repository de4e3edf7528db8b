package model

import "time"

// EntityKind distinguishes the two event-producing entities.
type EntityKind string

const (
	EntityJob      EntityKind = "job"
	EntityWorkflow EntityKind = "workflow"
)

// Event is a small record published to an entity's subscribers whenever its
// state changes. Ordering is guaranteed per subscriber and per entity only.
type Event struct {
	EntityKind EntityKind `json:"entity_kind"`
	EntityID   string     `json:"entity_id"`
	State      string     `json:"state"`
	Progress   float64    `json:"progress"`
	TilesDone  int        `json:"tiles_done,omitempty"`
	TilesTotal int        `json:"tiles_total,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	At         time.Time  `json:"at"`
}
