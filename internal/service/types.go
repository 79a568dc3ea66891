// Package service holds the process-wide registries of the map viewer:
// live sessions and the dataset event bus.
package service

// Event resources.
const (
	ResourceDatasets = "datasets"
	ResourceSessions = "sessions"
)

// Event actions.
const (
	ActionLoaded   = "loaded"
	ActionFailed   = "failed"
	ActionReloaded = "reloaded"
	ActionCreated  = "created"
	ActionRemoved  = "removed"
)
