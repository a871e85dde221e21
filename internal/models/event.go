package models

// EventKind classifies operator notifications.
type EventKind string

const (
	EventOpportunity   EventKind = "opportunity"
	EventPosition      EventKind = "position"
	EventRisk          EventKind = "risk"
	EventTrailArmed    EventKind = "trail_armed"
	EventStopMoved     EventKind = "stop_moved"
	EventClosed        EventKind = "closed"
	EventProtectionGap EventKind = "protection_gap"
	EventAlert         EventKind = "alert"
)
