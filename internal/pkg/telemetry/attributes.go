package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys used across the service.
const (
	AttrOwnerID    = attribute.Key("survey.owner_id")
	AttrSessionID  = attribute.Key("survey.session_id")
	AttrTrackSize  = attribute.Key("survey.track_size")
	AttrHullPoints = attribute.Key("survey.hull_points")
	AttrHullKind   = attribute.Key("survey.hull_builder")
)
