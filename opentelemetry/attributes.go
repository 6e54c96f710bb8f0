package opentelemetry

import "go.opentelemetry.io/otel/attribute"

// Attribute keys used by the instrumentation in this package.
const (
	ErrorKey         attribute.Key = "error"
	CheckpointKey    attribute.Key = "projections.checkpoint"
	LimitKey         attribute.Key = "projections.limit"
	CommitsCountKey  attribute.Key = "projections.commits.count"
	TransactionIDKey attribute.Key = "projections.transaction.id"
	StreamIDKey      attribute.Key = "projections.stream.id"
	EventsCountKey   attribute.Key = "projections.events.count"
	ProjectorKey     attribute.Key = "projections.projector"
	CacheResultKey   attribute.Key = "projections.cache.result"
)
