// Package opentelemetry provides OpenTelemetry instrumentation for the
// projection pipeline: traces and metrics around the Event Store queries
// and the dispatch of Transactions, and observable gauges over the
// progress of each projector and the usage of the commit-page cache.
package opentelemetry
