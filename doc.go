// Package projections contains the types shared by every stage of a projection
// pipeline, which reads committed transactions from an Event Store and
// delivers them, in order, to the Projectors building your Read Models.
//
// The pipeline is made of several packages, you might want to start from
// `polling` to subscribe to an Event Store, and `dispatcher` to run a durable,
// checkpointed subscription on top of it.
//
// `projection` routes each Transaction to the registered Projectors,
// `retry` adds a retry policy around dispatching, and `stats` keeps track of
// throughput and estimated time to catch up.
package projections
