// Package dispatcher contains the Durable Commit Dispatcher: it subscribes
// to a polling.Adapter from the last persisted checkpoint, dispatches each
// Transaction to a projections.Dispatcher, and periodically persists the
// checkpoint of the last Transaction dispatched successfully.
//
// Delivery is at-least-once: a crash between the dispatch of a Transaction
// and the persistence of its checkpoint replays it on restart.
package dispatcher
