// Package polling contains an Event Source Adapter that periodically polls an
// Event Store for new Commits, starting from the checkpoint of each
// Subscription, and pushes them as Transactions to the Subscription handler.
//
// Each Subscription receives its Transactions strictly in checkpoint order,
// one at a time: the handler is never invoked concurrently for the same
// Subscription.
//
// Pages of Commits already fetched are kept in a bounded cache, so that
// Subscriptions catching up from the same checkpoint do not hit the
// Event Store more than once.
package polling
