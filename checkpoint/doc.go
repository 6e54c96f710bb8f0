// Package checkpoint exposes the Token type, an opaque position into the
// stream of committed transactions, and the Store interface, used to save the
// current progress of a named dispatcher, so that it might survive
// application restarts without reprocessing the whole Event Store.
package checkpoint
