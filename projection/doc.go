// Package projection contains the Commit Dispatcher, fanning out the events
// of a Transaction to the Projectors registered for their concrete type.
//
// Projectors are registered by name in a Registry, together with the event
// types they are capable of handling, and are instantiated once per dispatch,
// bound to the UnitOfWork that scopes the effects of the whole Transaction.
package projection
