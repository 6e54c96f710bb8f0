// Package correlation propagates the Correlation and Causation ids found
// in the headers of the committed events into the context of the Projectors
// handling them.
package correlation
