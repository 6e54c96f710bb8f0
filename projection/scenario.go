package projection

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/get-eventually/go-projections"
)

// Given starts a Scenario to test the effects of dispatching
// the specified Transactions, in order.
func Given(transactions ...projections.Transaction) Scenario {
	return Scenario{given: transactions}
}

// Scenario is a test helper for Projectors, dispatching a sequence of
// Transactions and asserting on the outcome.
type Scenario struct {
	given []projections.Transaction
}

// Then asserts that all the Transactions are dispatched successfully,
// and runs the specified assertion on the resulting read model.
func (s Scenario) Then(assertion func(t *testing.T)) ScenarioThen {
	return ScenarioThen{given: s.given, then: assertion}
}

// ThenError asserts that the dispatch of the last Transaction fails
// with the specified error.
func (s Scenario) ThenError(err error) ScenarioThen {
	return ScenarioThen{given: s.given, thenError: err, wantError: true}
}

// ThenFails asserts that the dispatch of the last Transaction fails.
func (s Scenario) ThenFails() ScenarioThen {
	return ScenarioThen{given: s.given, wantError: true}
}

// ScenarioThen is the final step of a Scenario.
type ScenarioThen struct {
	given     []projections.Transaction
	then      func(t *testing.T)
	thenError error
	wantError bool
}

// Using runs the Scenario with the specified Dispatcher.
func (s ScenarioThen) Using(t *testing.T, dispatcher projections.Dispatcher) {
	t.Helper()

	ctx := context.Background()

	var err error

	for i, tx := range s.given {
		err = dispatcher.Dispatch(ctx, tx)

		if i < len(s.given)-1 && !assert.NoError(t, err) {
			return
		}
	}

	if !s.wantError {
		if assert.NoError(t, err) && s.then != nil {
			s.then(t)
		}

		return
	}

	if !assert.Error(t, err) {
		return
	}

	if s.thenError != nil && !assert.True(t, errors.Is(err, s.thenError)) {
		t.Log("Unexpected error received:", err)
	}
}
