package store

import (
	"errors"
	"fmt"
	"testing"
)

// Compile-time checks that the interfaces are importable and usable.
func TestStoreInterfaceExists(t *testing.T) {
	var _ Store
	var _ LedgerStore
	var _ PayoutStore
}

func TestSentinelErrorsWrap(t *testing.T) {
	sentinels := []error{
		ErrValidation, ErrInsufficientBalance, ErrDuplicateExternalRef, ErrDuplicateTransaction,
		ErrConcurrentModification, ErrNotFound, ErrAlreadyTerminal, ErrInvalidTransition,
		ErrLeaseLost, ErrRetryExhausted, ErrExecutorUnavailable, ErrBalanceMismatch,
	}
	for i, s := range sentinels {
		wrapped := fmt.Errorf("context: %w", s)
		if !errors.Is(wrapped, s) {
			t.Errorf("wrapped sentinel %v not matched", s)
		}
		for j, other := range sentinels {
			if i != j && errors.Is(wrapped, other) {
				t.Errorf("sentinel %v unexpectedly matches %v", s, other)
			}
		}
	}
}
