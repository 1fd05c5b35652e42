package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "sequence conflict", err: ErrSequenceConflict, want: true},
		{name: "customer code conflict", err: ErrCustomerCodeConflict, want: true},
		{name: "wrapped conflict", err: fmt.Errorf("insert order: %w", ErrSequenceConflict), want: true},
		{name: "exhausted is not a conflict", err: ErrAllocationExhausted, want: false},
		{name: "not found", err: ErrAccountNotFound, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConflict(tt.err); got != tt.want {
				t.Errorf("IsConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(ErrAccountNotFound) || !IsNotFound(ErrOrderNotFound) {
		t.Fatal("expected not found errors to be classified")
	}
	if IsNotFound(ErrSequenceConflict) {
		t.Fatal("conflict must not be classified as not found")
	}
}

func TestInvalidInput(t *testing.T) {
	if InvalidInput() != nil {
		t.Fatal("expected nil for empty error list")
	}

	err := InvalidInput(ErrItemsRequired, ErrAmountMismatch)
	if !IsInvalidInput(err) {
		t.Fatalf("expected ErrInvalidInput in chain, got %v", err)
	}
	if !errors.Is(err, ErrItemsRequired) || !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected original violations in chain, got %v", err)
	}
}

func TestIsIdempotencyConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "idempotency already exists", err: ErrIdempotencyKeyAlreadyExists, want: true},
		{name: "idempotency hash mismatch", err: ErrIdempotencyHashMismatch, want: true},
		{name: "wrapped idempotency conflict", err: errors.Join(ErrIdempotencyHashMismatch, errors.New("extra context")), want: true},
		{name: "non idempotency error", err: ErrSequenceConflict, want: false},
		{name: "nil error", err: nil, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsIdempotencyConflict(tc.err); got != tc.want {
				t.Errorf("IsIdempotencyConflict() = %v, want %v", got, tc.want)
			}
		})
	}
}
