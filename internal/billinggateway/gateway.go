// Package billinggateway talks to the payment processor that owns the
// billable seat quantity of a subscription.
package billinggateway

import (
	"context"
	"errors"
	"fmt"
)

//go:generate mockgen -destination=mock/gateway_mock.go -package=mock github.com/smallbiznis/seatkeeper/internal/billinggateway Gateway

type Gateway interface {
	RetrieveSubscription(ctx context.Context, externalID string) (*ExternalSubscription, error)
	UpdateItemQuantity(ctx context.Context, itemID string, quantity int) error
}

type ExternalSubscription struct {
	ID     string
	Status string
	Items  []Item
}

type Item struct {
	ID       string
	Quantity int
}

const CodeResourceMissing = "resource_missing"

var (
	ErrNotFound      = errors.New("billing_gateway_not_found")
	ErrNotConfigured = errors.New("billing_gateway_not_configured")
)

// Error is a failure reported by the processor.
type Error struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *Error) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("billing gateway: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("billing gateway: %s: %s (status %d)", e.Code, e.Message, e.StatusCode)
}

// Is makes a missing resource match ErrNotFound.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && (e.Code == CodeResourceMissing || e.StatusCode == 404)
}

// Message returns the human-readable part of a gateway failure.
func Message(err error) string {
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return err.Error()
}
