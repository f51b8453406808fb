package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/seatkeeper/internal/identity"
)

// RecordRequest is emitted by the checkout flow once a processor
// subscription exists for an organization.
type RecordRequest struct {
	ReferenceID            string     `json:"reference_id"`
	Plan                   string     `json:"plan"`
	ExternalCustomerID     string     `json:"external_customer_id"`
	ExternalSubscriptionID string     `json:"external_subscription_id"`
	Status                 Status     `json:"status"`
	Seats                  *int       `json:"seats"`
	PeriodStart            *time.Time `json:"period_start"`
	PeriodEnd              *time.Time `json:"period_end"`
	TrialStart             *time.Time `json:"trial_start"`
	TrialEnd               *time.Time `json:"trial_end"`
	CancelAtPeriodEnd      bool       `json:"cancel_at_period_end"`
}

// Summary is the read model shown to organization members.
type Summary struct {
	HasActiveSubscription bool    `json:"has_active_subscription"`
	SubscriptionID        string  `json:"subscription_id,omitempty"`
	Status                *Status `json:"status"`
	Plan                  string  `json:"plan,omitempty"`
	Seats                 *int    `json:"seats"`
	// SeatLimit is the plan's member cap; nil means unlimited or no plan.
	SeatLimit    *int `json:"seat_limit"`
	ProjectLimit int  `json:"project_limit"`
	StorageGB    int  `json:"storage_gb"`
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) (*Subscription, error)
	List(ctx context.Context, actor identity.Actor, orgID string) ([]Subscription, error)
	Summary(ctx context.Context, orgID string) (*Summary, error)
	Invalidate(ctx context.Context, orgID string)
}

var (
	ErrInvalidReference = errors.New("invalid_reference")
	ErrInvalidPlan      = errors.New("invalid_plan")
	ErrInvalidStatus    = errors.New("invalid_status")
	ErrInvalidSeats     = errors.New("invalid_seats")
	ErrForbidden        = errors.New("forbidden")
)
