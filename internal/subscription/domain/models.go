// Package domain contains persistence models for subscription records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status mirrors the payment processor's subscription status.
type Status string

const (
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusTrialing          Status = "trialing"
	StatusActive            Status = "active"
	StatusPastDue           Status = "past_due"
	StatusCanceled          Status = "canceled"
	StatusUnpaid            Status = "unpaid"
	StatusPaused            Status = "paused"
	StatusEnded             Status = "ended"
)

// Current reports whether the subscription currently grants access.
func (s Status) Current() bool {
	return s == StatusActive || s == StatusTrialing
}

// Subscription is the local mirror of a processor subscription. ReferenceID
// holds the owning organization id. Rows are never hard-deleted.
type Subscription struct {
	ID                     snowflake.ID `gorm:"primaryKey" json:"id"`
	ReferenceID            string       `gorm:"type:text;not null;index" json:"reference_id"`
	Plan                   string       `gorm:"type:text;not null" json:"plan"`
	ExternalCustomerID     *string      `gorm:"type:text" json:"external_customer_id,omitempty"`
	ExternalSubscriptionID *string      `gorm:"type:text;uniqueIndex:ux_subscriptions_external_id" json:"external_subscription_id,omitempty"`
	Status                 Status       `gorm:"type:text;not null;default:'incomplete'" json:"status"`
	Seats                  *int         `json:"seats,omitempty"`
	PeriodStart            *time.Time   `json:"period_start,omitempty"`
	PeriodEnd              *time.Time   `json:"period_end,omitempty"`
	TrialStart             *time.Time   `json:"trial_start,omitempty"`
	TrialEnd               *time.Time   `json:"trial_end,omitempty"`
	CancelAtPeriodEnd      bool         `gorm:"not null;default:false" json:"cancel_at_period_end"`
	CancelAt               *time.Time   `json:"cancel_at,omitempty"`
	CanceledAt             *time.Time   `json:"canceled_at,omitempty"`
	EndedAt                *time.Time   `json:"ended_at,omitempty"`
	CreatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt              time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// ExternalID returns the processor subscription id, or "" for local-only records.
func (s Subscription) ExternalID() string {
	if s.ExternalSubscriptionID == nil {
		return ""
	}
	return *s.ExternalSubscriptionID
}

// SelectTarget picks the subscription seats are billed against: the first
// active one, otherwise the first trialing one.
func SelectTarget(subs []Subscription) *Subscription {
	for i := range subs {
		if subs[i].Status == StatusActive {
			return &subs[i]
		}
	}
	for i := range subs {
		if subs[i].Status == StatusTrialing {
			return &subs[i]
		}
	}
	return nil
}
