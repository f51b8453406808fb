// Package domain defines the seat reconciliation contract shared by the
// membership mutations that trigger it.
package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Outcome string

const (
	OutcomeUpdated         Outcome = "updated"
	OutcomeCorrected       Outcome = "corrected"
	OutcomeAlreadySynced   Outcome = "already_synced"
	OutcomeLocalOnly       Outcome = "local_only"
	OutcomeNoSubscription  Outcome = "no_subscription"
	OutcomeExternalMissing Outcome = "external_missing"
	OutcomeGatewayError    Outcome = "gateway_error"
	OutcomeNoItems         Outcome = "no_items"
	OutcomeFailed          Outcome = "failed"
)

const (
	ReasonInvitationAccepted = "invitation.accepted"
	ReasonMemberRemoved      = "member.removed"
	ReasonManual             = "manual"
	ReasonRepair             = "repair"
)

// Result describes one reconciliation run.
type Result struct {
	Success                bool    `json:"success"`
	Outcome                Outcome `json:"outcome"`
	Message                string  `json:"message"`
	MemberCount            int64   `json:"member_count"`
	UpdatedSeats           *int    `json:"updated_seats,omitempty"`
	SubscriptionID         string  `json:"subscription_id,omitempty"`
	ExternalSubscriptionID string  `json:"external_subscription_id,omitempty"`
}

// Warning returns the message a caller should surface next to an otherwise
// successful membership change, or "" when nothing needs attention.
func (r Result) Warning() string {
	switch r.Outcome {
	case OutcomeExternalMissing, OutcomeGatewayError, OutcomeNoItems, OutcomeFailed:
		return r.Message
	default:
		return ""
	}
}

// Syncer is the best-effort entry point used after membership mutations.
// Trigger never fails; problems are reported in the returned Result.
type Syncer interface {
	Trigger(ctx context.Context, orgID snowflake.ID, reason string) Result
}

type Engine interface {
	Syncer
	Reconcile(ctx context.Context, orgID snowflake.ID) (Result, error)
	NeedsSync(ctx context.Context, orgID snowflake.ID) (bool, error)
}
