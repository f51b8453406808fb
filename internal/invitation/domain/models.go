package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusCanceled || s == StatusExpired
}

type Invitation struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index" json:"organization_id"`
	Email     string       `gorm:"type:text;not null;index" json:"email"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	Status    Status       `gorm:"type:text;not null;default:'pending'" json:"status"`
	InviterID string       `gorm:"type:text;not null" json:"inviter_id"`
	ExpiresAt time.Time    `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Invitation) TableName() string { return "invitations" }

// Expired reports whether a pending invitation has passed its expiry.
func (i Invitation) Expired(now time.Time) bool {
	return i.Status == StatusPending && !now.Before(i.ExpiresAt)
}

// Repository persists invitations. Missing rows are returned as nil without an error.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	Insert(ctx context.Context, inv Invitation) error
	Get(ctx context.Context, id snowflake.ID) (*Invitation, error)
	FindPending(ctx context.Context, orgID snowflake.ID, email string) (*Invitation, error)
	ListPending(ctx context.Context, orgID snowflake.ID) ([]Invitation, error)
	Refresh(ctx context.Context, id snowflake.ID, role string, expiresAt time.Time, at time.Time) error
	// Transition moves the invitation from one status to another and returns
	// the number of rows changed; zero means it was no longer in the from status.
	Transition(ctx context.Context, id snowflake.ID, from Status, to Status, at time.Time) (int64, error)
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}
