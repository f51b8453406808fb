package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/seatkeeper/internal/identity"
	orgdomain "github.com/smallbiznis/seatkeeper/internal/organization/domain"
	seatdomain "github.com/smallbiznis/seatkeeper/internal/seat/domain"
)

type CreateRequest struct {
	OrganizationID string `json:"organization_id"`
	Email          string `json:"email"`
	Role           string `json:"role"`
}

// Resolution is the outcome reported to the invitee.
type Resolution string

const (
	ResolutionAccepted        Resolution = "accepted"
	ResolutionAlreadyAccepted Resolution = "already_accepted"
	ResolutionCanceled        Resolution = "canceled"
	ResolutionExpired         Resolution = "expired"
	ResolutionNotFound        Resolution = "not_found"
	ResolutionNotForYou       Resolution = "not_for_you"
)

type ResolveResult struct {
	Status     Resolution                `json:"status"`
	Invitation InvitationResponse        `json:"invitation"`
	Member     *orgdomain.MemberResponse `json:"member,omitempty"`
	SeatSync   seatdomain.Result         `json:"seat_sync"`
}

type InvitationResponse struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Email          string    `json:"email"`
	Role           string    `json:"role"`
	Status         Status    `json:"status"`
	InviterID      string    `json:"inviter_id"`
	ExpiresAt      time.Time `json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
}

func NewInvitationResponse(inv Invitation) InvitationResponse {
	return InvitationResponse{
		ID:             inv.ID.String(),
		OrganizationID: inv.OrgID.String(),
		Email:          inv.Email,
		Role:           inv.Role,
		Status:         inv.Status,
		InviterID:      inv.InviterID,
		ExpiresAt:      inv.ExpiresAt,
		CreatedAt:      inv.CreatedAt,
	}
}

type Service interface {
	Create(ctx context.Context, actor identity.Actor, req CreateRequest) (*InvitationResponse, error)
	Resolve(ctx context.Context, invitationID string, actor identity.Actor) (*ResolveResult, error)
	Cancel(ctx context.Context, actor identity.Actor, invitationID string) (*InvitationResponse, error)
	ListPending(ctx context.Context, actor identity.Actor, orgID string) ([]InvitationResponse, error)
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

var (
	ErrNotFound            = errors.New("invitation_not_found")
	ErrAlreadyResolved     = errors.New("already_resolved")
	ErrIdentityMismatch    = errors.New("identity_mismatch")
	ErrInvalidState        = errors.New("invalid_state")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidEmail        = errors.New("invalid_email")
	ErrInvalidRole         = errors.New("invalid_role")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidInvitation   = errors.New("invalid_invitation")
	ErrAlreadyMember       = errors.New("already_member")
	ErrUnauthenticated     = errors.New("unauthenticated")
)

// AlreadyResolvedError carries the terminal status of an invitation that can
// no longer be accepted.
type AlreadyResolvedError struct {
	Status Status
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrAlreadyResolved.Error(), e.Status)
}

func (e *AlreadyResolvedError) Is(target error) bool {
	return target == ErrAlreadyResolved
}

// ResolutionFor maps a Resolve error to the status reported to the invitee.
func ResolutionFor(err error) (Resolution, bool) {
	var resolved *AlreadyResolvedError
	switch {
	case err == nil:
		return ResolutionAccepted, true
	case errors.As(err, &resolved):
		switch resolved.Status {
		case StatusCanceled:
			return ResolutionCanceled, true
		case StatusExpired:
			return ResolutionExpired, true
		default:
			return ResolutionAlreadyAccepted, true
		}
	case errors.Is(err, ErrNotFound):
		return ResolutionNotFound, true
	case errors.Is(err, ErrIdentityMismatch):
		return ResolutionNotForYou, true
	default:
		return "", false
	}
}
