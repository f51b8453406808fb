package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/seatkeeper/internal/audit/domain"
	"github.com/smallbiznis/seatkeeper/internal/authorization"
	"github.com/smallbiznis/seatkeeper/internal/clock"
	"github.com/smallbiznis/seatkeeper/internal/config"
	"github.com/smallbiznis/seatkeeper/internal/identity"
	"github.com/smallbiznis/seatkeeper/internal/invitation/domain"
	"github.com/smallbiznis/seatkeeper/internal/notification"
	"github.com/smallbiznis/seatkeeper/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/seatkeeper/internal/organization/domain"
	seatdomain "github.com/smallbiznis/seatkeeper/internal/seat/domain"
	"github.com/smallbiznis/seatkeeper/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Config    config.Config
	Policy    *config.PolicyHolder
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Members   orgdomain.Repository
	Authz     authorization.Service
	Seats     seatdomain.Syncer
	Notifier  notification.Notifier
	AuditSvc  auditdomain.Service `optional:"true"`
	Metrics   *metrics.Metrics    `optional:"true"`
	Lifecycle fx.Lifecycle        `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	appURL   string
	policy   *config.PolicyHolder
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	members  orgdomain.Repository
	authz    authorization.Service
	seats    seatdomain.Syncer
	notifier notification.Notifier
	auditSvc auditdomain.Service
	metrics  *metrics.Metrics

	// emails tracks invitation emails still being delivered.
	emails sync.WaitGroup
}

func NewService(p Params) domain.Service {
	svc := &Service{
		db:       p.DB,
		log:      p.Log.Named("invitation.service"),
		appURL:   strings.TrimRight(p.Config.AppURL, "/"),
		policy:   p.Policy,
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		members:  p.Members,
		authz:    p.Authz,
		seats:    p.Seats,
		notifier: p.Notifier,
		auditSvc: p.AuditSvc,
		metrics:  p.Metrics,
	}
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{OnStop: svc.Drain})
	}
	return svc
}

// Create invites an email address into an organization. Re-inviting an
// address with a pending invitation refreshes that invitation instead of
// creating a second one.
func (s *Service) Create(ctx context.Context, actor identity.Actor, req domain.CreateRequest) (*domain.InvitationResponse, error) {
	if !actor.Valid() {
		return nil, domain.ErrUnauthenticated
	}
	orgID, err := parseID(req.OrganizationID, domain.ErrInvalidOrganization)
	if err != nil {
		return nil, err
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	role, ok := orgdomain.NormalizeRole(req.Role)
	if !ok {
		return nil, domain.ErrInvalidRole
	}

	if !s.authz.Authorize(ctx, actor.UserID, orgID, authorization.ActionInvitationCreate) {
		return nil, domain.ErrForbidden
	}
	if role == orgdomain.RoleOwner {
		if actorRole, _ := s.authz.Role(ctx, actor.UserID, orgID); actorRole != orgdomain.RoleOwner {
			return nil, domain.ErrForbidden
		}
	}

	existingMember, err := s.members.FindMemberByEmail(ctx, orgID, email)
	if err != nil {
		return nil, err
	}
	if existingMember != nil {
		return nil, domain.ErrAlreadyMember
	}

	org, err := s.members.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrInvalidOrganization
	}

	now := s.clock.Now()
	expiresAt := now.Add(s.policy.Get().Invitation.TTL)

	pending, err := s.repo.FindPending(ctx, orgID, email)
	if err != nil {
		return nil, err
	}

	var inv domain.Invitation
	if pending != nil && !pending.Expired(now) {
		if err := s.repo.Refresh(ctx, pending.ID, role, expiresAt, now); err != nil {
			return nil, err
		}
		inv = *pending
		inv.Role = role
		inv.ExpiresAt = expiresAt
		inv.UpdatedAt = now
	} else {
		inv = domain.Invitation{
			ID:        s.genID.Generate(),
			OrgID:     orgID,
			Email:     email,
			Role:      role,
			Status:    domain.StatusPending,
			InviterID: actor.UserID,
			ExpiresAt: expiresAt,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Insert(ctx, inv); err != nil {
			return nil, err
		}
	}

	s.audit(ctx, orgID, actor, auditdomain.ActionInvitationCreated, inv.ID, map[string]any{
		"invitee_email": email,
		"role":          role,
	})
	s.metrics.ObserveInvitation(string(domain.StatusPending))

	s.sendInvitationEmail(ctx, notification.InvitationEmail{
		ToEmail:          email,
		InviterName:      actor.DisplayName(),
		InviterEmail:     actor.Email,
		OrganizationName: org.Name,
		ResolutionLink:   s.ResolutionLink(inv.ID),
	})

	resp := domain.NewInvitationResponse(inv)
	return &resp, nil
}

// ResolutionLink is the URL the invitee follows to accept.
func (s *Service) ResolutionLink(id snowflake.ID) string {
	return fmt.Sprintf("%s/api/invitations/%s/accept", s.appURL, id.String())
}

func (s *Service) sendInvitationEmail(ctx context.Context, msg notification.InvitationEmail) {
	detached := correlation.Detach(ctx)
	s.emails.Add(1)
	go func() {
		defer s.emails.Done()
		s.notifier.SendInvitationEmail(detached, msg)
	}()
}

// Drain waits for invitation emails in flight, or for ctx to end.
func (s *Service) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.emails.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.log.Warn("invitation emails still in flight at shutdown", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// Resolve accepts an invitation on behalf of the acting identity. The
// membership change commits before seats are reconciled, and reconciliation
// problems are carried in the result.
func (s *Service) Resolve(ctx context.Context, invitationID string, actor identity.Actor) (*domain.ResolveResult, error) {
	id, err := parseID(invitationID, domain.ErrNotFound)
	if err != nil {
		return nil, err
	}
	if !actor.Valid() {
		return nil, domain.ErrUnauthenticated
	}

	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	if inv.Status.Terminal() {
		return nil, &domain.AlreadyResolvedError{Status: inv.Status}
	}

	now := s.clock.Now()
	if inv.Expired(now) {
		if _, err := s.repo.Transition(ctx, inv.ID, domain.StatusPending, domain.StatusExpired, now); err != nil {
			return nil, err
		}
		s.metrics.ObserveInvitation(string(domain.StatusExpired))
		return nil, &domain.AlreadyResolvedError{Status: domain.StatusExpired}
	}

	if !identity.SameEmail(actor.Email, inv.Email) {
		return nil, domain.ErrIdentityMismatch
	}

	var member orgdomain.Member
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		members := s.members.WithTx(tx)

		changed, err := repo.Transition(ctx, inv.ID, domain.StatusPending, domain.StatusAccepted, now)
		if err != nil {
			return err
		}
		if changed == 0 {
			current, err := repo.Get(ctx, inv.ID)
			if err != nil {
				return err
			}
			status := domain.StatusAccepted
			if current != nil {
				status = current.Status
			}
			return &domain.AlreadyResolvedError{Status: status}
		}

		role := inv.Role
		existing, err := members.FindMember(ctx, inv.OrgID, actor.UserID)
		if err != nil {
			return err
		}
		member = orgdomain.Member{
			ID:        s.genID.Generate(),
			OrgID:     inv.OrgID,
			UserID:    actor.UserID,
			Email:     identity.NormalizeEmail(actor.Email),
			Name:      actor.Name,
			CreatedAt: now,
		}
		if existing != nil {
			role = orgdomain.StrongerRole(existing.Role, role)
		}
		member.Role = role

		if err := members.UpsertMember(ctx, member); err != nil {
			return err
		}
		if existing != nil {
			member.ID = existing.ID
			member.CreatedAt = existing.CreatedAt
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	inv.Status = domain.StatusAccepted
	inv.UpdatedAt = now

	s.log.Info("invitation accepted",
		zap.String("invitation_id", inv.ID.String()),
		zap.String("org_id", inv.OrgID.String()),
		zap.String("user_id", actor.UserID),
		zap.String("role", member.Role),
	)
	s.audit(ctx, inv.OrgID, actor, auditdomain.ActionInvitationAccepted, inv.ID, map[string]any{
		"role": member.Role,
	})
	s.metrics.ObserveInvitation(string(domain.StatusAccepted))

	seatSync := s.seats.Trigger(ctx, inv.OrgID, seatdomain.ReasonInvitationAccepted)
	if warning := seatSync.Warning(); warning != "" {
		s.log.Warn("invitation accepted but seats not synced",
			zap.String("org_id", inv.OrgID.String()),
			zap.String("outcome", string(seatSync.Outcome)),
			zap.String("warning", warning),
		)
	}

	memberResp := orgdomain.NewMemberResponse(member)
	return &domain.ResolveResult{
		Status:     domain.ResolutionAccepted,
		Invitation: domain.NewInvitationResponse(*inv),
		Member:     &memberResp,
		SeatSync:   seatSync,
	}, nil
}

func (s *Service) Cancel(ctx context.Context, actor identity.Actor, invitationID string) (*domain.InvitationResponse, error) {
	id, err := parseID(invitationID, domain.ErrInvalidInvitation)
	if err != nil {
		return nil, err
	}

	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, domain.ErrNotFound
	}
	if !s.authz.Authorize(ctx, actor.UserID, inv.OrgID, authorization.ActionInvitationCancel) {
		return nil, domain.ErrForbidden
	}
	if inv.Status != domain.StatusPending {
		return nil, domain.ErrInvalidState
	}

	now := s.clock.Now()
	changed, err := s.repo.Transition(ctx, inv.ID, domain.StatusPending, domain.StatusCanceled, now)
	if err != nil {
		return nil, err
	}
	if changed == 0 {
		return nil, domain.ErrInvalidState
	}

	inv.Status = domain.StatusCanceled
	inv.UpdatedAt = now

	s.audit(ctx, inv.OrgID, actor, auditdomain.ActionInvitationCanceled, inv.ID, map[string]any{
		"invitee_email": inv.Email,
	})
	s.metrics.ObserveInvitation(string(domain.StatusCanceled))

	resp := domain.NewInvitationResponse(*inv)
	return &resp, nil
}

func (s *Service) ListPending(ctx context.Context, actor identity.Actor, orgID string) ([]domain.InvitationResponse, error) {
	id, err := parseID(orgID, domain.ErrInvalidOrganization)
	if err != nil {
		return nil, err
	}
	if !s.authz.Authorize(ctx, actor.UserID, id, authorization.ActionMemberRead) {
		return nil, domain.ErrForbidden
	}

	items, err := s.repo.ListPending(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	resp := make([]domain.InvitationResponse, 0, len(items))
	for _, item := range items {
		if item.Expired(now) {
			continue
		}
		resp = append(resp, domain.NewInvitationResponse(item))
	}
	return resp, nil
}

// ExpireDue moves every pending invitation past its expiry to expired.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	count, err := s.repo.ExpireDue(ctx, now)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.log.Info("expired invitations", zap.Int64("count", count))
	}
	return int(count), nil
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, actor identity.Actor, action string, invitationID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		OrgID:      orgID,
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    actor.UserID,
		Action:     action,
		TargetType: "invitation",
		TargetID:   invitationID.String(),
		Metadata:   metadata,
	})
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", domain.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw {
		return "", domain.ErrInvalidEmail
	}
	return identity.NormalizeEmail(addr.Address), nil
}

func parseID(raw string, invalid error) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, invalid
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, invalid
	}
	return id, nil
}
