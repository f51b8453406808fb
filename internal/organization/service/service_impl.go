package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	auditdomain "github.com/smallbiznis/seatkeeper/internal/audit/domain"
	"github.com/smallbiznis/seatkeeper/internal/authorization"
	"github.com/smallbiznis/seatkeeper/internal/clock"
	"github.com/smallbiznis/seatkeeper/internal/identity"
	obslogger "github.com/smallbiznis/seatkeeper/internal/observability/logger"
	"github.com/smallbiznis/seatkeeper/internal/organization/domain"
	seatdomain "github.com/smallbiznis/seatkeeper/internal/seat/domain"
	"github.com/smallbiznis/seatkeeper/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const slugSuffixLength = 6

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     domain.Repository
	GenID    *snowflake.Node
	Clock    clock.Clock
	Authz    authorization.Service
	Seats    seatdomain.Syncer
	AuditSvc auditdomain.Service `optional:"true"`
}

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	genID    *snowflake.Node
	clock    clock.Clock
	authz    authorization.Service
	seats    seatdomain.Syncer
	auditSvc auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &service{
		db:       p.DB,
		log:      p.Log.Named("organization.service"),
		repo:     p.Repo,
		genID:    p.GenID,
		clock:    p.Clock,
		authz:    p.Authz,
		seats:    p.Seats,
		auditSvc: p.AuditSvc,
	}
}

func (s *service) Create(ctx context.Context, actor identity.Actor, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	if !actor.Valid() {
		return nil, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	orgID := s.genID.Generate()
	orgSlug, err := s.uniqueSlug(ctx, name, orgID)
	if err != nil {
		return nil, err
	}

	org := domain.Organization{
		ID:        orgID,
		Name:      name,
		Slug:      orgSlug,
		Metadata:  datatypes.JSONMap{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	owner := domain.Member{
		OrgID:     orgID,
		UserID:    actor.UserID,
		Email:     identity.NormalizeEmail(actor.Email),
		Name:      actor.Name,
		Role:      domain.RoleOwner,
		CreatedAt: now,
	}
	err = s.insertWithOwner(ctx, org, owner)
	if err != nil && db.IsDuplicateKeyErr(err) && org.Slug != withSuffix(org.Slug, orgID) {
		// Another organization claimed the slug after the lookup.
		org.Slug = withSuffix(org.Slug, orgID)
		err = s.insertWithOwner(ctx, org, owner)
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("org_id", orgID.String()),
		zap.String("slug", org.Slug),
		zap.String("owner_user_id", actor.UserID),
	)

	return toOrganizationResponse(org), nil
}

func (s *service) insertWithOwner(ctx context.Context, org domain.Organization, owner domain.Member) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrganization(ctx, org); err != nil {
			return err
		}
		owner.ID = s.genID.Generate()
		return repo.UpsertMember(ctx, owner)
	})
}

func (s *service) uniqueSlug(ctx context.Context, name string, orgID snowflake.ID) (string, error) {
	base := slug.Make(name)
	if base == "" {
		return withSuffix("org", orgID), nil
	}

	existing, err := s.repo.GetOrganizationBySlug(ctx, base)
	if err != nil {
		return "", err
	}
	if existing == nil {
		return base, nil
	}
	return withSuffix(base, orgID), nil
}

// withSuffix appends the tail of the organization id in base36. It is
// idempotent so an already suffixed slug is returned unchanged.
func withSuffix(base string, orgID snowflake.ID) string {
	suffix := orgID.Base36()
	if len(suffix) > slugSuffixLength {
		suffix = suffix[len(suffix)-slugSuffixLength:]
	}
	if strings.HasSuffix(base, "-"+suffix) {
		return base
	}
	return base + "-" + suffix
}

func (s *service) GetByID(ctx context.Context, actor identity.Actor, id string) (*domain.OrganizationResponse, error) {
	orgID, err := parseID(id, domain.ErrInvalidOrganization)
	if err != nil {
		return nil, err
	}

	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	if !s.authz.Authorize(ctx, actor.UserID, org.ID, authorization.ActionOrganizationRead) {
		return nil, domain.ErrForbidden
	}
	return toOrganizationResponse(*org), nil
}

func (s *service) GetBySlug(ctx context.Context, actor identity.Actor, orgSlug string) (*domain.OrganizationResponse, error) {
	orgSlug = strings.ToLower(strings.TrimSpace(orgSlug))
	if orgSlug == "" {
		return nil, domain.ErrInvalidOrganization
	}

	org, err := s.repo.GetOrganizationBySlug(ctx, orgSlug)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrNotFound
	}
	if !s.authz.Authorize(ctx, actor.UserID, org.ID, authorization.ActionOrganizationRead) {
		return nil, domain.ErrForbidden
	}
	return toOrganizationResponse(*org), nil
}

func (s *service) ListByUser(ctx context.Context, actor identity.Actor) ([]domain.OrganizationListResponseItem, error) {
	if !actor.Valid() {
		return nil, domain.ErrInvalidUser
	}

	items, err := s.repo.ListOrganizationsByUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.OrganizationListResponseItem, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.OrganizationListResponseItem{
			ID:        item.ID.String(),
			Name:      item.Name,
			Slug:      item.Slug,
			Role:      item.Role,
			CreatedAt: item.CreatedAt,
		})
	}

	return resp, nil
}

func (s *service) ListMembers(ctx context.Context, actor identity.Actor, id string) ([]domain.MemberResponse, error) {
	orgID, err := parseID(id, domain.ErrInvalidOrganization)
	if err != nil {
		return nil, err
	}
	if !s.authz.Authorize(ctx, actor.UserID, orgID, authorization.ActionMemberRead) {
		return nil, domain.ErrForbidden
	}

	members, err := s.repo.ListMembers(ctx, orgID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.MemberResponse, 0, len(members))
	for _, member := range members {
		resp = append(resp, domain.NewMemberResponse(member))
	}
	return resp, nil
}

func (s *service) MemberCount(ctx context.Context, orgID snowflake.ID) (int64, error) {
	if orgID == 0 {
		return 0, domain.ErrInvalidOrganization
	}
	return s.repo.CountMembers(ctx, orgID)
}

func (s *service) Delete(ctx context.Context, actor identity.Actor, id string) error {
	orgID, err := parseID(id, domain.ErrInvalidOrganization)
	if err != nil {
		return err
	}

	org, err := s.repo.GetOrganization(ctx, orgID)
	if err != nil {
		return err
	}
	if org == nil {
		return domain.ErrNotFound
	}
	if !s.authz.Authorize(ctx, actor.UserID, orgID, authorization.ActionOrganizationDelete) {
		return domain.ErrForbidden
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).DeleteOrganization(ctx, orgID)
	})
	if err != nil {
		return err
	}

	s.log.Info("organization deleted",
		zap.String("org_id", orgID.String()),
		zap.String("actor_user_id", actor.UserID),
	)
	return nil
}

// RemoveMember deletes a member and then reconciles seats. A failed
// reconciliation is reported in the result and never fails the removal.
func (s *service) RemoveMember(ctx context.Context, actor identity.Actor, memberID string) (*domain.RemoveMemberResult, error) {
	id, err := parseID(memberID, domain.ErrInvalidMember)
	if err != nil {
		return nil, err
	}

	target, err := s.repo.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, domain.ErrNotFound
	}
	if !s.authz.Authorize(ctx, actor.UserID, target.OrgID, authorization.ActionMemberDelete) {
		return nil, domain.ErrForbidden
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := keepAnOwner(ctx, repo, target); err != nil {
			return err
		}
		if target.UserID == actor.UserID {
			return domain.ErrSelfRemoval
		}
		return repo.DeleteMember(ctx, target.ID)
	})
	if err != nil {
		return nil, err
	}

	org, err := s.repo.GetOrganization(ctx, target.OrgID)
	if err != nil {
		return nil, err
	}
	orgName := ""
	if org != nil {
		orgName = org.Name
	}

	log := obslogger.WithActor(obslogger.WithOrg(s.log, target.OrgID.String()), string(auditdomain.ActorTypeUser), actor.UserID)
	log.Info("member removed",
		zap.String("member_id", target.ID.String()),
		zap.String("member_user_id", target.UserID),
		zap.String("role", target.Role),
	)
	s.audit(ctx, target.OrgID, actor, auditdomain.ActionMemberRemoved, target.ID, map[string]any{
		"user_id": target.UserID,
		"email":   target.Email,
		"role":    target.Role,
	})

	seatSync := s.seats.Trigger(ctx, target.OrgID, seatdomain.ReasonMemberRemoved)
	if warning := seatSync.Warning(); warning != "" {
		log.Warn("member removed but seats not synced",
			zap.String("outcome", string(seatSync.Outcome)),
			zap.String("warning", warning),
		)
	}

	return &domain.RemoveMemberResult{
		Success:          true,
		OrganizationID:   target.OrgID.String(),
		OrganizationName: orgName,
		SeatSync:         seatSync,
	}, nil
}

// ChangeRole updates a member's role. Role changes do not affect seats.
func (s *service) ChangeRole(ctx context.Context, actor identity.Actor, memberID string, role string) (*domain.ChangeRoleResult, error) {
	newRole, ok := domain.NormalizeRole(role)
	if !ok {
		return nil, domain.ErrInvalidRole
	}
	id, err := parseID(memberID, domain.ErrInvalidMember)
	if err != nil {
		return nil, err
	}

	target, err := s.repo.GetMember(ctx, id)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, domain.ErrNotFound
	}
	if !s.authz.Authorize(ctx, actor.UserID, target.OrgID, authorization.ActionMemberUpdate) {
		return nil, domain.ErrForbidden
	}
	if target.Role == newRole {
		return &domain.ChangeRoleResult{Success: true, Role: newRole}, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := keepAnOwner(ctx, repo, target); err != nil {
			return err
		}
		return repo.UpdateMemberRole(ctx, target.ID, newRole)
	})
	if err != nil {
		return nil, err
	}

	s.audit(ctx, target.OrgID, actor, auditdomain.ActionMemberRoleChanged, target.ID, map[string]any{
		"user_id":   target.UserID,
		"from_role": target.Role,
		"to_role":   newRole,
	})

	return &domain.ChangeRoleResult{Success: true, Role: newRole}, nil
}

// keepAnOwner locks the owner rows of the target's organization and fails
// with ErrLastOwner when the target is the only owner left. Ownership is
// decided from the locked rows, not from the earlier unlocked read.
func keepAnOwner(ctx context.Context, repo domain.Repository, target *domain.Member) error {
	owners, err := repo.LockOwners(ctx, target.OrgID)
	if err != nil {
		return err
	}
	for _, o := range owners {
		if o.ID == target.ID {
			if len(owners) <= 1 {
				return domain.ErrLastOwner
			}
			return nil
		}
	}
	return nil
}

func (s *service) audit(ctx context.Context, orgID snowflake.ID, actor identity.Actor, action string, memberID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		OrgID:      orgID,
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    actor.UserID,
		Action:     action,
		TargetType: "member",
		TargetID:   memberID.String(),
		Metadata:   metadata,
	})
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

func toOrganizationResponse(org domain.Organization) *domain.OrganizationResponse {
	return &domain.OrganizationResponse{
		ID:        org.ID.String(),
		Name:      org.Name,
		Slug:      org.Slug,
		CreatedAt: org.CreatedAt,
	}
}
