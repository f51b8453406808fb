package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/seatkeeper/internal/audit/domain"
	orgdomain "github.com/smallbiznis/seatkeeper/internal/organization/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

// Service answers capability questions for an actor inside one organization.
// It never returns an error: any failure to decide is a denial.
type Service interface {
	Authorize(ctx context.Context, actorUserID string, orgID snowflake.ID, capability string) bool
	AuthorizeReference(ctx context.Context, actorUserID string, referenceID string, action string) bool
	Role(ctx context.Context, actorUserID string, orgID snowflake.ID) (string, bool)
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Members  orgdomain.Repository
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	members  orgdomain.Repository
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads the role model, persists policies through gorm and seeds
// the built-in role grants.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if err := enforcer.BuildRoleLinks(); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		members:  p.Members,
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actorUserID string, orgID snowflake.ID, capability string) bool {
	actorUserID = strings.TrimSpace(actorUserID)
	capability = strings.TrimSpace(capability)
	if actorUserID == "" || orgID == 0 || capability == "" {
		return false
	}

	role, ok := s.Role(ctx, actorUserID, orgID)
	if !ok {
		s.auditDenied(ctx, actorUserID, orgID, capability, "not_a_member")
		return false
	}

	allowed, err := s.enforcer.Enforce(roleSubject(role), objectOf(capability), capability)
	if err != nil {
		s.log.Error("casbin enforce failed",
			zap.String("org_id", orgID.String()),
			zap.String("capability", capability),
			zap.Error(err),
		)
		return false
	}
	if !allowed {
		s.auditDenied(ctx, actorUserID, orgID, capability, "role:"+role)
	}
	return allowed
}

// AuthorizeReference guards billing-reference actions where the reference id
// names an organization. Billing actions need the owner role exactly; any
// other action only needs membership.
func (s *ServiceImpl) AuthorizeReference(ctx context.Context, actorUserID string, referenceID string, action string) bool {
	orgID, err := snowflake.ParseString(strings.TrimSpace(referenceID))
	if err != nil || orgID == 0 {
		return false
	}

	role, ok := s.Role(ctx, strings.TrimSpace(actorUserID), orgID)
	if !ok {
		return false
	}
	if isBillingReferenceAction(strings.TrimSpace(action)) {
		return role == orgdomain.RoleOwner
	}
	return true
}

func (s *ServiceImpl) Role(ctx context.Context, actorUserID string, orgID snowflake.ID) (string, bool) {
	if actorUserID == "" || orgID == 0 {
		return "", false
	}
	member, err := s.members.FindMember(ctx, orgID, actorUserID)
	if err != nil {
		s.log.Error("member lookup failed",
			zap.String("org_id", orgID.String()),
			zap.String("user_id", actorUserID),
			zap.Error(err),
		)
		return "", false
	}
	if member == nil {
		return "", false
	}
	role, ok := orgdomain.NormalizeRole(member.Role)
	if !ok {
		s.log.Warn("member has unknown role",
			zap.String("member_id", member.ID.String()),
			zap.String("role", member.Role),
		)
		return "", false
	}
	return role, true
}

func (s *ServiceImpl) auditDenied(ctx context.Context, actorUserID string, orgID snowflake.ID, capability string, reason string) {
	if s.auditSvc == nil {
		return
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		OrgID:      orgID,
		ActorType:  auditdomain.ActorTypeUser,
		ActorID:    actorUserID,
		Action:     auditdomain.ActionAuthorizationDenied,
		TargetType: "capability",
		TargetID:   capability,
		Metadata: map[string]any{
			"object": objectOf(capability),
			"reason": reason,
		},
	})
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	for _, policy := range rolePolicies() {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	for _, link := range roleInheritance {
		if _, err := enforcer.AddGroupingPolicy(link); err != nil {
			return err
		}
	}
	return nil
}
