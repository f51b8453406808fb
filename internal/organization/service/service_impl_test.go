package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/seatkeeper/internal/audit/domain"
	auditrepository "github.com/smallbiznis/seatkeeper/internal/audit/repository"
	auditservice "github.com/smallbiznis/seatkeeper/internal/audit/service"
	"github.com/smallbiznis/seatkeeper/internal/authorization"
	"github.com/smallbiznis/seatkeeper/internal/clock"
	"github.com/smallbiznis/seatkeeper/internal/identity"
	invitationdomain "github.com/smallbiznis/seatkeeper/internal/invitation/domain"
	"github.com/smallbiznis/seatkeeper/internal/organization/domain"
	"github.com/smallbiznis/seatkeeper/internal/organization/repository"
	seatdomain "github.com/smallbiznis/seatkeeper/internal/seat/domain"
	"github.com/smallbiznis/seatkeeper/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fakeSyncer struct {
	mu      sync.Mutex
	calls   []string
	results seatdomain.Result
}

func (f *fakeSyncer) Trigger(ctx context.Context, orgID snowflake.ID, reason string) seatdomain.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, orgID.String()+":"+reason)
	return f.results
}

func (f *fakeSyncer) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type orgFixture struct {
	params Params

	db       *gorm.DB
	svc      domain.Service
	repo     domain.Repository
	seats    *fakeSyncer
	auditSvc auditdomain.Service
	node     *snowflake.Node
	clock    *clock.FakeClock
}

func newOrgFixture(t *testing.T) *orgFixture {
	t.Helper()
	conn := db.NewTest(t, &domain.Organization{}, &domain.Member{}, &invitationdomain.Invitation{}, &auditdomain.AuditLog{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fakeClock := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := repository.NewRepository(conn)
	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{Log: zaptest.NewLogger(t), Members: repo, Enforcer: enforcer})
	auditSvc := auditservice.NewService(auditservice.Params{
		DB: conn, Log: zaptest.NewLogger(t), GenID: node, Repo: auditrepository.Provide(), Clock: fakeClock,
	})
	seats := &fakeSyncer{results: seatdomain.Result{Success: true, Outcome: seatdomain.OutcomeUpdated}}

	params := Params{
		DB:       conn,
		Log:      zaptest.NewLogger(t),
		Repo:     repo,
		GenID:    node,
		Clock:    fakeClock,
		Authz:    authz,
		Seats:    seats,
		AuditSvc: auditSvc,
	}
	return &orgFixture{
		params:   params,
		db:       conn,
		repo:     repo,
		svc:      NewService(params),
		seats:    seats,
		auditSvc: auditSvc,
		node:     node,
		clock:    fakeClock,
	}
}

var owner = identity.New("user_owner", "owner@acme.test", "Olivia Owner")

func (f *orgFixture) createOrg(t *testing.T, name string) snowflake.ID {
	t.Helper()
	resp, err := f.svc.Create(context.Background(), owner, domain.CreateOrganizationRequest{Name: name})
	require.NoError(t, err)
	id, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)
	return id
}

func (f *orgFixture) addMember(t *testing.T, orgID snowflake.ID, userID, role string) domain.Member {
	t.Helper()
	member := domain.Member{
		ID:        f.node.Generate(),
		OrgID:     orgID,
		UserID:    userID,
		Email:     userID + "@acme.test",
		Role:      role,
		CreatedAt: f.clock.Now(),
	}
	require.NoError(t, f.repo.UpsertMember(context.Background(), member))
	return member
}

func (f *orgFixture) ownerMember(t *testing.T, orgID snowflake.ID) *domain.Member {
	t.Helper()
	member, err := f.repo.FindMember(context.Background(), orgID, owner.UserID)
	require.NoError(t, err)
	require.NotNil(t, member)
	return member
}

func TestCreateAddsOwnerMember(t *testing.T) {
	f := newOrgFixture(t)

	resp, err := f.svc.Create(context.Background(), owner, domain.CreateOrganizationRequest{Name: "  Acme Widgets  "})
	require.NoError(t, err)
	assert.Equal(t, "Acme Widgets", resp.Name)
	assert.Equal(t, "acme-widgets", resp.Slug)

	orgs, err := f.svc.ListByUser(context.Background(), owner)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, domain.RoleOwner, orgs[0].Role)

	members, err := f.svc.ListMembers(context.Background(), owner, resp.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "owner@acme.test", members[0].Email)
	assert.Equal(t, domain.RoleOwner, members[0].Role)
}

func TestCreateValidatesInput(t *testing.T) {
	f := newOrgFixture(t)

	_, err := f.svc.Create(context.Background(), identity.Actor{}, domain.CreateOrganizationRequest{Name: "Acme"})
	assert.ErrorIs(t, err, domain.ErrInvalidUser)

	_, err = f.svc.Create(context.Background(), owner, domain.CreateOrganizationRequest{Name: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestCreateSuffixesCollidingSlug(t *testing.T) {
	f := newOrgFixture(t)

	first, err := f.svc.Create(context.Background(), owner, domain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)
	second, err := f.svc.Create(context.Background(), owner, domain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	assert.Equal(t, "acme", first.Slug)
	assert.NotEqual(t, first.Slug, second.Slug)
	assert.Regexp(t, `^acme-[0-9a-z]{1,6}$`, second.Slug)

	symbols, err := f.svc.Create(context.Background(), owner, domain.CreateOrganizationRequest{Name: "!!!"})
	require.NoError(t, err)
	assert.Regexp(t, `^org-[0-9a-z]{1,6}$`, symbols.Slug)
}

func TestWithSuffixIsIdempotent(t *testing.T) {
	orgID := snowflake.ID(1234567890123)

	once := withSuffix("acme", orgID)
	assert.Regexp(t, `^acme-[0-9a-z]{1,6}$`, once)
	assert.Equal(t, once, withSuffix(once, orgID))
}

func TestGetByIDRequiresMembership(t *testing.T) {
	f := newOrgFixture(t)
	orgID := f.createOrg(t, "Acme")

	resp, err := f.svc.GetByID(context.Background(), owner, orgID.String())
	require.NoError(t, err)
	assert.Equal(t, "Acme", resp.Name)

	_, err = f.svc.GetByID(context.Background(), identity.New("stranger", "", ""), orgID.String())
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.GetByID(context.Background(), owner, f.node.Generate().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.GetByID(context.Background(), owner, "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)

	bySlug, err := f.svc.GetBySlug(context.Background(), owner, "ACME")
	require.NoError(t, err)
	assert.Equal(t, orgID.String(), bySlug.ID)
}

func TestRemoveMemberTriggersSeatSync(t *testing.T) {
	f := newOrgFixture(t)
	orgID := f.createOrg(t, "Acme")
	target := f.addMember(t, orgID, "user_bob", domain.RoleMember)

	result, err := f.svc.RemoveMember(context.Background(), owner, target.ID.String())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, orgID.String(), result.OrganizationID)
	assert.Equal(t, "Acme", result.OrganizationName)
	assert.Equal(t, seatdomain.OutcomeUpdated, result.SeatSync.Outcome)

	count, err := f.svc.MemberCount(context.Background(), orgID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, []string{orgID.String() + ":" + seatdomain.ReasonMemberRemoved}, f.seats.Calls())

	logs, err := f.auditSvc.List(context.Background(), auditdomain.ListAuditLogRequest{OrgID: orgID, Action: auditdomain.ActionMemberRemoved})
	require.NoError(t, err)
	require.Len(t, logs.AuditLogs, 1)
	assert.Equal(t, "u****@acme.test", logs.AuditLogs[0].Metadata["email"])
}

func TestRemoveMemberSucceedsWhenSeatSyncFails(t *testing.T) {
	f := newOrgFixture(t)
	orgID := f.createOrg(t, "Acme")
	target := f.addMember(t, orgID, "user_bob", domain.RoleMember)
	f.seats.results = seatdomain.Result{
		Outcome: seatdomain.OutcomeGatewayError,
		Message: "Stripe error: Something went wrong",
	}

	result, err := f.svc.RemoveMember(context.Background(), owner, target.ID.String())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Stripe error: Something went wrong", result.SeatSync.Warning())

	gone, err := f.repo.GetMember(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestRemoveMemberRejectsLastOwner(t *testing.T) {
	f := newOrgFixture(t)
	orgID := f.createOrg(t, "Acme")
	self := f.ownerMember(t, orgID)

	_, err := f.svc.RemoveMember(context.Background(), owner, self.ID.String())
	assert.ErrorIs(t, err, domain.ErrLastOwner)

	owners, err := f.repo.CountMembers(context.Background(), orgID, domain.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), owners)
	assert.Empty(t, f.seats.Calls())
}

// staleRoleRepository reports a fixed role for every member read outside a
// transaction, the way a read that lost a race would.
type staleRoleRepository struct {
	domain.Repository

	role string
}

func (r staleRoleRepository) GetMember(ctx context.Context, id snowflake.ID) (*domain.Member, error) {
	member, err := r.Repository.GetMember(ctx, id)
	if member != nil {
		member.Role = r.role
	}
	return member, err
}

func TestLastOwnerCheckUsesLockedRows(t *testing.T) {
	f := newOrgFixture(t)
	orgID := f.createOrg(t, "Acme")
	self := f.ownerMember(t, orgID)

	params := f.params
	params.Repo = staleRoleRepository{Repository: f.repo, role: domain.RoleAdmin}
	svc := NewService(params)

	_, err := svc.ChangeRole(context.Background(), owner, self.ID.String(), domain.RoleMember)
	assert.ErrorIs(t, err, domain.ErrLastOwner)

	_, err = svc.RemoveMember(context.Background(), owner, self.ID.String())
	assert.ErrorIs(t, err, domain.ErrLastOwner)

	owners, err := f.repo.CountMembers(context.Background(), orgID, domain.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), owners)
}

func TestOwnersRemovingEachOtherKeepOneOwner(t *testing.T) {
	f := newOrgFixture(t)
	orgID := f.createOrg(t, "Acme")
	self := f.ownerMember(t, orgID)
	coOwner := f.addMember(t, orgID, "user_coowner", domain.RoleOwner)

	results := make(chan error, 2)
	go func() {
		_, err := f.svc.RemoveMember(context.Background(), owner, coOwner.ID.String())
		results <- err
	}()
	go func() {
		_, err := f.svc.RemoveMember(context.Background(), identity.New(coOwner.UserID, "", ""), self.ID.String())
		results <- err
	}()
	first, second := <-results, <-results

	owners, err := f.repo.CountMembers(context.Background(), orgID, domain.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), owners)
	assert.True(t, (first == nil) != (second == nil), "exactly one removal succeeds: %v, %v", first, second)
}

func TestRemoveMemberRejectsSelfRemoval(t *testing.T) {
	f := newOrgFixture(t)
	orgID := f.createOrg(t, "Acme")
	f.addMember(t, orgID, "user_coowner", domain.RoleOwner)
	self := f.ownerMember(t, orgID)

	_, err := f.svc.RemoveMember(context.Background(), owner, self.ID.String())
	assert.ErrorIs(t, err, domain.ErrSelfRemoval)
	assert.Empty(t, f.seats.Calls())
}

func TestRemoveMemberAllowsRemovingCoOwner(t *testing.T) {
	f := newOrgFixture(t)
	orgID := f.createOrg(t, "Acme")
	coOwner := f.addMember(t, orgID, "user_coowner", domain.RoleOwner)

	_, err := f.svc.RemoveMember(context.Background(), owner, coOwner.ID.String())
	require.NoError(t, err)

	owners, err := f.repo.CountMembers(context.Background(), orgID, domain.RoleOwner)
	require.NoError(t, err)
	assert.Equal(t, int64(1), owners)
}

func TestRemoveMemberForbiddenForNonOwners(t *testing.T) {
	f := newOrgFixture(t)
	orgID := f.createOrg(t, "Acme")
	admin := f.addMember(t, orgID, "user_admin", domain.RoleAdmin)
	target := f.addMember(t, orgID, "user_bob", domain.RoleMember)

	_, err := f.svc.RemoveMember(context.Background(), identity.New(admin.UserID, "", ""), target.ID.String())
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.RemoveMember(context.Background(), identity.New("stranger", "", ""), target.ID.String())
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Empty(t, f.seats.Calls())
}

func TestRemoveMemberNotFound(t *testing.T) {
	f := newOrgFixture(t)
	f.createOrg(t, "Acme")

	_, err := f.svc.RemoveMember(context.Background(), owner, f.node.Generate().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.RemoveMember(context.Background(), owner, "garbage")
	assert.ErrorIs(t, err, domain.ErrInvalidMember)
}

func TestChangeRole(t *testing.T) {
	f := newOrgFixture(t)
	orgID := f.createOrg(t, "Acme")
	target := f.addMember(t, orgID, "user_bob", domain.RoleMember)

	result, err := f.svc.ChangeRole(context.Background(), owner, target.ID.String(), " Admin ")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, result.Role)

	stored, err := f.repo.GetMember(context.Background(), target.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, stored.Role)
	assert.Empty(t, f.seats.Calls())

	logs, err := f.auditSvc.List(context.Background(), auditdomain.ListAuditLogRequest{OrgID: orgID, Action: auditdomain.ActionMemberRoleChanged})
	require.NoError(t, err)
	require.Len(t, logs.AuditLogs, 1)
	assert.Equal(t, "member", logs.AuditLogs[0].Metadata["from_role"])
}

func TestChangeRoleValidation(t *testing.T) {
	f := newOrgFixture(t)
	orgID := f.createOrg(t, "Acme")
	target := f.addMember(t, orgID, "user_bob", domain.RoleMember)
	admin := f.addMember(t, orgID, "user_admin", domain.RoleAdmin)

	_, err := f.svc.ChangeRole(context.Background(), owner, target.ID.String(), "superuser")
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	_, err = f.svc.ChangeRole(context.Background(), identity.New(admin.UserID, "", ""), target.ID.String(), domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.ChangeRole(context.Background(), owner, f.node.Generate().String(), domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestChangeRoleRejectsDemotingLastOwner(t *testing.T) {
	f := newOrgFixture(t)
	orgID := f.createOrg(t, "Acme")
	self := f.ownerMember(t, orgID)

	_, err := f.svc.ChangeRole(context.Background(), owner, self.ID.String(), domain.RoleAdmin)
	assert.ErrorIs(t, err, domain.ErrLastOwner)

	f.addMember(t, orgID, "user_coowner", domain.RoleOwner)
	result, err := f.svc.ChangeRole(context.Background(), owner, self.ID.String(), domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, result.Role)
}

func TestDeleteRemovesMembersAndInvitations(t *testing.T) {
	f := newOrgFixture(t)
	orgID := f.createOrg(t, "Acme")
	member := f.addMember(t, orgID, "user_bob", domain.RoleMember)
	require.NoError(t, f.db.Create(&invitationdomain.Invitation{
		ID:        f.node.Generate(),
		OrgID:     orgID,
		Email:     "new@acme.test",
		Role:      domain.RoleMember,
		Status:    invitationdomain.StatusPending,
		InviterID: owner.UserID,
		ExpiresAt: f.clock.Now().Add(time.Hour),
		CreatedAt: f.clock.Now(),
		UpdatedAt: f.clock.Now(),
	}).Error)

	err := f.svc.Delete(context.Background(), identity.New(member.UserID, "", ""), orgID.String())
	assert.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, f.svc.Delete(context.Background(), owner, orgID.String()))

	var members, invitations int64
	require.NoError(t, f.db.Model(&domain.Member{}).Where("org_id = ?", orgID).Count(&members).Error)
	require.NoError(t, f.db.Model(&invitationdomain.Invitation{}).Where("org_id = ?", orgID).Count(&invitations).Error)
	assert.Zero(t, members)
	assert.Zero(t, invitations)

	err = f.svc.Delete(context.Background(), owner, orgID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
