package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/seatkeeper/internal/audit/domain"
	"github.com/smallbiznis/seatkeeper/internal/authorization"
	"github.com/smallbiznis/seatkeeper/internal/identity"
	invitationdomain "github.com/smallbiznis/seatkeeper/internal/invitation/domain"
	"github.com/smallbiznis/seatkeeper/internal/observability"
	orgdomain "github.com/smallbiznis/seatkeeper/internal/organization/domain"
	seatdomain "github.com/smallbiznis/seatkeeper/internal/seat/domain"
	subscriptiondomain "github.com/smallbiznis/seatkeeper/internal/subscription/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testOrgID = "1700000000000000001"

type fakeOrganizations struct {
	orgdomain.Service

	removeResult *orgdomain.RemoveMemberResult
	removeErr    error
	roleErr      error
	gotRole      string
}

func (f *fakeOrganizations) RemoveMember(ctx context.Context, actor identity.Actor, memberID string) (*orgdomain.RemoveMemberResult, error) {
	return f.removeResult, f.removeErr
}

func (f *fakeOrganizations) ChangeRole(ctx context.Context, actor identity.Actor, memberID string, role string) (*orgdomain.ChangeRoleResult, error) {
	f.gotRole = role
	if f.roleErr != nil {
		return nil, f.roleErr
	}
	return &orgdomain.ChangeRoleResult{Success: true, Role: role}, nil
}

func (f *fakeOrganizations) ListByUser(ctx context.Context, actor identity.Actor) ([]orgdomain.OrganizationListResponseItem, error) {
	return []orgdomain.OrganizationListResponseItem{{ID: testOrgID, Name: "Acme", Role: orgdomain.RoleOwner}}, nil
}

type fakeInvitations struct {
	invitationdomain.Service

	resolveErr error
	calls      int
}

func (f *fakeInvitations) Resolve(ctx context.Context, invitationID string, actor identity.Actor) (*invitationdomain.ResolveResult, error) {
	f.calls++
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return &invitationdomain.ResolveResult{
		Status:     invitationdomain.ResolutionAccepted,
		Invitation: invitationdomain.InvitationResponse{ID: invitationID, Status: invitationdomain.StatusAccepted},
		SeatSync:   seatdomain.Result{Success: true, Outcome: seatdomain.OutcomeUpdated},
	}, nil
}

type fakeEngine struct {
	seatdomain.Engine

	result     seatdomain.Result
	reconciled []snowflake.ID
}

func (f *fakeEngine) Reconcile(ctx context.Context, orgID snowflake.ID) (seatdomain.Result, error) {
	f.reconciled = append(f.reconciled, orgID)
	return f.result, nil
}

type fakeAuthz struct {
	allowed map[string]bool
	owners  map[string]bool

	referenceActions []string
}

func (f *fakeAuthz) Authorize(ctx context.Context, actorUserID string, orgID snowflake.ID, capability string) bool {
	return f.allowed[capability]
}

func (f *fakeAuthz) AuthorizeReference(ctx context.Context, actorUserID string, referenceID string, action string) bool {
	f.referenceActions = append(f.referenceActions, action)
	return f.owners[actorUserID]
}

func (f *fakeAuthz) Role(ctx context.Context, actorUserID string, orgID snowflake.ID) (string, bool) {
	return "", false
}

type fakeAudit struct {
	auditdomain.Service

	lastRequest auditdomain.ListAuditLogRequest
}

func (f *fakeAudit) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	f.lastRequest = req
	return auditdomain.ListAuditLogResponse{AuditLogs: []auditdomain.AuditLog{{Action: auditdomain.ActionMemberRemoved}}}, nil
}

type fakeSubscriptions struct {
	subscriptiondomain.Service

	recorded []subscriptiondomain.RecordRequest
}

func (f *fakeSubscriptions) Record(ctx context.Context, req subscriptiondomain.RecordRequest) (*subscriptiondomain.Subscription, error) {
	f.recorded = append(f.recorded, req)
	return &subscriptiondomain.Subscription{
		ID:          1,
		ReferenceID: req.ReferenceID,
		Plan:        req.Plan,
		Status:      req.Status,
		Seats:       req.Seats,
	}, nil
}

type testServer struct {
	engine *gin.Engine
	orgs   *fakeOrganizations
	invs   *fakeInvitations
	seats  *fakeEngine
	authz  *fakeAuthz
	audit  *fakeAudit
	subs   *fakeSubscriptions
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		engine: NewEngine(observability.Config{}, nil, []string{"https://app.seatkeeper.test"}),
		orgs:   &fakeOrganizations{},
		invs:   &fakeInvitations{},
		seats:  &fakeEngine{},
		authz:  &fakeAuthz{allowed: map[string]bool{}, owners: map[string]bool{}},
		audit:  &fakeAudit{},
		subs:   &fakeSubscriptions{},
	}
	var _ authorization.Service = ts.authz

	NewServer(ServerParams{
		Gin:             ts.engine,
		Log:             zaptest.NewLogger(t),
		AuthzSvc:        ts.authz,
		AuditSvc:        ts.audit,
		OrganizationSvc: ts.orgs,
		InvitationSvc:   ts.invs,
		SubscriptionSvc: ts.subs,
		SeatEngine:      ts.seats,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	return ts.doAs(t, "user_owner", method, path, body)
}

func (ts *testServer) doAs(t *testing.T, userID, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(identity.HeaderUserID, userID)
	req.Header.Set(identity.HeaderUserEmail, "owner@acme.test")

	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/organizations", nil)
	req.Header.Set("Origin", "https://app.seatkeeper.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", identity.HeaderUserID)
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.seatkeeper.test", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestIdentityRequired(t *testing.T) {
	ts := newTestServer(t)

	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/organizations", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
}

func TestListOrganizations(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/organizations", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []orgdomain.OrganizationListResponseItem `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "Acme", body.Data[0].Name)
}

func TestRemoveMemberSurfacesSeatWarning(t *testing.T) {
	ts := newTestServer(t)
	ts.orgs.removeResult = &orgdomain.RemoveMemberResult{
		Success:        true,
		OrganizationID: testOrgID,
		SeatSync: seatdomain.Result{
			Outcome: seatdomain.OutcomeGatewayError,
			Message: "Stripe error: card_declined",
		},
	}

	rec := ts.do(t, http.MethodDelete, "/api/members/42", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data    orgdomain.RemoveMemberResult `json:"data"`
		Warning string                       `json:"warning"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Data.Success)
	assert.Equal(t, "Stripe error: card_declined", body.Warning)
}

func TestRemoveMemberWithoutWarning(t *testing.T) {
	ts := newTestServer(t)
	ts.orgs.removeResult = &orgdomain.RemoveMemberResult{
		Success:  true,
		SeatSync: seatdomain.Result{Success: true, Outcome: seatdomain.OutcomeUpdated},
	}

	rec := ts.do(t, http.MethodDelete, "/api/members/42", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body, "warning")
}

func TestRemoveMemberErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"last owner", orgdomain.ErrLastOwner, http.StatusConflict, "last_owner"},
		{"self removal", orgdomain.ErrSelfRemoval, http.StatusConflict, "self_removal"},
		{"forbidden", orgdomain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"not found", orgdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"invalid member", orgdomain.ErrInvalidMember, http.StatusBadRequest, "validation_error"},
		{"unexpected", errors.New("db down"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.orgs.removeErr = tc.err

			rec := ts.do(t, http.MethodDelete, "/api/members/42", nil)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, tc.wantType, decodeError(t, rec).Type)
		})
	}
}

func TestValidationErrorNamesField(t *testing.T) {
	ts := newTestServer(t)
	ts.orgs.removeErr = orgdomain.ErrInvalidMember

	rec := ts.do(t, http.MethodDelete, "/api/members/abc", nil)

	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "member", payload.Errors[0].Field)
	assert.Equal(t, "invalid_member", payload.Errors[0].Code)
}

func TestChangeMemberRole(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPatch, "/api/members/42/role", changeRoleRequest{Role: "admin"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", ts.orgs.gotRole)
}

func TestChangeMemberRoleInvalidRole(t *testing.T) {
	ts := newTestServer(t)
	ts.orgs.roleErr = orgdomain.ErrInvalidRole

	rec := ts.do(t, http.MethodPatch, "/api/members/42/role", changeRoleRequest{Role: "guest"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_role", decodeError(t, rec).Type)
}

func TestCreateOrganizationRejectsMalformedBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/organizations", bytes.NewBufferString("{"))
	req.Header.Set(identity.HeaderUserID, "user_owner")
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "request", payload.Errors[0].Field)
}

func TestAcceptInvitationByLinkAndButton(t *testing.T) {
	ts := newTestServer(t)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := ts.do(t, method, "/api/invitations/77/accept", nil)
		require.Equal(t, http.StatusOK, rec.Code, method)

		var body struct {
			Data invitationdomain.ResolveResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, invitationdomain.ResolutionAccepted, body.Data.Status)
		assert.Equal(t, "77", body.Data.Invitation.ID)
	}
	assert.Equal(t, 2, ts.invs.calls)
}

func TestAcceptInvitationFailuresCarryResolution(t *testing.T) {
	cases := []struct {
		name           string
		err            error
		wantStatus     int
		wantType       string
		wantResolution string
	}{
		{"canceled", &invitationdomain.AlreadyResolvedError{Status: invitationdomain.StatusCanceled}, http.StatusConflict, "already_resolved", "canceled"},
		{"expired", &invitationdomain.AlreadyResolvedError{Status: invitationdomain.StatusExpired}, http.StatusConflict, "already_resolved", "expired"},
		{"accepted", &invitationdomain.AlreadyResolvedError{Status: invitationdomain.StatusAccepted}, http.StatusConflict, "already_resolved", "already_accepted"},
		{"mismatch", invitationdomain.ErrIdentityMismatch, http.StatusForbidden, "identity_mismatch", "not_for_you"},
		{"missing", invitationdomain.ErrNotFound, http.StatusNotFound, "not_found", "not_found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.invs.resolveErr = tc.err

			rec := ts.do(t, http.MethodPost, "/api/invitations/77/accept", nil)

			assert.Equal(t, tc.wantStatus, rec.Code)
			payload := decodeError(t, rec)
			assert.Equal(t, tc.wantType, payload.Type)
			assert.Equal(t, tc.wantResolution, payload.Status)
		})
	}
}

func TestSyncSeatsRequiresCapability(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/organizations/"+testOrgID+"/seats/sync", nil)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, ts.seats.reconciled)
}

func TestSyncSeatsReturnsResult(t *testing.T) {
	ts := newTestServer(t)
	ts.authz.allowed[authorization.ActionSubscriptionSync] = true
	seats := 3
	ts.seats.result = seatdomain.Result{
		Success:      true,
		Outcome:      seatdomain.OutcomeUpdated,
		Message:      "Updated subscription to 3 seats",
		MemberCount:  3,
		UpdatedSeats: &seats,
	}

	rec := ts.do(t, http.MethodPost, "/api/organizations/"+testOrgID+"/seats/sync", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.seats.reconciled, 1)
	assert.Equal(t, testOrgID, ts.seats.reconciled[0].String())

	var body struct {
		Data seatdomain.Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, seatdomain.OutcomeUpdated, body.Data.Outcome)
	require.NotNil(t, body.Data.UpdatedSeats)
	assert.Equal(t, 3, *body.Data.UpdatedSeats)
}

func TestSyncSeatsRejectsInvalidOrganization(t *testing.T) {
	ts := newTestServer(t)
	ts.authz.allowed[authorization.ActionSubscriptionSync] = true

	rec := ts.do(t, http.MethodPost, "/api/organizations/not-an-id/seats/sync", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, ts.seats.reconciled)
}

func TestRecordSubscriptionRequiresOwner(t *testing.T) {
	ts := newTestServer(t)
	ts.authz.owners["user_owner"] = true
	body := map[string]any{"plan": "team", "status": "active", "seats": 2, "external_subscription_id": "sub_1"}

	rec := ts.doAs(t, "user_admin", http.MethodPost, "/api/organizations/"+testOrgID+"/subscriptions", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, ts.subs.recorded)

	rec = ts.do(t, http.MethodPost, "/api/organizations/"+testOrgID+"/subscriptions", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.subs.recorded, 1)
	got := ts.subs.recorded[0]
	assert.Equal(t, testOrgID, got.ReferenceID)
	assert.Equal(t, subscriptiondomain.StatusActive, got.Status)
	assert.Equal(t, "sub_1", got.ExternalSubscriptionID)
	require.NotNil(t, got.Seats)
	assert.Equal(t, 2, *got.Seats)
	assert.Equal(t, []string{authorization.ReferenceUpgradeSubscription, authorization.ReferenceUpgradeSubscription}, ts.authz.referenceActions)
}

func TestListAuditLogs(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/organizations/"+testOrgID+"/audit-logs?limit=5&action=member.removed", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	ts.authz.allowed[authorization.ActionAuditLogRead] = true
	rec = ts.do(t, http.MethodGet, "/api/organizations/"+testOrgID+"/audit-logs?limit=5&action=member.removed", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, ts.audit.lastRequest.Limit)
	assert.Equal(t, auditdomain.ActionMemberRemoved, ts.audit.lastRequest.Action)
	assert.Equal(t, testOrgID, ts.audit.lastRequest.OrgID.String())
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/unknown", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}
