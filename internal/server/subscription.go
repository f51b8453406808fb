package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/seatkeeper/internal/authorization"
	orgdomain "github.com/smallbiznis/seatkeeper/internal/organization/domain"
	subscriptiondomain "github.com/smallbiznis/seatkeeper/internal/subscription/domain"
	"go.uber.org/zap"
)

type recordSubscriptionRequest struct {
	Plan                   string     `json:"plan"`
	ExternalCustomerID     string     `json:"external_customer_id"`
	ExternalSubscriptionID string     `json:"external_subscription_id"`
	Status                 string     `json:"status"`
	Seats                  *int       `json:"seats"`
	PeriodStart            *time.Time `json:"period_start"`
	PeriodEnd              *time.Time `json:"period_end"`
	TrialStart             *time.Time `json:"trial_start"`
	TrialEnd               *time.Time `json:"trial_end"`
	CancelAtPeriodEnd      bool       `json:"cancel_at_period_end"`
}

func (s *Server) GetSubscriptionSummary(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	orgID, err := parsePathID(c.Param("id"), orgdomain.ErrInvalidOrganization)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	if !s.authzSvc.Authorize(ctx, actor.UserID, orgID, authorization.ActionSubscriptionRead) {
		AbortWithError(c, ErrForbidden)
		return
	}

	summary, err := s.subscriptionSvc.Summary(ctx, orgID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// RecordSubscription stores the subscription produced by a completed checkout.
// Only an owner of the organization may record it.
func (s *Server) RecordSubscription(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	referenceID := strings.TrimSpace(c.Param("id"))
	ctx := c.Request.Context()
	if !s.authzSvc.AuthorizeReference(ctx, actor.UserID, referenceID, authorization.ReferenceUpgradeSubscription) {
		AbortWithError(c, ErrForbidden)
		return
	}

	var req recordSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	sub, err := s.subscriptionSvc.Record(ctx, subscriptiondomain.RecordRequest{
		ReferenceID:            referenceID,
		Plan:                   req.Plan,
		ExternalCustomerID:     req.ExternalCustomerID,
		ExternalSubscriptionID: req.ExternalSubscriptionID,
		Status:                 subscriptiondomain.Status(req.Status),
		Seats:                  req.Seats,
		PeriodStart:            req.PeriodStart,
		PeriodEnd:              req.PeriodEnd,
		TrialStart:             req.TrialStart,
		TrialEnd:               req.TrialEnd,
		CancelAtPeriodEnd:      req.CancelAtPeriodEnd,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) ListSubscriptions(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	items, err := s.subscriptionSvc.List(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

// SyncSeats runs a manual reconciliation for the organization. The result is
// returned even when the processor could not be updated.
func (s *Server) SyncSeats(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	orgID, err := parsePathID(c.Param("id"), orgdomain.ErrInvalidOrganization)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	if !s.authzSvc.Authorize(ctx, actor.UserID, orgID, authorization.ActionSubscriptionSync) {
		AbortWithError(c, ErrForbidden)
		return
	}

	result, err := s.seatEngine.Reconcile(ctx, orgID)
	if err != nil {
		s.log.Warn("manual seat sync failed", zap.String("org_id", orgID.String()), zap.Error(err))
		AbortWithError(c, err)
		return
	}

	respondWithSeatSync(c, http.StatusOK, result, result)
}
