package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/seatkeeper/internal/audit/domain"
	"github.com/smallbiznis/seatkeeper/internal/authorization"
	"github.com/smallbiznis/seatkeeper/internal/config"
	"github.com/smallbiznis/seatkeeper/internal/identity"
	invitationdomain "github.com/smallbiznis/seatkeeper/internal/invitation/domain"
	"github.com/smallbiznis/seatkeeper/internal/observability"
	obslogger "github.com/smallbiznis/seatkeeper/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/seatkeeper/internal/observability/metrics"
	obstracing "github.com/smallbiznis/seatkeeper/internal/observability/tracing"
	orgdomain "github.com/smallbiznis/seatkeeper/internal/organization/domain"
	seatdomain "github.com/smallbiznis/seatkeeper/internal/seat/domain"
	subscriptiondomain "github.com/smallbiznis/seatkeeper/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// NewEngine builds the gin engine with the shared middleware chain. CORS is
// installed only when allowedOrigins is non-empty.
func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.Metrics, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if len(allowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     allowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
			AllowHeaders:     []string{"Content-Type", "X-Request-ID", identity.HeaderUserID, identity.HeaderUserEmail, identity.HeaderUserName},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type ginParams struct {
	fx.In

	Cfg     config.Config
	ObsCfg  observability.Config
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func registerGin(p ginParams) *gin.Engine {
	if p.ObsCfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(p.ObsCfg, p.Metrics, p.Cfg.CORSAllowedOrigins)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.String("addr", srv.Addr), zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", srv.Addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	log             *zap.Logger
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	organizationSvc orgdomain.Service
	invitationSvc   invitationdomain.Service
	subscriptionSvc subscriptiondomain.Service
	seatEngine      seatdomain.Engine
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Log             *zap.Logger
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	OrganizationSvc orgdomain.Service
	InvitationSvc   invitationdomain.Service
	SubscriptionSvc subscriptiondomain.Service
	SeatEngine      seatdomain.Engine
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		log:             p.Log.Named("http.server"),
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		organizationSvc: p.OrganizationSvc,
		invitationSvc:   p.InvitationSvc,
		subscriptionSvc: p.SubscriptionSvc,
		seatEngine:      p.SeatEngine,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", IdentityRequired())

	orgs := api.Group("/organizations")
	orgs.POST("", s.CreateOrganization)
	orgs.GET("", s.ListOrganizations)

	org := orgs.Group("/:id", OrgContext())
	org.GET("", s.GetOrganization)
	org.DELETE("", s.DeleteOrganization)
	org.GET("/members", s.ListMembers)
	org.POST("/invitations", s.CreateInvitation)
	org.GET("/invitations", s.ListInvitations)
	org.GET("/subscription", s.GetSubscriptionSummary)
	org.GET("/subscriptions", s.ListSubscriptions)
	org.POST("/subscriptions", s.RecordSubscription)
	org.POST("/seats/sync", s.SyncSeats)
	org.GET("/audit-logs", s.ListAuditLogs)

	api.DELETE("/members/:memberId", s.RemoveMember)
	api.PATCH("/members/:memberId/role", s.ChangeMemberRole)

	api.POST("/invitations/:invitationId/cancel", s.CancelInvitation)
	api.GET("/invitations/:invitationId/accept", s.AcceptInvitation)
	api.POST("/invitations/:invitationId/accept", s.AcceptInvitation)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
