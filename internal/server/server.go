package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/feeledger/internal/apikey"
	apikeydomain "github.com/smallbiznis/feeledger/internal/apikey/domain"
	"github.com/smallbiznis/feeledger/internal/audit"
	auditdomain "github.com/smallbiznis/feeledger/internal/audit/domain"
	"github.com/smallbiznis/feeledger/internal/authorization"
	"github.com/smallbiznis/feeledger/internal/config"
	"github.com/smallbiznis/feeledger/internal/feeplan"
	feeplandomain "github.com/smallbiznis/feeledger/internal/feeplan/domain"
	"github.com/smallbiznis/feeledger/internal/ledger"
	ledgerdomain "github.com/smallbiznis/feeledger/internal/ledger/domain"
	"github.com/smallbiznis/feeledger/internal/observability"
	obsmiddleware "github.com/smallbiznis/feeledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/feeledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/feeledger/internal/observability/tracing"
	"github.com/smallbiznis/feeledger/internal/ratelimit"
	"github.com/smallbiznis/feeledger/internal/report"
	reportdomain "github.com/smallbiznis/feeledger/internal/report/domain"
	"github.com/smallbiznis/feeledger/internal/sequence"
	"github.com/smallbiznis/feeledger/internal/statement"
	statementdomain "github.com/smallbiznis/feeledger/internal/statement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	apikey.Module,
	sequence.Module,
	feeplan.Module,
	ledger.Module,
	statement.Module,
	report.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
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
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine       *gin.Engine
	apiKeySvc    apikeydomain.Service
	authzSvc     authorization.Service
	auditSvc     auditdomain.Service
	feePlanSvc   feeplandomain.Service
	ledgerSvc    ledgerdomain.Service
	statementSvc statementdomain.Service
	reportSvc    reportdomain.Service
	limiter      ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	APIKeySvc    apikeydomain.Service
	AuthzSvc     authorization.Service
	AuditSvc     auditdomain.Service
	FeePlanSvc   feeplandomain.Service
	LedgerSvc    ledgerdomain.Service
	StatementSvc statementdomain.Service
	ReportSvc    reportdomain.Service
	Limiter      ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		apiKeySvc:    p.APIKeySvc,
		authzSvc:     p.AuthzSvc,
		auditSvc:     p.AuditSvc,
		feePlanSvc:   p.FeePlanSvc,
		ledgerSvc:    p.LedgerSvc,
		statementSvc: p.StatementSvc,
		reportSvc:    p.ReportSvc,
		limiter:      p.Limiter,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.APIKeyRequired(), s.RateLimited())

	fees := api.Group("/fees")
	fees.GET("/next-receipt-no", s.authorize(authorization.ObjectFeeReceipt, authorization.ActionFeeView), s.NextReceiptNo)
	fees.GET("/report", s.authorize(authorization.ObjectReport, authorization.ActionReportView), s.FeeReport)
	fees.POST("", s.authorize(authorization.ObjectFeeReceipt, authorization.ActionFeeCollect), s.CollectFee)
	fees.GET("/:id", s.authorize(authorization.ObjectFeeReceipt, authorization.ActionFeeView), s.GetFee)
	fees.PUT("/:id", s.authorize(authorization.ObjectFeeReceipt, authorization.ActionFeeUpdate), s.UpdateFee)
	fees.DELETE("/:id", s.authorize(authorization.ObjectFeeReceipt, authorization.ActionFeeDelete), s.DeleteFee)

	students := api.Group("/students/:id", StudentContext())
	students.GET("/payment-summary", s.authorize(authorization.ObjectFeeReceipt, authorization.ActionFeeView), s.PaymentSummary)
	students.GET("/payment-history", s.authorize(authorization.ObjectFeeReceipt, authorization.ActionFeeView), s.PaymentHistory)
	students.PUT("/fee-profile", s.authorize(authorization.ObjectFeeProfile, authorization.ActionFeeProfileSync), s.SyncFeeProfile)

	api.GET("/audit-logs", s.authorize(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)

	keys := api.Group("/api-keys")
	keys.GET("", s.authorize(authorization.ObjectAPIKey, authorization.ActionAPIKeyView), s.ListAPIKeys)
	keys.POST("", s.authorize(authorization.ObjectAPIKey, authorization.ActionAPIKeyCreate), s.CreateAPIKey)
	keys.POST("/:key_id/rotate", s.authorize(authorization.ObjectAPIKey, authorization.ActionAPIKeyRotate), s.RotateAPIKey)
	keys.DELETE("/:key_id", s.authorize(authorization.ObjectAPIKey, authorization.ActionAPIKeyRevoke), s.RevokeAPIKey)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
