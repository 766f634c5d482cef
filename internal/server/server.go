package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/taxverify/internal/apikey"
	apikeydomain "github.com/smallbiznis/taxverify/internal/apikey/domain"
	"github.com/smallbiznis/taxverify/internal/artifactstore"
	"github.com/smallbiznis/taxverify/internal/audit"
	auditdomain "github.com/smallbiznis/taxverify/internal/audit/domain"
	"github.com/smallbiznis/taxverify/internal/authorization"
	"github.com/smallbiznis/taxverify/internal/config"
	"github.com/smallbiznis/taxverify/internal/employment"
	employmentdomain "github.com/smallbiznis/taxverify/internal/employment/domain"
	"github.com/smallbiznis/taxverify/internal/expert"
	expertdomain "github.com/smallbiznis/taxverify/internal/expert/domain"
	"github.com/smallbiznis/taxverify/internal/observability"
	obsmiddleware "github.com/smallbiznis/taxverify/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/taxverify/internal/observability/metrics"
	obstracing "github.com/smallbiznis/taxverify/internal/observability/tracing"
	"github.com/smallbiznis/taxverify/internal/ratelimit"
	"github.com/smallbiznis/taxverify/internal/receipt"
	receiptdomain "github.com/smallbiznis/taxverify/internal/receipt/domain"
	"github.com/smallbiznis/taxverify/internal/transcript"
	transcriptdomain "github.com/smallbiznis/taxverify/internal/transcript/domain"
	"github.com/smallbiznis/taxverify/internal/transcriptrequest"
	trdomain "github.com/smallbiznis/taxverify/internal/transcriptrequest/domain"
	"github.com/smallbiznis/taxverify/internal/usagereport"
	"github.com/smallbiznis/taxverify/internal/webhook"
	"github.com/smallbiznis/taxverify/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	telemetry.Module,
	ratelimit.Module,
	artifactstore.Module,
	usagereport.Module,
	webhook.Module,
	transcriptrequest.Module,
	transcript.Module,
	expert.Module,
	employment.Module,
	receipt.Module,
	apikey.Module,
	authorization.Module,
	audit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware(cfg.IsProduction()))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(cfg, obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:              ":" + strings.TrimPrefix(strings.TrimSpace(cfg.Port), ":"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	requestSvc     trdomain.Service
	transcriptSvc  transcriptdomain.Service
	expertSvc      expertdomain.Service
	employmentSvc  employmentdomain.Service
	receiptSvc     receiptdomain.Service
	apiKeySvc      apikeydomain.Service
	authzSvc       authorization.Service
	auditSvc       auditdomain.Service
	limiter        *ratelimit.EmploymentLimiter
	obsMetrics     *obsmetrics.Metrics
	telemetry      *telemetry.Metrics
	maxUploadBytes int64
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	RequestSvc    trdomain.Service
	TranscriptSvc transcriptdomain.Service
	ExpertSvc     expertdomain.Service
	EmploymentSvc employmentdomain.Service
	ReceiptSvc    receiptdomain.Service
	APIKeySvc     apikeydomain.Service
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	Limiter       *ratelimit.EmploymentLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics          `optional:"true"`
	Telemetry     *telemetry.Metrics           `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		requestSvc:     p.RequestSvc,
		transcriptSvc:  p.TranscriptSvc,
		expertSvc:      p.ExpertSvc,
		employmentSvc:  p.EmploymentSvc,
		receiptSvc:     p.ReceiptSvc,
		apiKeySvc:      p.APIKeySvc,
		authzSvc:       p.AuthzSvc,
		auditSvc:       p.AuditSvc,
		limiter:        p.Limiter,
		obsMetrics:     p.ObsMetrics,
		telemetry:      p.Telemetry,
		maxUploadBytes: p.Cfg.Ingest.MaxUploadBytes,
	}

	svc.registerRootRoutes()
	svc.registerTranscriptRoutes()
	svc.registerExpertRoutes()
	svc.registerEmploymentRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRootRoutes() {
	s.engine.GET("/", s.ServiceInfo)
	s.engine.GET("/health", s.Health)
}

func (s *Server) registerTranscriptRoutes() {
	requests := s.engine.Group("/api/v1/transcript-requests")
	requests.POST("/create", s.CreateTranscriptRequest)
	requests.POST("/lookup", s.LookupTranscriptRequest)
	requests.GET("/:requestId", s.GetTranscriptRequest)
	requests.GET("/:requestId/receipt", s.GetReceipt)

	s.engine.POST("/api/v1/transcripts/upload", s.UploadTranscript)
}

func (s *Server) registerExpertRoutes() {
	experts := s.engine.Group("/api/v1/experts")
	experts.POST("/login", s.ExpertLogin)
	experts.GET("/:expertId/activity", s.ExpertActivity)
}

func (s *Server) registerEmploymentRoutes() {
	employmentRoutes := s.engine.Group("/api/v1/employment")
	employmentRoutes.GET("/status/:requestId",
		s.employmentChain(authorization.ActionEmploymentRead, s.GetEmploymentStatus)...)
	employmentRoutes.POST("/verify",
		s.employmentChain(authorization.ActionEmploymentVerify, s.VerifyEmployment)...)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrRouteNotFound)
	})
}
