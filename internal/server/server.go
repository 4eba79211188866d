package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/settleway/internal/commissionrule"
	ruledomain "github.com/smallbiznis/settleway/internal/commissionrule/domain"
	"github.com/smallbiznis/settleway/internal/config"
	"github.com/smallbiznis/settleway/internal/feesettings"
	feedomain "github.com/smallbiznis/settleway/internal/feesettings/domain"
	"github.com/smallbiznis/settleway/internal/lock"
	"github.com/smallbiznis/settleway/internal/observability"
	obsmiddleware "github.com/smallbiznis/settleway/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/settleway/internal/observability/metrics"
	obstracing "github.com/smallbiznis/settleway/internal/observability/tracing"
	"github.com/smallbiznis/settleway/internal/order"
	"github.com/smallbiznis/settleway/internal/payout"
	payoutdomain "github.com/smallbiznis/settleway/internal/payout/domain"
	"github.com/smallbiznis/settleway/internal/pricing"
	pricingdomain "github.com/smallbiznis/settleway/internal/pricing/domain"
	"github.com/smallbiznis/settleway/internal/providers"
	"github.com/smallbiznis/settleway/internal/restaurant"
	restaurantdomain "github.com/smallbiznis/settleway/internal/restaurant/domain"
	"github.com/smallbiznis/settleway/internal/settlement"
	settlementdomain "github.com/smallbiznis/settleway/internal/settlement/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	lock.Module,
	providers.Module,
	commissionrule.Module,
	feesettings.Module,
	restaurant.Module,
	order.Module,
	pricing.Module,
	settlement.Module,
	payout.Module,
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
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

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
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
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *snowflake.Node
	ruleSvc       ruledomain.Service
	feeSvc        feedomain.Service
	pricingSvc    pricingdomain.Service
	settlementSvc settlementdomain.Service
	payoutSvc     payoutdomain.Service
	restaurants   restaurantdomain.Repository
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	RuleSvc       ruledomain.Service
	FeeSvc        feedomain.Service
	PricingSvc    pricingdomain.Service
	SettlementSvc settlementdomain.Service
	PayoutSvc     payoutdomain.Service
	Restaurants   restaurantdomain.Repository
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		ruleSvc:       p.RuleSvc,
		feeSvc:        p.FeeSvc,
		pricingSvc:    p.PricingSvc,
		settlementSvc: p.SettlementSvc,
		payoutSvc:     p.PayoutSvc,
		restaurants:   p.Restaurants,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
	s.RegisterAdminRoutes()
}

// RegisterAPIRoutes wires the integration surface consumed by the
// order platform: pricing quotes and settlement lifecycle callbacks.
func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Pricing --------
	api.POST("/pricing/quote", s.QuoteOrder)

	// -------- Settlements --------
	api.POST("/settlements/calculate", s.CalculateSettlement)
	api.POST("/settlements/status", s.SettlementStatusChange)
	api.GET("/settlements", s.ListSettlements)
	api.GET("/settlements/:orderId", s.GetSettlement)
}

// RegisterAdminRoutes wires the operations surface: commission tiers,
// fee configuration, payouts and reporting.
func (s *Server) RegisterAdminRoutes() {
	admin := s.engine.Group("/admin")

	// -------- Commission rules --------
	admin.GET("/commission-rules", s.ListCommissionRules)
	admin.POST("/commission-rules", s.CreateCommissionRule)
	admin.GET("/commission-rules/:id", s.GetCommissionRule)
	admin.PATCH("/commission-rules/:id", s.UpdateCommissionRule)
	admin.POST("/commission-rules/:id/activate", s.ActivateCommissionRule)
	admin.POST("/commission-rules/:id/deactivate", s.DeactivateCommissionRule)
	admin.DELETE("/commission-rules/:id", s.DeleteCommissionRule)
	admin.GET("/commission-rules/resolve", s.ResolveCommissionTier)

	// -------- Restaurants --------
	admin.POST("/restaurants", s.CreateRestaurant)
	admin.GET("/restaurants/:ref", s.GetRestaurant)

	// -------- Fee settings --------
	admin.GET("/fee-settings", s.ListFeeSettings)
	admin.GET("/fee-settings/active", s.GetActiveFeeSettings)
	admin.POST("/fee-settings", s.CreateFeeSettings)
	admin.PATCH("/fee-settings/:id", s.UpdateFeeSettings)
	admin.POST("/fee-settings/:id/activate", s.ActivateFeeSettings)

	// -------- Payouts --------
	admin.GET("/payouts/pending", s.ListPendingPayouts)
	admin.POST("/payouts/mark-processed", s.MarkPayoutsProcessed)

	// -------- Reports --------
	admin.GET("/reports/settlements", s.SettlementReport)
	admin.GET("/reports/settlements/pdf", s.SettlementReportPDF)
}
