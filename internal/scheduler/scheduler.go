package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/settleway/internal/clock"
	obsmetrics "github.com/smallbiznis/settleway/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/settleway/internal/order/domain"
	settlementdomain "github.com/smallbiznis/settleway/internal/settlement/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidConfig = errors.New("scheduler requires db, logger, clock and settlement service")

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Clock         clock.Clock
	SettlementSvc settlementdomain.Service
	Metrics       *obsmetrics.Metrics `optional:"true"`
	Config        Config              `optional:"true"`
}

// Scheduler sweeps terminal orders whose settlements have fallen
// behind: delivered orders not yet completed and cancelled orders not
// yet refunded. It is the safety net for missed status callbacks.
type Scheduler struct {
	db            *gorm.DB
	log           *zap.Logger
	cfg           Config
	clock         clock.Clock
	settlementSvc settlementdomain.Service
	metrics       *obsmetrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.SettlementSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:            p.DB,
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		clock:         p.Clock,
		settlementSvc: p.SettlementSvc,
		metrics:       p.Metrics,
	}, nil
}

// RunForever runs the sweep on the configured interval until ctx ends.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("settlement sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce performs a single sweep pass.
func (s *Scheduler) RunOnce(parent context.Context) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	swept, err := s.sweep(ctx)
	elapsed := s.clock.Now().Sub(start)

	result := "ok"
	if err != nil {
		result = "error"
	}
	if s.metrics != nil {
		s.metrics.ObserveSweepRun(result, elapsed)
	}
	if err != nil {
		return err
	}
	if swept > 0 {
		s.log.Info("settlement sweep finished",
			zap.Int("orders_swept", swept),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
	}
	return nil
}

func (s *Scheduler) sweep(ctx context.Context) (int, error) {
	orders, err := s.findLaggingOrders(ctx)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, order := range orders {
		if ctx.Err() != nil {
			return swept, ctx.Err()
		}
		req := settlementdomain.StatusChangeRequest{
			OrderID: order.ID,
			Status:  string(order.Status),
		}
		if _, err := s.settlementSvc.OnStatusChange(ctx, req); err != nil {
			// One bad order must not starve the rest of the batch.
			s.log.Warn("sweep could not settle order",
				zap.Int64("order_id", int64(order.ID)),
				zap.String("order_status", string(order.Status)),
				zap.Error(err),
			)
			continue
		}
		swept++
	}
	return swept, nil
}

// findLaggingOrders selects terminal orders whose settlement row is
// missing or stuck in a non-terminal state. On postgres the batch is
// locked with SKIP LOCKED so concurrent sweepers do not collide.
func (s *Scheduler) findLaggingOrders(ctx context.Context) ([]orderdomain.Order, error) {
	q := s.db.WithContext(ctx).
		Table("orders").
		Select("orders.*").
		Joins("LEFT JOIN order_settlements ON order_settlements.order_id = orders.id").
		Where("orders.status IN ?", []orderdomain.OrderStatus{
			orderdomain.StatusDelivered,
			orderdomain.StatusCancelled,
		}).
		Where("order_settlements.id IS NULL OR order_settlements.settlement_status IN ?", []settlementdomain.SettlementStatus{
			settlementdomain.SettlementPending,
			settlementdomain.SettlementPartial,
		}).
		Order("orders.updated_at ASC").
		Limit(s.cfg.BatchSize)

	if s.db.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{
			Strength: "UPDATE",
			Table:    clause.Table{Name: "orders"},
			Options:  "SKIP LOCKED",
		})
	}

	var orders []orderdomain.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}
