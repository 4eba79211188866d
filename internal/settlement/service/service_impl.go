package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	ruledomain "github.com/smallbiznis/settleway/internal/commissionrule/domain"
	"github.com/smallbiznis/settleway/internal/config"
	feedomain "github.com/smallbiznis/settleway/internal/feesettings/domain"
	obsmetrics "github.com/smallbiznis/settleway/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/settleway/internal/order/domain"
	restaurantdomain "github.com/smallbiznis/settleway/internal/restaurant/domain"
	"github.com/smallbiznis/settleway/internal/settlement/domain"
	"github.com/smallbiznis/settleway/pkg/money"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	Orders      orderdomain.Repository
	Restaurants restaurantdomain.Repository
	Fees        feedomain.Service
	Rules       ruledomain.Service
	Policy      *config.PolicyStore `optional:"true"`
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	orders      orderdomain.Repository
	restaurants restaurantdomain.Repository
	fees        feedomain.Service
	rules       ruledomain.Service
	policy      *config.PolicyStore
	metrics     *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("settlement.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		orders:      p.Orders,
		restaurants: p.Restaurants,
		fees:        p.Fees,
		rules:       p.Rules,
		policy:      p.Policy,
		metrics:     p.Metrics,
	}
}

// calculationSnapshot is the audit copy persisted next to every
// breakdown, capturing the inputs the calculation saw.
type calculationSnapshot struct {
	FeeSettingsID              string    `json:"fee_settings_id,omitempty"`
	DeliveryFeeCents           int64     `json:"delivery_fee_cents"`
	PlatformFeeCents           int64     `json:"platform_fee_cents"`
	GSTRateBps                 int64     `json:"gst_rate_bps"`
	FreeDeliveryThresholdCents int64     `json:"free_delivery_threshold_cents"`
	RestaurantRuleID           string    `json:"restaurant_rule_id,omitempty"`
	RestaurantRuleName         string    `json:"restaurant_rule_name,omitempty"`
	RestaurantRatePercentage   float64   `json:"restaurant_rate_percentage,omitempty"`
	DeliveryRuleID             string    `json:"delivery_rule_id,omitempty"`
	DeliveryRuleName           string    `json:"delivery_rule_name,omitempty"`
	DeliveryBasePayoutCents    int64     `json:"delivery_base_payout_cents,omitempty"`
	DeliveryPerKmCents         int64     `json:"delivery_per_km_cents,omitempty"`
	TripDistanceKm             float64   `json:"trip_distance_km,omitempty"`
	SurgeMultiplier            float64   `json:"surge_multiplier,omitempty"`
	CalculatedAt               time.Time `json:"calculated_at"`
}

func (s *Service) Calculate(ctx context.Context, req domain.CalculateRequest) (*domain.OrderSettlement, error) {
	order, err := s.orders.FindByID(ctx, s.db, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	existing, err := s.repo.FindByOrderID(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Finalized() {
		return nil, domain.ErrAlreadyFinalized
	}

	entity, err := s.build(ctx, order)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		entity.ID = existing.ID
	}

	if err := checkConservation(entity); err != nil {
		s.log.Error("settlement breakdown does not balance",
			zap.Int64("order_id", int64(order.ID)),
			zap.Int64("user_total_cents", entity.UserPayment.TotalCents),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.IncConservationViolation()
		}
		return nil, err
	}

	if err := s.repo.Upsert(ctx, s.db, entity); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncSettlementCalculated()
	}

	// Re-read so the caller sees the surviving lifecycle state when the
	// upsert landed on an existing row.
	saved, err := s.repo.FindByOrderID(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return nil, domain.ErrSettlementNotFound
	}
	return saved, nil
}

// build computes the four-way breakdown for an order without touching
// the database row.
func (s *Service) build(ctx context.Context, order *orderdomain.Order) (*domain.OrderSettlement, error) {
	restaurant, err := s.restaurants.ResolveRef(ctx, s.db, order.RestaurantRef)
	if err != nil {
		return nil, err
	}
	if restaurant == nil {
		return nil, restaurantdomain.ErrNotFound
	}

	fees, err := s.fees.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	// A discount larger than the subtotal cannot produce a breakdown
	// that balances against what the customer paid; reject the order
	// instead of persisting a distorted settlement.
	if order.SubtotalCents <= 0 || order.DiscountCents > order.SubtotalCents {
		return nil, domain.ErrInvalidOrder
	}
	foodPrice := order.SubtotalCents - order.DiscountCents

	restCommission, err := s.rules.ComputeRestaurantCommission(ctx, foodPrice)
	if err != nil {
		return nil, err
	}

	snapshot := calculationSnapshot{
		DeliveryFeeCents:           fees.DeliveryFeeCents,
		PlatformFeeCents:           fees.PlatformFeeCents,
		GSTRateBps:                 fees.GSTRateBps,
		FreeDeliveryThresholdCents: fees.FreeDeliveryThresholdCents,
		RestaurantRuleID:           restCommission.RuleID,
		RestaurantRuleName:         restCommission.RuleName,
		RestaurantRatePercentage:   restCommission.Percentage,
		CalculatedAt:               time.Now().UTC(),
	}
	if fees.ID != 0 {
		snapshot.FeeSettingsID = fees.ID.String()
	}

	entity := &domain.OrderSettlement{
		ID:                s.genID.Generate(),
		OrderID:           order.ID,
		RestaurantID:      restaurant.ID,
		DeliveryPartnerID: order.DeliveryPartnerID,
		UserPayment: domain.UserPayment{
			SubtotalCents:     order.SubtotalCents,
			DiscountCents:     order.DiscountCents,
			DeliveryFeeCents:  order.DeliveryFeeCents,
			PlatformFeeCents:  order.PlatformFeeCents,
			GSTCents:          order.GSTCents,
			PackagingFeeCents: order.PackagingFeeCents,
			TotalCents:        order.TotalCents,
			Status:            domain.EarningPending,
		},
		RestaurantEarning: domain.RestaurantEarning{
			FoodPriceCents:       foodPrice,
			CommissionCents:      restCommission.CommissionCents,
			CommissionPercentage: restCommission.Percentage,
			NetEarningCents:      foodPrice - restCommission.CommissionCents + order.PackagingFeeCents,
			Status:               domain.EarningPending,
		},
		EscrowStatus:      domain.EscrowPending,
		EscrowAmountCents: order.TotalCents,
		SettlementStatus:  domain.SettlementPending,
	}
	if rid, err := snowflake.ParseString(restCommission.RuleID); err == nil {
		entity.RestaurantRuleID = &rid
	}

	// The delivery leg stays zeroed until a partner and trip distance
	// exist; a later recalculation fills it in.
	if order.DeliveryPartnerID != nil && order.TripDistanceKm != nil {
		if err := s.buildDeliveryLeg(ctx, order, entity, &snapshot); err != nil {
			return nil, err
		}
	}

	entity.AdminEarning = buildAdminEarning(entity)

	raw, err := json.Marshal(snapshot)
	if err != nil {
		return nil, err
	}
	entity.CalculationSnapshot = datatypes.JSON(raw)
	return entity, nil
}

func (s *Service) buildDeliveryLeg(ctx context.Context, order *orderdomain.Order, entity *domain.OrderSettlement, snapshot *calculationSnapshot) error {
	distance := *order.TripDistanceKm
	commission, err := s.rules.ComputeDeliveryCommission(ctx, distance)
	if err != nil {
		return err
	}

	surge := order.SurgeMultiplier
	if surge < 1 {
		surge = 1
	}
	base := commission.BasePayoutCents + commission.DistanceCents
	surgeCents := money.RoundCents(float64(base) * (surge - 1))

	entity.DeliveryPartnerEarning = domain.DeliveryPartnerEarning{
		BasePayoutCents:   commission.BasePayoutCents,
		DistanceKm:        distance,
		PerKmCents:        commission.PerKmCents,
		DistanceCents:     commission.DistanceCents,
		SurgeMultiplier:   surge,
		SurgeCents:        surgeCents,
		TotalEarningCents: base + surgeCents,
		Status:            domain.EarningPending,
	}
	if did, err := snowflake.ParseString(commission.RuleID); err == nil {
		entity.DeliveryRuleID = &did
	}

	snapshot.DeliveryRuleID = commission.RuleID
	snapshot.DeliveryRuleName = commission.RuleName
	snapshot.DeliveryBasePayoutCents = commission.BasePayoutCents
	snapshot.DeliveryPerKmCents = commission.PerKmCents
	snapshot.TripDistanceKm = distance
	snapshot.SurgeMultiplier = surge
	return nil
}

// buildAdminEarning derives the platform take from the other blocks.
// The total is gross platform income (commission, platform fee,
// delivery fee collected, GST); the courier payout is a platform cost
// tracked through the delivery margin, which floors at zero when the
// courier earns more than the fee charged and the platform absorbs the
// difference as a subsidy.
func buildAdminEarning(s *domain.OrderSettlement) domain.AdminEarning {
	margin := s.UserPayment.DeliveryFeeCents - s.DeliveryPartnerEarning.TotalEarningCents
	if margin < 0 {
		margin = 0
	}
	a := domain.AdminEarning{
		CommissionCents:     s.RestaurantEarning.CommissionCents,
		PlatformFeeCents:    s.UserPayment.PlatformFeeCents,
		DeliveryFeeCents:    s.UserPayment.DeliveryFeeCents,
		GSTCents:            s.UserPayment.GSTCents,
		DeliveryMarginCents: margin,
		Status:              domain.EarningPending,
	}
	a.TotalEarningCents = a.CommissionCents + a.PlatformFeeCents + a.DeliveryFeeCents + a.GSTCents
	return a
}

// checkConservation asserts the breakdown balances before anything is
// persisted: the customer total decomposes into food price plus the
// fees collected, the restaurant split returns the food price, and the
// admin total is exactly the sum of its four income components.
func checkConservation(s *domain.OrderSettlement) error {
	composed := s.RestaurantEarning.FoodPriceCents +
		s.UserPayment.DeliveryFeeCents +
		s.UserPayment.PlatformFeeCents +
		s.UserPayment.GSTCents +
		s.UserPayment.PackagingFeeCents
	if composed != s.UserPayment.TotalCents {
		return domain.ErrConservation
	}

	if s.RestaurantEarning.NetEarningCents+s.RestaurantEarning.CommissionCents !=
		s.RestaurantEarning.FoodPriceCents+s.UserPayment.PackagingFeeCents {
		return domain.ErrConservation
	}

	wantAdmin := s.AdminEarning.CommissionCents +
		s.AdminEarning.PlatformFeeCents +
		s.AdminEarning.DeliveryFeeCents +
		s.AdminEarning.GSTCents
	if s.AdminEarning.TotalEarningCents != wantAdmin {
		return domain.ErrConservation
	}
	return nil
}

func (s *Service) OnStatusChange(ctx context.Context, req domain.StatusChangeRequest) (*domain.OrderSettlement, error) {
	order, err := s.orders.FindByID(ctx, s.db, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	entity, err := s.repo.FindByOrderID(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		entity, err = s.Calculate(ctx, domain.CalculateRequest{OrderID: order.ID})
		if err != nil {
			return nil, err
		}
	}

	status := orderdomain.OrderStatus(req.Status)
	now := time.Now().UTC()

	switch status {
	case orderdomain.StatusConfirmed:
		return s.holdEscrow(ctx, entity, now)
	case orderdomain.StatusDelivered:
		return s.release(ctx, order, entity, now)
	case orderdomain.StatusCancelled:
		return s.refund(ctx, order, entity, req.Stage, now)
	default:
		// Intermediate statuses do not move money.
		return entity, nil
	}
}

func (s *Service) holdEscrow(ctx context.Context, entity *domain.OrderSettlement, now time.Time) (*domain.OrderSettlement, error) {
	if entity.EscrowStatus == domain.EscrowHeld {
		return entity, nil
	}
	if entity.Finalized() {
		return nil, domain.ErrAlreadyFinalized
	}
	if entity.EscrowStatus != domain.EscrowPending {
		return nil, domain.ErrInvalidTransition
	}

	entity.EscrowStatus = domain.EscrowHeld
	entity.UserPayment.Status = domain.EarningCredited
	entity.UserPayment.CreditedAt = &now
	if err := s.repo.Save(ctx, s.db, entity); err != nil {
		return nil, err
	}
	s.observeEscrow(domain.EscrowHeld)
	return entity, nil
}

func (s *Service) release(ctx context.Context, order *orderdomain.Order, entity *domain.OrderSettlement, now time.Time) (*domain.OrderSettlement, error) {
	if entity.SettlementStatus == domain.SettlementCompleted {
		return entity, nil
	}
	if entity.SettlementStatus == domain.SettlementCancelled {
		return nil, domain.ErrAlreadyFinalized
	}

	// Pick up a delivery assignment made after the last calculation.
	recomputed, err := s.Calculate(ctx, domain.CalculateRequest{OrderID: order.ID})
	if err != nil {
		return nil, err
	}
	entity = recomputed

	entity.EscrowStatus = domain.EscrowReleased
	entity.EscrowReleasedAt = &now
	entity.UserPayment.Status = domain.EarningCredited
	if entity.UserPayment.CreditedAt == nil {
		entity.UserPayment.CreditedAt = &now
	}
	entity.RestaurantEarning.Status = domain.EarningCredited
	entity.RestaurantEarning.CreditedAt = &now
	entity.AdminEarning.Status = domain.EarningCredited
	entity.AdminEarning.CreditedAt = &now

	if order.DeliveryPartnerID != nil && order.TripDistanceKm != nil {
		entity.DeliveryPartnerEarning.Status = domain.EarningCredited
		entity.DeliveryPartnerEarning.CreditedAt = &now
		entity.SettlementStatus = domain.SettlementCompleted
	} else {
		// Delivered with no courier leg on record: the restaurant and
		// platform shares settle, the courier share waits for the
		// assignment to land.
		entity.SettlementStatus = domain.SettlementPartial
	}

	if err := s.repo.Save(ctx, s.db, entity); err != nil {
		return nil, err
	}
	s.observeEscrow(domain.EscrowReleased)
	return entity, nil
}

func (s *Service) refund(ctx context.Context, order *orderdomain.Order, entity *domain.OrderSettlement, stage domain.CancellationStage, now time.Time) (*domain.OrderSettlement, error) {
	if entity.SettlementStatus == domain.SettlementCancelled {
		return entity, nil
	}
	if entity.SettlementStatus == domain.SettlementCompleted {
		return nil, domain.ErrAlreadyFinalized
	}

	if stage == "" {
		stage = inferStage(order.Status)
	}
	policy := config.DefaultRefundPolicy(string(stage))
	if s.policy != nil {
		policy = s.policy.RefundFor(string(stage))
	}

	refund := money.ApplyBps(entity.UserPayment.TotalCents, policy.RefundBps)

	entity.EscrowStatus = domain.EscrowRefunded
	entity.SettlementStatus = domain.SettlementCancelled
	entity.Cancellation = domain.CancellationDetails{
		Stage:       stage,
		RefundCents: refund,
		RefundBps:   policy.RefundBps,
		CancelledAt: &now,
		RefundedAt:  &now,
	}

	entity.UserPayment.Status = domain.EarningCancelled
	entity.DeliveryPartnerEarning.Status = domain.EarningCancelled
	entity.RestaurantEarning.Status = domain.EarningCancelled
	entity.AdminEarning.Status = domain.EarningCancelled

	// Late-stage cancellations compensate the parties that already did
	// the work, funded by the unrefunded remainder.
	if policy.CompensateRestaurant {
		entity.RestaurantEarning.Status = domain.EarningCredited
		entity.RestaurantEarning.CreditedAt = &now
	}
	if policy.CompensateDelivery && entity.DeliveryPartnerEarning.TotalEarningCents > 0 {
		entity.DeliveryPartnerEarning.Status = domain.EarningCredited
		entity.DeliveryPartnerEarning.CreditedAt = &now
	}

	if err := s.repo.Save(ctx, s.db, entity); err != nil {
		return nil, err
	}
	s.observeEscrow(domain.EscrowRefunded)
	s.log.Info("order settlement cancelled",
		zap.Int64("order_id", int64(order.ID)),
		zap.String("stage", string(stage)),
		zap.Int64("refund_cents", refund),
	)
	return entity, nil
}

func inferStage(status orderdomain.OrderStatus) domain.CancellationStage {
	switch status {
	case orderdomain.StatusPlaced, orderdomain.StatusConfirmed:
		return domain.StagePreAccept
	case orderdomain.StatusAccepted, orderdomain.StatusPreparing:
		return domain.StagePostAccept
	case orderdomain.StatusReady:
		return domain.StagePostCook
	default:
		return domain.StagePostPickup
	}
}

func (s *Service) observeEscrow(to domain.EscrowStatus) {
	if s.metrics != nil {
		s.metrics.IncEscrowTransition(string(to))
	}
}

func (s *Service) Get(ctx context.Context, orderID snowflake.ID) (*domain.OrderSettlement, error) {
	entity, err := s.repo.FindByOrderID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		// Lazy first calculation keeps reads total for any known order.
		entity, err = s.Calculate(ctx, domain.CalculateRequest{OrderID: orderID})
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, domain.ErrSettlementNotFound
		}
		if err != nil {
			return nil, err
		}
	}
	return entity, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) ([]domain.OrderSettlement, int64, error) {
	return s.repo.List(ctx, s.db, req)
}
