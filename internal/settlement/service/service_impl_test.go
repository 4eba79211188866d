package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	ruledomain "github.com/smallbiznis/settleway/internal/commissionrule/domain"
	rulerepo "github.com/smallbiznis/settleway/internal/commissionrule/repository"
	ruleservice "github.com/smallbiznis/settleway/internal/commissionrule/service"
	feedomain "github.com/smallbiznis/settleway/internal/feesettings/domain"
	feerepo "github.com/smallbiznis/settleway/internal/feesettings/repository"
	feeservice "github.com/smallbiznis/settleway/internal/feesettings/service"
	orderdomain "github.com/smallbiznis/settleway/internal/order/domain"
	orderrepo "github.com/smallbiznis/settleway/internal/order/repository"
	restaurantdomain "github.com/smallbiznis/settleway/internal/restaurant/domain"
	restaurantrepo "github.com/smallbiznis/settleway/internal/restaurant/repository"
	settlementdomain "github.com/smallbiznis/settleway/internal/settlement/domain"
	settlementrepo "github.com/smallbiznis/settleway/internal/settlement/repository"
	settlementservice "github.com/smallbiznis/settleway/internal/settlement/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	node  *snowflake.Node
	svc   settlementdomain.Service
	rules ruledomain.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_settlement_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&ruledomain.CommissionRule{},
		&feedomain.FeeSettings{},
		&restaurantdomain.Restaurant{},
		&orderdomain.Order{},
		&settlementdomain.OrderSettlement{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	rules := ruleservice.New(ruleservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Repo: rulerepo.Provide(),
	})
	fees := feeservice.New(feeservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Repo: feerepo.Provide(),
	})
	svc := settlementservice.New(settlementservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        settlementrepo.Provide(),
		Orders:      orderrepo.Provide(),
		Restaurants: restaurantrepo.Provide(),
		Fees:        fees,
		Rules:       rules,
	})

	f := &fixture{db: db, node: node, svc: svc, rules: rules}
	f.seedRules(t)
	return f
}

func (f *fixture) seedRules(t *testing.T) {
	t.Helper()
	ctx := context.Background()

	// Restaurant tier bounds are order values in cents.
	max20000, max50000 := 20000.0, 50000.0
	max5, max10 := 5.0, 10.0
	restaurantTiers := []ruledomain.CreateRequest{
		{Category: ruledomain.CategoryRestaurant, Name: "Small", MinValue: 0, MaxValue: &max20000, RateBps: 1500},
		{Category: ruledomain.CategoryRestaurant, Name: "Medium", MinValue: 20000, MaxValue: &max50000, RateBps: 1800},
		{Category: ruledomain.CategoryRestaurant, Name: "Large", MinValue: 50000, RateBps: 2000},
	}
	deliveryTiers := []ruledomain.CreateRequest{
		{Category: ruledomain.CategoryDelivery, Name: "Short", MinValue: 0, MaxValue: &max5, BasePayoutCents: 3000},
		{Category: ruledomain.CategoryDelivery, Name: "Medium", MinValue: 5, MaxValue: &max10, BasePayoutCents: 3000, PerKmCents: 500},
		{Category: ruledomain.CategoryDelivery, Name: "Long", MinValue: 10, BasePayoutCents: 3000, PerKmCents: 700},
	}
	for _, tier := range append(restaurantTiers, deliveryTiers...) {
		_, err := f.rules.Create(ctx, tier)
		require.NoError(t, err)
	}
}

func (f *fixture) seedRestaurant(t *testing.T) *restaurantdomain.Restaurant {
	t.Helper()
	restaurant := &restaurantdomain.Restaurant{
		ID:     f.node.Generate(),
		Name:   "Spice Garden",
		Slug:   "spice-garden",
		Active: true,
	}
	require.NoError(t, f.db.Create(restaurant).Error)
	return restaurant
}

type orderOpts struct {
	subtotal     int64
	discount     int64
	deliveryFee  int64
	platformFee  int64
	gst          int64
	packagingFee int64
	partner      bool
	distanceKm   float64
	surge        float64
	status       orderdomain.OrderStatus
}

func (f *fixture) seedOrder(t *testing.T, restaurant *restaurantdomain.Restaurant, opts orderOpts) *orderdomain.Order {
	t.Helper()

	if opts.surge == 0 {
		opts.surge = 1
	}
	if opts.status == "" {
		opts.status = orderdomain.StatusPlaced
	}
	order := &orderdomain.Order{
		ID:                f.node.Generate(),
		OrderNo:           fmt.Sprintf("ORD-%d", f.node.Generate()),
		RestaurantRef:     restaurant.Slug,
		SubtotalCents:     opts.subtotal,
		DiscountCents:     opts.discount,
		DeliveryFeeCents:  opts.deliveryFee,
		PlatformFeeCents:  opts.platformFee,
		GSTCents:          opts.gst,
		PackagingFeeCents: opts.packagingFee,
		SurgeMultiplier:   opts.surge,
		Status:            opts.status,
		PlacedAt:          time.Now().UTC(),
	}
	order.TotalCents = opts.subtotal - opts.discount + opts.deliveryFee +
		opts.platformFee + opts.gst + opts.packagingFee
	if opts.partner {
		partnerID := f.node.Generate()
		order.DeliveryPartnerID = &partnerID
		distance := opts.distanceKm
		order.TripDistanceKm = &distance
	}
	require.NoError(t, f.db.Create(order).Error)
	return order
}

func TestCalculateFullBreakdown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	restaurant := f.seedRestaurant(t)

	// 450.00 subtotal, 50.00 discount, 40.00 delivery fee, 5.00
	// platform fee, 20.00 GST, 10.00 packaging; 7 km trip.
	order := f.seedOrder(t, restaurant, orderOpts{
		subtotal:     45000,
		discount:     5000,
		deliveryFee:  4000,
		platformFee:  500,
		gst:          2000,
		packagingFee: 1000,
		partner:      true,
		distanceKm:   7,
	})

	got, err := f.svc.Calculate(ctx, settlementdomain.CalculateRequest{OrderID: order.ID})
	require.NoError(t, err)

	// Food price 400.00 lands in the 18% tier: commission 72.00.
	assert.Equal(t, int64(40000), got.RestaurantEarning.FoodPriceCents)
	assert.Equal(t, int64(7200), got.RestaurantEarning.CommissionCents)
	// Net = 400.00 - 72.00 + 10.00 packaging.
	assert.Equal(t, int64(33800), got.RestaurantEarning.NetEarningCents)

	// Courier: 30.00 base + 7 km * 5.00 = 65.00.
	assert.Equal(t, int64(3000), got.DeliveryPartnerEarning.BasePayoutCents)
	assert.Equal(t, int64(3500), got.DeliveryPartnerEarning.DistanceCents)
	assert.Equal(t, int64(6500), got.DeliveryPartnerEarning.TotalEarningCents)

	// Courier cost 65.00 exceeds the 40.00 delivery fee: margin zero,
	// the platform subsidizes 25.00.
	assert.Equal(t, int64(0), got.AdminEarning.DeliveryMarginCents)
	// Admin gross = 72.00 commission + 5.00 platform fee + 40.00
	// delivery fee + 20.00 GST; the courier payout is a cost, not a
	// deduction from the gross figure.
	assert.Equal(t, int64(13700), got.AdminEarning.TotalEarningCents)
	assert.Equal(t,
		got.AdminEarning.CommissionCents+got.AdminEarning.PlatformFeeCents+
			got.AdminEarning.DeliveryFeeCents+got.AdminEarning.GSTCents,
		got.AdminEarning.TotalEarningCents)
	// Restaurant split hands the food price back in full.
	assert.Equal(t,
		got.RestaurantEarning.FoodPriceCents+got.UserPayment.PackagingFeeCents,
		got.RestaurantEarning.NetEarningCents+got.RestaurantEarning.CommissionCents)

	assert.Equal(t, order.TotalCents, got.UserPayment.TotalCents)
	assert.Equal(t, order.TotalCents, got.EscrowAmountCents)
	assert.Equal(t, settlementdomain.EscrowPending, got.EscrowStatus)
	assert.Equal(t, settlementdomain.SettlementPending, got.SettlementStatus)
	assert.NotEmpty(t, got.CalculationSnapshot)
	require.NotNil(t, got.RestaurantRuleID)
	require.NotNil(t, got.DeliveryRuleID)
}

func TestCalculateSurgeMultiplier(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	restaurant := f.seedRestaurant(t)

	order := f.seedOrder(t, restaurant, orderOpts{
		subtotal:    30000,
		deliveryFee: 4000,
		partner:     true,
		distanceKm:  3,
		surge:       1.5,
	})

	got, err := f.svc.Calculate(ctx, settlementdomain.CalculateRequest{OrderID: order.ID})
	require.NoError(t, err)

	// Base 30.00, no per-km in the short tier; surge adds 50%.
	assert.Equal(t, int64(1500), got.DeliveryPartnerEarning.SurgeCents)
	assert.Equal(t, int64(4500), got.DeliveryPartnerEarning.TotalEarningCents)
}

func TestCalculateIsIdempotentAcrossRuleChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	restaurant := f.seedRestaurant(t)
	order := f.seedOrder(t, restaurant, orderOpts{subtotal: 45000, deliveryFee: 4000})

	first, err := f.svc.Calculate(ctx, settlementdomain.CalculateRequest{OrderID: order.ID})
	require.NoError(t, err)

	second, err := f.svc.Calculate(ctx, settlementdomain.CalculateRequest{OrderID: order.ID})
	require.NoError(t, err)

	// One row per order: recalculation updates in place.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.RestaurantEarning.CommissionCents, second.RestaurantEarning.CommissionCents)

	var count int64
	require.NoError(t, f.db.Model(&settlementdomain.OrderSettlement{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCalculateUnknownOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Calculate(ctx, settlementdomain.CalculateRequest{OrderID: f.node.Generate()})
	assert.ErrorIs(t, err, settlementdomain.ErrOrderNotFound)
}

func TestCalculateDiscountExceedsSubtotal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	restaurant := f.seedRestaurant(t)

	order := f.seedOrder(t, restaurant, orderOpts{subtotal: 10000, discount: 15000, deliveryFee: 4000})

	// A discount exceeding the subtotal cannot balance against the
	// amount paid; the order is rejected and nothing is persisted.
	_, err := f.svc.Calculate(ctx, settlementdomain.CalculateRequest{OrderID: order.ID})
	assert.ErrorIs(t, err, settlementdomain.ErrInvalidOrder)

	var count int64
	require.NoError(t, f.db.Model(&settlementdomain.OrderSettlement{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestEscrowLifecycleDelivered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	restaurant := f.seedRestaurant(t)
	order := f.seedOrder(t, restaurant, orderOpts{
		subtotal: 45000, deliveryFee: 4000, partner: true, distanceKm: 3,
		status: orderdomain.StatusConfirmed,
	})

	held, err := f.svc.OnStatusChange(ctx, settlementdomain.StatusChangeRequest{
		OrderID: order.ID, Status: string(orderdomain.StatusConfirmed),
	})
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.EscrowHeld, held.EscrowStatus)
	assert.Equal(t, settlementdomain.EarningCredited, held.UserPayment.Status)

	// Intermediate statuses do not move money.
	mid, err := f.svc.OnStatusChange(ctx, settlementdomain.StatusChangeRequest{
		OrderID: order.ID, Status: string(orderdomain.StatusPickedUp),
	})
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.EscrowHeld, mid.EscrowStatus)

	released, err := f.svc.OnStatusChange(ctx, settlementdomain.StatusChangeRequest{
		OrderID: order.ID, Status: string(orderdomain.StatusDelivered),
	})
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.EscrowReleased, released.EscrowStatus)
	assert.Equal(t, settlementdomain.SettlementCompleted, released.SettlementStatus)
	assert.Equal(t, settlementdomain.EarningCredited, released.RestaurantEarning.Status)
	assert.Equal(t, settlementdomain.EarningCredited, released.DeliveryPartnerEarning.Status)
	assert.Equal(t, settlementdomain.EarningCredited, released.AdminEarning.Status)
	require.NotNil(t, released.EscrowReleasedAt)

	// Repeated delivered callback is a no-op.
	again, err := f.svc.OnStatusChange(ctx, settlementdomain.StatusChangeRequest{
		OrderID: order.ID, Status: string(orderdomain.StatusDelivered),
	})
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.SettlementCompleted, again.SettlementStatus)

	// Recalculation after finalization is rejected.
	_, err = f.svc.Calculate(ctx, settlementdomain.CalculateRequest{OrderID: order.ID})
	assert.ErrorIs(t, err, settlementdomain.ErrAlreadyFinalized)
}

func TestDeliveredWithoutCourierIsPartial(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	restaurant := f.seedRestaurant(t)
	order := f.seedOrder(t, restaurant, orderOpts{subtotal: 45000, deliveryFee: 4000})

	got, err := f.svc.OnStatusChange(ctx, settlementdomain.StatusChangeRequest{
		OrderID: order.ID, Status: string(orderdomain.StatusDelivered),
	})
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.SettlementPartial, got.SettlementStatus)
	assert.Equal(t, settlementdomain.EarningCredited, got.RestaurantEarning.Status)
	assert.Equal(t, settlementdomain.EarningPending, got.DeliveryPartnerEarning.Status)

	// Courier assignment lands; the next delivered event completes it.
	partnerID := f.node.Generate()
	distance := 4.0
	require.NoError(t, f.db.Model(&orderdomain.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]any{"delivery_partner_id": partnerID, "trip_distance_km": distance}).Error)

	completed, err := f.svc.OnStatusChange(ctx, settlementdomain.StatusChangeRequest{
		OrderID: order.ID, Status: string(orderdomain.StatusDelivered),
	})
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.SettlementCompleted, completed.SettlementStatus)
	assert.Equal(t, int64(3000), completed.DeliveryPartnerEarning.TotalEarningCents)
}

func TestCancellationStages(t *testing.T) {
	tests := []struct {
		name           string
		stage          settlementdomain.CancellationStage
		wantRefundBps  int64
		wantRestaurant settlementdomain.EarningStatus
		wantDelivery   settlementdomain.EarningStatus
	}{
		{"before acceptance", settlementdomain.StagePreAccept, 10000, settlementdomain.EarningCancelled, settlementdomain.EarningCancelled},
		{"after acceptance", settlementdomain.StagePostAccept, 10000, settlementdomain.EarningCancelled, settlementdomain.EarningCancelled},
		{"after cooking", settlementdomain.StagePostCook, 5000, settlementdomain.EarningCredited, settlementdomain.EarningCancelled},
		{"after pickup", settlementdomain.StagePostPickup, 0, settlementdomain.EarningCredited, settlementdomain.EarningCredited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			restaurant := f.seedRestaurant(t)
			order := f.seedOrder(t, restaurant, orderOpts{
				subtotal: 45000, deliveryFee: 4000, partner: true, distanceKm: 3,
				status: orderdomain.StatusCancelled,
			})

			got, err := f.svc.OnStatusChange(ctx, settlementdomain.StatusChangeRequest{
				OrderID: order.ID,
				Status:  string(orderdomain.StatusCancelled),
				Stage:   tt.stage,
			})
			require.NoError(t, err)

			assert.Equal(t, settlementdomain.EscrowRefunded, got.EscrowStatus)
			assert.Equal(t, settlementdomain.SettlementCancelled, got.SettlementStatus)
			assert.Equal(t, tt.stage, got.Cancellation.Stage)
			assert.Equal(t, tt.wantRefundBps, got.Cancellation.RefundBps)

			wantRefund := got.UserPayment.TotalCents * tt.wantRefundBps / 10000
			assert.Equal(t, wantRefund, got.Cancellation.RefundCents)
			assert.Equal(t, tt.wantRestaurant, got.RestaurantEarning.Status)
			assert.Equal(t, tt.wantDelivery, got.DeliveryPartnerEarning.Status)
		})
	}
}

func TestCancellationInfersStageFromOrderStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	restaurant := f.seedRestaurant(t)
	order := f.seedOrder(t, restaurant, orderOpts{
		subtotal: 45000, deliveryFee: 4000,
		status: orderdomain.StatusPreparing,
	})

	got, err := f.svc.OnStatusChange(ctx, settlementdomain.StatusChangeRequest{
		OrderID: order.ID, Status: string(orderdomain.StatusCancelled),
	})
	require.NoError(t, err)
	assert.Equal(t, settlementdomain.StagePostAccept, got.Cancellation.Stage)
	assert.Equal(t, int64(10000), got.Cancellation.RefundBps)
}

func TestCancelAfterCompletionRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	restaurant := f.seedRestaurant(t)
	order := f.seedOrder(t, restaurant, orderOpts{
		subtotal: 45000, deliveryFee: 4000, partner: true, distanceKm: 3,
	})

	_, err := f.svc.OnStatusChange(ctx, settlementdomain.StatusChangeRequest{
		OrderID: order.ID, Status: string(orderdomain.StatusDelivered),
	})
	require.NoError(t, err)

	_, err = f.svc.OnStatusChange(ctx, settlementdomain.StatusChangeRequest{
		OrderID: order.ID, Status: string(orderdomain.StatusCancelled),
	})
	assert.ErrorIs(t, err, settlementdomain.ErrAlreadyFinalized)
}

func TestGetLazilyCalculates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	restaurant := f.seedRestaurant(t)
	order := f.seedOrder(t, restaurant, orderOpts{subtotal: 45000, deliveryFee: 4000})

	got, err := f.svc.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.OrderID)

	_, err = f.svc.Get(ctx, f.node.Generate())
	assert.ErrorIs(t, err, settlementdomain.ErrSettlementNotFound)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	restaurant := f.seedRestaurant(t)

	for i := 0; i < 3; i++ {
		order := f.seedOrder(t, restaurant, orderOpts{subtotal: 20000, deliveryFee: 3000})
		_, err := f.svc.Calculate(ctx, settlementdomain.CalculateRequest{OrderID: order.ID})
		require.NoError(t, err)
	}

	restaurantID := restaurant.ID
	items, total, err := f.svc.List(ctx, settlementdomain.ListRequest{RestaurantID: &restaurantID})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, items, 3)

	items, total, err = f.svc.List(ctx, settlementdomain.ListRequest{
		SettlementStatus: settlementdomain.SettlementCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
	assert.Empty(t, items)
}
