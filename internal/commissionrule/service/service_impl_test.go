package service_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	ruledomain "github.com/smallbiznis/settleway/internal/commissionrule/domain"
	rulerepo "github.com/smallbiznis/settleway/internal/commissionrule/repository"
	ruleservice "github.com/smallbiznis/settleway/internal/commissionrule/service"
	settlementdomain "github.com/smallbiznis/settleway/internal/settlement/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_rules_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&ruledomain.CommissionRule{},
		&settlementdomain.OrderSettlement{},
	))
	return db
}

func newRuleService(t *testing.T, db *gorm.DB) ruledomain.Service {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return ruleservice.New(ruleservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  rulerepo.Provide(),
	})
}

func floatPtr(v float64) *float64 { return &v }

func seedRestaurantTiers(t *testing.T, svc ruledomain.Service) {
	t.Helper()
	ctx := context.Background()

	// Restaurant tier bounds are order values in cents, matching the
	// unit ComputeRestaurantCommission resolves against.
	tiers := []ruledomain.CreateRequest{
		{Category: ruledomain.CategoryRestaurant, Name: "Small Orders", MinValue: 0, MaxValue: floatPtr(20000), RateBps: 1500},
		{Category: ruledomain.CategoryRestaurant, Name: "Medium Orders", MinValue: 20000, MaxValue: floatPtr(50000), RateBps: 1800},
		{Category: ruledomain.CategoryRestaurant, Name: "Large Orders", MinValue: 50000, RateBps: 2000},
	}
	for _, tier := range tiers {
		_, err := svc.Create(ctx, tier)
		require.NoError(t, err)
	}
}

func seedDeliveryTiers(t *testing.T, svc ruledomain.Service) {
	t.Helper()
	ctx := context.Background()

	tiers := []ruledomain.CreateRequest{
		{Category: ruledomain.CategoryDelivery, Name: "Short Trip", MinValue: 0, MaxValue: floatPtr(5), BasePayoutCents: 3000},
		{Category: ruledomain.CategoryDelivery, Name: "Medium Trip", MinValue: 5, MaxValue: floatPtr(10), BasePayoutCents: 3000, PerKmCents: 500},
		{Category: ruledomain.CategoryDelivery, Name: "Long Trip", MinValue: 10, BasePayoutCents: 3000, PerKmCents: 700},
	}
	for _, tier := range tiers {
		_, err := svc.Create(ctx, tier)
		require.NoError(t, err)
	}
}

func TestCreateRejectsOverlappingRange(t *testing.T) {
	ctx := context.Background()
	svc := newRuleService(t, setupTestDB(t))
	seedRestaurantTiers(t, svc)

	_, err := svc.Create(ctx, ruledomain.CreateRequest{
		Category: ruledomain.CategoryRestaurant,
		Name:     "Overlapping",
		MinValue: 15000,
		MaxValue: floatPtr(60000),
		RateBps:  1700,
	})
	require.Error(t, err)

	var oErr *ruledomain.OverlapError
	require.True(t, errors.As(err, &oErr))
	// 15000-60000 intersects all three seeded tiers.
	assert.Len(t, oErr.Conflicts, 3)
}

func TestCreateAllowsTouchingBoundaries(t *testing.T) {
	ctx := context.Background()
	svc := newRuleService(t, setupTestDB(t))

	_, err := svc.Create(ctx, ruledomain.CreateRequest{
		Category: ruledomain.CategoryRestaurant,
		Name:     "Low",
		MinValue: 0,
		MaxValue: floatPtr(20000),
		RateBps:  1500,
	})
	require.NoError(t, err)

	// Adjacent ranges sharing one boundary point do not overlap.
	_, err = svc.Create(ctx, ruledomain.CreateRequest{
		Category: ruledomain.CategoryRestaurant,
		Name:     "High",
		MinValue: 20000,
		MaxValue: floatPtr(50000),
		RateBps:  1800,
	})
	require.NoError(t, err)
}

func TestCreateAllowsOverlapAcrossCategories(t *testing.T) {
	ctx := context.Background()
	svc := newRuleService(t, setupTestDB(t))
	seedRestaurantTiers(t, svc)

	// Delivery ranges live in kilometers; they never clash with
	// restaurant order-value ranges.
	_, err := svc.Create(ctx, ruledomain.CreateRequest{
		Category:        ruledomain.CategoryDelivery,
		Name:            "Any Trip",
		MinValue:        0,
		BasePayoutCents: 3000,
	})
	require.NoError(t, err)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	svc := newRuleService(t, setupTestDB(t))

	_, err := svc.Create(ctx, ruledomain.CreateRequest{
		Category: "unknown", Name: "x", RateBps: 100,
	})
	assert.ErrorIs(t, err, ruledomain.ErrInvalidCategory)

	_, err = svc.Create(ctx, ruledomain.CreateRequest{
		Category: ruledomain.CategoryRestaurant, Name: "  ", RateBps: 100,
	})
	assert.ErrorIs(t, err, ruledomain.ErrInvalidName)

	_, err = svc.Create(ctx, ruledomain.CreateRequest{
		Category: ruledomain.CategoryRestaurant, Name: "bad range",
		MinValue: 500, MaxValue: floatPtr(100), RateBps: 100,
	})
	assert.ErrorIs(t, err, ruledomain.ErrInvalidRange)

	_, err = svc.Create(ctx, ruledomain.CreateRequest{
		Category: ruledomain.CategoryRestaurant, Name: "bad rate",
		MinValue: 0, RateBps: 20000,
	})
	assert.ErrorIs(t, err, ruledomain.ErrInvalidRate)
}

func TestResolveTierFallsBackToNearestBoundary(t *testing.T) {
	ctx := context.Background()
	svc := newRuleService(t, setupTestDB(t))

	// Deliberate gap between 20000 and 30000.
	_, err := svc.Create(ctx, ruledomain.CreateRequest{
		Category: ruledomain.CategoryRestaurant, Name: "Low",
		MinValue: 0, MaxValue: floatPtr(20000), RateBps: 1500,
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, ruledomain.CreateRequest{
		Category: ruledomain.CategoryRestaurant, Name: "High",
		MinValue: 30000, MaxValue: floatPtr(50000), RateBps: 2000,
	})
	require.NoError(t, err)

	// Inside a gap: the tier whose lower bound was last passed wins.
	rule, err := svc.ResolveTier(ctx, ruledomain.CategoryRestaurant, 25000)
	require.NoError(t, err)
	assert.Equal(t, "Low", rule.Name)

	// Above every range: highest tier.
	rule, err = svc.ResolveTier(ctx, ruledomain.CategoryRestaurant, 90000)
	require.NoError(t, err)
	assert.Equal(t, "High", rule.Name)

	// Exact boundary belongs to the upper tier.
	rule, err = svc.ResolveTier(ctx, ruledomain.CategoryRestaurant, 30000)
	require.NoError(t, err)
	assert.Equal(t, "High", rule.Name)
}

func TestResolveTierSharedBoundaryPicksUpperTier(t *testing.T) {
	ctx := context.Background()
	svc := newRuleService(t, setupTestDB(t))
	seedDeliveryTiers(t, svc)

	// 5 sits on the closed upper bound of Short and the lower bound of
	// Medium; the upper tier wins.
	rule, err := svc.ResolveTier(ctx, ruledomain.CategoryDelivery, 5)
	require.NoError(t, err)
	assert.Equal(t, "Medium Trip", rule.Name)

	rule, err = svc.ResolveTier(ctx, ruledomain.CategoryDelivery, 10)
	require.NoError(t, err)
	assert.Equal(t, "Long Trip", rule.Name)
}

func TestResolveTierNoActiveRules(t *testing.T) {
	ctx := context.Background()
	svc := newRuleService(t, setupTestDB(t))

	_, err := svc.ResolveTier(ctx, ruledomain.CategoryRestaurant, 100)
	assert.ErrorIs(t, err, ruledomain.ErrNoActiveRules)
}

func TestComputeRestaurantCommissionScenarioRates(t *testing.T) {
	ctx := context.Background()
	svc := newRuleService(t, setupTestDB(t))
	seedRestaurantTiers(t, svc)

	// 450.00 order value lands in the 18% tier.
	result, err := svc.ComputeRestaurantCommission(ctx, 45000)
	require.NoError(t, err)
	assert.Equal(t, int64(8100), result.CommissionCents)
	assert.InDelta(t, 18.0, result.Percentage, 0.001)

	// 150.00 lands in the 15% tier.
	result, err = svc.ComputeRestaurantCommission(ctx, 15000)
	require.NoError(t, err)
	assert.Equal(t, int64(2250), result.CommissionCents)

	// 800.00 lands in the open-ended 20% tier.
	result, err = svc.ComputeRestaurantCommission(ctx, 80000)
	require.NoError(t, err)
	assert.Equal(t, int64(16000), result.CommissionCents)
}

func TestComputeRestaurantCommissionFlatRule(t *testing.T) {
	ctx := context.Background()
	svc := newRuleService(t, setupTestDB(t))

	_, err := svc.Create(ctx, ruledomain.CreateRequest{
		Category:     ruledomain.CategoryRestaurant,
		Name:         "Flat Fee",
		MinValue:     0,
		RuleType:     ruledomain.RuleTypeFlat,
		FlatFeeCents: 2500,
	})
	require.NoError(t, err)

	result, err := svc.ComputeRestaurantCommission(ctx, 50000)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), result.CommissionCents)
	assert.InDelta(t, 5.0, result.Percentage, 0.001)
}

func TestComputeDeliveryCommissionWholeDistance(t *testing.T) {
	ctx := context.Background()
	svc := newRuleService(t, setupTestDB(t))
	seedDeliveryTiers(t, svc)

	// Short trip: base only.
	result, err := svc.ComputeDeliveryCommission(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3000), result.CommissionCents)

	// 7 km trip: per-km rate applies to the whole distance, not just
	// the kilometers past the threshold.
	result, err = svc.ComputeDeliveryCommission(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), result.DistanceCents)
	assert.Equal(t, int64(6500), result.CommissionCents)

	// 12 km trip: long-trip tier at 7/km.
	result, err = svc.ComputeDeliveryCommission(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, int64(8400), result.DistanceCents)
	assert.Equal(t, int64(11400), result.CommissionCents)
}

func TestComputeDeliveryCommissionBoundaryDistance(t *testing.T) {
	ctx := context.Background()
	svc := newRuleService(t, setupTestDB(t))

	_, err := svc.Create(ctx, ruledomain.CreateRequest{
		Category: ruledomain.CategoryDelivery, Name: "Near",
		MinValue: 0, MaxValue: floatPtr(4), BasePayoutCents: 1000, PerKmCents: 500,
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, ruledomain.CreateRequest{
		Category: ruledomain.CategoryDelivery, Name: "Far",
		MinValue: 4, BasePayoutCents: 1000, PerKmCents: 500,
	})
	require.NoError(t, err)

	// A trip of exactly 4 km resolves to the Far tier, whose lower
	// bound it does not exceed: base payout only.
	result, err := svc.ComputeDeliveryCommission(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, "Far", result.RuleName)
	assert.Equal(t, int64(0), result.DistanceCents)
	assert.Equal(t, int64(1000), result.CommissionCents)

	// One km past the bound pays per-km over the whole distance.
	result, err = svc.ComputeDeliveryCommission(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(3500), result.CommissionCents)
}

func TestComputeDeliveryCommissionRoundsHalfUp(t *testing.T) {
	ctx := context.Background()
	svc := newRuleService(t, setupTestDB(t))
	seedDeliveryTiers(t, svc)

	// 6.5 km * 500 = 3250 exactly; 6.25 km * 500 = 3125.
	result, err := svc.ComputeDeliveryCommission(ctx, 6.25)
	require.NoError(t, err)
	assert.Equal(t, int64(3125), result.DistanceCents)

	// 7.777 km * 500 = 3888.5, rounds half up to 3889.
	result, err = svc.ComputeDeliveryCommission(ctx, 7.777)
	require.NoError(t, err)
	assert.Equal(t, int64(3889), result.DistanceCents)
}

func TestSetActiveRevalidatesOverlap(t *testing.T) {
	ctx := context.Background()
	svc := newRuleService(t, setupTestDB(t))

	first, err := svc.Create(ctx, ruledomain.CreateRequest{
		Category: ruledomain.CategoryRestaurant, Name: "First",
		MinValue: 0, MaxValue: floatPtr(300), RateBps: 1500,
	})
	require.NoError(t, err)

	_, err = svc.SetActive(ctx, first.ID.String(), false, "tester")
	require.NoError(t, err)

	_, err = svc.Create(ctx, ruledomain.CreateRequest{
		Category: ruledomain.CategoryRestaurant, Name: "Second",
		MinValue: 0, MaxValue: floatPtr(300), RateBps: 1800,
	})
	require.NoError(t, err)

	// Bringing the first rule back would overlap the second.
	_, err = svc.SetActive(ctx, first.ID.String(), true, "tester")
	var oErr *ruledomain.OverlapError
	require.True(t, errors.As(err, &oErr))
}

func TestDeleteDeactivatesWhenReferencedBySettlements(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newRuleService(t, db)

	rule, err := svc.Create(ctx, ruledomain.CreateRequest{
		Category: ruledomain.CategoryRestaurant, Name: "Referenced",
		MinValue: 0, RateBps: 1500,
	})
	require.NoError(t, err)

	ruleID := rule.ID
	settlement := settlementdomain.OrderSettlement{
		ID:               ruleID + 1,
		OrderID:          ruleID + 2,
		RestaurantRuleID: &ruleID,
	}
	require.NoError(t, db.Create(&settlement).Error)

	require.NoError(t, svc.Delete(ctx, rule.ID.String(), "tester"))

	kept, err := svc.Get(ctx, rule.ID.String())
	require.NoError(t, err)
	assert.False(t, kept.Active)
}

func TestDeleteRemovesUnreferencedRule(t *testing.T) {
	ctx := context.Background()
	svc := newRuleService(t, setupTestDB(t))

	rule, err := svc.Create(ctx, ruledomain.CreateRequest{
		Category: ruledomain.CategoryRestaurant, Name: "Unreferenced",
		MinValue: 0, RateBps: 1500,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, rule.ID.String(), "tester"))

	_, err = svc.Get(ctx, rule.ID.String())
	assert.ErrorIs(t, err, ruledomain.ErrNotFound)
}
