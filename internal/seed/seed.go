package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	ruledomain "github.com/smallbiznis/settleway/internal/commissionrule/domain"
	feedomain "github.com/smallbiznis/settleway/internal/feesettings/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const seedActor = "system:seed"

// EnsureDefaults seeds an active fee configuration and starter
// commission tiers so a fresh install can settle orders immediately.
// Existing data is never touched.
func EnsureDefaults(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureFeeSettings(ctx, tx, node); err != nil {
			return err
		}
		if err := ensureCommissionRules(ctx, tx, node); err != nil {
			return err
		}
		return nil
	})
}

func ensureFeeSettings(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&feedomain.FeeSettings{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	defaults := feedomain.Defaults()
	settings := feedomain.FeeSettings{
		ID:               node.Generate(),
		DeliveryFeeCents: defaults.DeliveryFeeCents,
		DeliveryFeeRanges: datatypes.NewJSONType([]feedomain.DeliveryFeeRange{
			{MinCents: 0, MaxCents: 20000, FeeCents: 4000},
			{MinCents: 20000, MaxCents: 50000, FeeCents: 3000},
			{MinCents: 50000, MaxCents: 100000, FeeCents: 2000},
		}),
		FreeDeliveryThresholdCents: defaults.FreeDeliveryThresholdCents,
		PlatformFeeCents:           defaults.PlatformFeeCents,
		GSTRateBps:                 defaults.GSTRateBps,
		Active:                     true,
		CreatedBy:                  seedActor,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
	return tx.WithContext(ctx).Create(&settings).Error
}

func ensureCommissionRules(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var count int64
	if err := tx.WithContext(ctx).Model(&ruledomain.CommissionRule{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC()
	f := func(v float64) *float64 { return &v }

	rules := []ruledomain.CommissionRule{
		// Restaurant tiers keyed by order value in cents.
		{Category: ruledomain.CategoryRestaurant, Name: "Small orders", MinValue: 0, MaxValue: f(20000), RuleType: ruledomain.RuleTypePercentage, RateBps: 1500},
		{Category: ruledomain.CategoryRestaurant, Name: "Medium orders", MinValue: 20000, MaxValue: f(50000), RuleType: ruledomain.RuleTypePercentage, RateBps: 1800},
		{Category: ruledomain.CategoryRestaurant, Name: "Large orders", MinValue: 50000, MaxValue: nil, RuleType: ruledomain.RuleTypePercentage, RateBps: 2000},

		// Delivery tiers keyed by trip distance in km.
		{Category: ruledomain.CategoryDelivery, Name: "Short trips", MinValue: 0, MaxValue: f(5), BasePayoutCents: 3000, PerKmCents: 0},
		{Category: ruledomain.CategoryDelivery, Name: "Medium trips", MinValue: 5, MaxValue: f(10), BasePayoutCents: 3000, PerKmCents: 500},
		{Category: ruledomain.CategoryDelivery, Name: "Long trips", MinValue: 10, MaxValue: nil, BasePayoutCents: 3000, PerKmCents: 700},
	}

	for i := range rules {
		rules[i].ID = node.Generate()
		rules[i].Active = true
		rules[i].CreatedBy = seedActor
		rules[i].UpdatedBy = seedActor
		rules[i].CreatedAt = now
		rules[i].UpdatedAt = now
		if rules[i].RuleType == "" {
			rules[i].RuleType = ruledomain.RuleTypePercentage
		}
		if err := tx.WithContext(ctx).Create(&rules[i]).Error; err != nil {
			return err
		}
	}
	return nil
}
