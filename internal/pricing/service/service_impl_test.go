package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	feedomain "github.com/smallbiznis/settleway/internal/feesettings/domain"
	feerepo "github.com/smallbiznis/settleway/internal/feesettings/repository"
	feeservice "github.com/smallbiznis/settleway/internal/feesettings/service"
	pricingdomain "github.com/smallbiznis/settleway/internal/pricing/domain"
	pricingrepo "github.com/smallbiznis/settleway/internal/pricing/repository"
	pricingservice "github.com/smallbiznis/settleway/internal/pricing/service"
	restaurantdomain "github.com/smallbiznis/settleway/internal/restaurant/domain"
	restaurantrepo "github.com/smallbiznis/settleway/internal/restaurant/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type quoteFixture struct {
	db   *gorm.DB
	node *snowflake.Node
	svc  pricingdomain.Service
}

func newQuoteFixture(t *testing.T) *quoteFixture {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_pricing_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&feedomain.FeeSettings{},
		&restaurantdomain.Restaurant{},
		&pricingdomain.Offer{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fees := feeservice.New(feeservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Repo: feerepo.Provide(),
	})
	svc := pricingservice.New(pricingservice.Params{
		DB:             db,
		Log:            zap.NewNop(),
		FeeSvc:         fees,
		OfferRepo:      pricingrepo.Provide(),
		RestaurantRepo: restaurantrepo.Provide(),
	})
	return &quoteFixture{db: db, node: node, svc: svc}
}

func (f *quoteFixture) seedRestaurant(t *testing.T, freeThreshold int64) *restaurantdomain.Restaurant {
	t.Helper()
	restaurant := &restaurantdomain.Restaurant{
		ID:                         f.node.Generate(),
		Name:                       "Dosa Palace",
		Slug:                       "dosa-palace",
		FreeDeliveryThresholdCents: freeThreshold,
		Active:                     true,
	}
	require.NoError(t, f.db.Create(restaurant).Error)
	return restaurant
}

func (f *quoteFixture) seedOffer(t *testing.T, offer *pricingdomain.Offer) *pricingdomain.Offer {
	t.Helper()
	if offer.ID == 0 {
		offer.ID = f.node.Generate()
	}
	now := time.Now().UTC()
	if offer.StartsAt.IsZero() {
		offer.StartsAt = now.Add(-time.Hour)
	}
	if offer.EndsAt.IsZero() {
		offer.EndsAt = now.Add(time.Hour)
	}
	offer.Active = true
	require.NoError(t, f.db.Create(offer).Error)
	return offer
}

func item(id snowflake.ID, price, qty int64) pricingdomain.LineItem {
	return pricingdomain.LineItem{ItemID: id, Name: "item", PriceCents: price, Quantity: qty}
}

func TestQuoteWithDefaults(t *testing.T) {
	ctx := context.Background()
	f := newQuoteFixture(t)
	restaurant := f.seedRestaurant(t, 0)

	// 300.00 subtotal, default fees: 30.00 delivery, 5.00 platform,
	// 5% GST on 300.00 = 15.00.
	got, err := f.svc.Quote(ctx, pricingdomain.QuoteRequest{
		RestaurantRef: restaurant.Slug,
		Items:         []pricingdomain.LineItem{item(f.node.Generate(), 15000, 2)},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(30000), got.SubtotalCents)
	assert.Equal(t, int64(3000), got.DeliveryFeeCents)
	assert.Equal(t, int64(500), got.PlatformFeeCents)
	assert.Equal(t, int64(1500), got.GSTCents)
	assert.Equal(t, int64(35000), got.TotalCents)
	assert.False(t, got.FreeDelivery)
}

func TestQuoteFreeDeliveryAboveThreshold(t *testing.T) {
	ctx := context.Background()
	f := newQuoteFixture(t)
	restaurant := f.seedRestaurant(t, 0)

	// Default threshold is 500.00.
	got, err := f.svc.Quote(ctx, pricingdomain.QuoteRequest{
		RestaurantRef: restaurant.Slug,
		Items:         []pricingdomain.LineItem{item(f.node.Generate(), 50000, 1)},
	})
	require.NoError(t, err)
	assert.True(t, got.FreeDelivery)
	assert.Equal(t, int64(0), got.DeliveryFeeCents)
}

func TestQuoteRestaurantThresholdOverride(t *testing.T) {
	ctx := context.Background()
	f := newQuoteFixture(t)
	restaurant := f.seedRestaurant(t, 20000)

	// 250.00 clears the restaurant's 200.00 override even though it is
	// below the platform's 500.00 threshold.
	got, err := f.svc.Quote(ctx, pricingdomain.QuoteRequest{
		RestaurantRef: restaurant.Slug,
		Items:         []pricingdomain.LineItem{item(f.node.Generate(), 25000, 1)},
	})
	require.NoError(t, err)
	assert.True(t, got.FreeDelivery)
}

func TestQuotePercentageCouponCapped(t *testing.T) {
	ctx := context.Background()
	f := newQuoteFixture(t)
	restaurant := f.seedRestaurant(t, 0)
	itemID := f.node.Generate()

	f.seedOffer(t, &pricingdomain.Offer{
		Code:             "HALFOFF",
		ItemID:           itemID,
		Type:             pricingdomain.OfferTypePercentage,
		ValueBps:         5000,
		MaxDiscountCents: 5000,
	})

	// 50% of the 200.00 line is 100.00, capped at 50.00.
	got, err := f.svc.Quote(ctx, pricingdomain.QuoteRequest{
		RestaurantRef: restaurant.Slug,
		Items: []pricingdomain.LineItem{
			item(itemID, 20000, 1),
			item(f.node.Generate(), 10000, 1),
		},
		CouponCode: "HALFOFF",
	})
	require.NoError(t, err)
	assert.True(t, got.CouponApplied)
	assert.Equal(t, int64(5000), got.DiscountCents)
	// GST applies to the discounted amount: 5% of 250.00.
	assert.Equal(t, int64(1250), got.GSTCents)
}

func TestQuoteFlatCouponClampedToLine(t *testing.T) {
	ctx := context.Background()
	f := newQuoteFixture(t)
	restaurant := f.seedRestaurant(t, 0)
	itemID := f.node.Generate()

	f.seedOffer(t, &pricingdomain.Offer{
		Code:       "TENOFF",
		ItemID:     itemID,
		Type:       pricingdomain.OfferTypeFlat,
		ValueCents: 5000,
	})

	// The flat 50.00 discount exceeds the 30.00 line it applies to.
	got, err := f.svc.Quote(ctx, pricingdomain.QuoteRequest{
		RestaurantRef: restaurant.Slug,
		Items: []pricingdomain.LineItem{
			item(itemID, 3000, 1),
			item(f.node.Generate(), 30000, 1),
		},
		CouponCode: "TENOFF",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), got.DiscountCents)
}

func TestQuoteIgnoresBadCoupons(t *testing.T) {
	ctx := context.Background()
	f := newQuoteFixture(t)
	restaurant := f.seedRestaurant(t, 0)
	itemID := f.node.Generate()

	f.seedOffer(t, &pricingdomain.Offer{
		Code:          "BIGSPEND",
		ItemID:        itemID,
		Type:          pricingdomain.OfferTypePercentage,
		ValueBps:      1000,
		MinOrderCents: 100000,
	})

	tests := []struct {
		name string
		code string
	}{
		{"unknown code", "NOSUCHCODE"},
		{"below minimum order", "BIGSPEND"},
		{"item not in cart", "BIGSPEND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Quote(ctx, pricingdomain.QuoteRequest{
				RestaurantRef: restaurant.Slug,
				Items:         []pricingdomain.LineItem{item(f.node.Generate(), 20000, 1)},
				CouponCode:    tt.code,
			})
			require.NoError(t, err)
			assert.False(t, got.CouponApplied)
			assert.Equal(t, int64(0), got.DiscountCents)
		})
	}
}

func TestQuoteInvalidInput(t *testing.T) {
	ctx := context.Background()
	f := newQuoteFixture(t)
	restaurant := f.seedRestaurant(t, 0)

	_, err := f.svc.Quote(ctx, pricingdomain.QuoteRequest{
		RestaurantRef: restaurant.Slug,
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidOrder)

	_, err = f.svc.Quote(ctx, pricingdomain.QuoteRequest{
		RestaurantRef: restaurant.Slug,
		Items:         []pricingdomain.LineItem{item(f.node.Generate(), -100, 1)},
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidOrder)

	_, err = f.svc.Quote(ctx, pricingdomain.QuoteRequest{
		RestaurantRef: "nowhere",
		Items:         []pricingdomain.LineItem{item(f.node.Generate(), 10000, 1)},
	})
	assert.ErrorIs(t, err, pricingdomain.ErrInvalidRestaurant)
}
