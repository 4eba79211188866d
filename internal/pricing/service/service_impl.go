package service

import (
	"context"
	"time"

	feedomain "github.com/smallbiznis/settleway/internal/feesettings/domain"
	pricingdomain "github.com/smallbiznis/settleway/internal/pricing/domain"
	restaurantdomain "github.com/smallbiznis/settleway/internal/restaurant/domain"
	"github.com/smallbiznis/settleway/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	FeeSvc         feedomain.Service
	OfferRepo      pricingdomain.OfferRepository
	RestaurantRepo restaurantdomain.Repository
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	feeSvc         feedomain.Service
	offerRepo      pricingdomain.OfferRepository
	restaurantRepo restaurantdomain.Repository
}

func New(p Params) pricingdomain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("pricing.service"),
		feeSvc:         p.FeeSvc,
		offerRepo:      p.OfferRepo,
		restaurantRepo: p.RestaurantRepo,
	}
}

// Quote computes the checkout price breakdown. It is a pure function of
// the cart, the restaurant's overrides, the coupon and the active fee
// settings; nothing is persisted.
func (s *Service) Quote(ctx context.Context, req pricingdomain.QuoteRequest) (*pricingdomain.Quote, error) {
	var subtotal int64
	for _, item := range req.Items {
		if item.PriceCents < 0 || item.Quantity < 0 {
			return nil, pricingdomain.ErrInvalidOrder
		}
		subtotal += item.PriceCents * item.Quantity
	}
	if subtotal <= 0 {
		return nil, pricingdomain.ErrInvalidOrder
	}

	restaurant, err := s.restaurantRepo.ResolveRef(ctx, s.db, req.RestaurantRef)
	if err != nil {
		return nil, err
	}
	if restaurant == nil {
		return nil, pricingdomain.ErrInvalidRestaurant
	}

	settings, err := s.feeSvc.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	discount := s.resolveDiscount(ctx, req.CouponCode, req.Items, subtotal)

	freeThreshold := settings.FreeDeliveryThresholdCents
	if restaurant.FreeDeliveryThresholdCents > 0 {
		freeThreshold = restaurant.FreeDeliveryThresholdCents
	}

	var deliveryFee int64
	freeDelivery := subtotal >= freeThreshold
	if !freeDelivery {
		deliveryFee = settings.DeliveryFeeFor(subtotal)
	}

	// GST applies to the post-discount taxable amount and is rounded
	// here, at computation time, so the total never accumulates a
	// second rounding step.
	gst := money.ApplyBps(subtotal-discount, settings.GSTRateBps)

	quote := &pricingdomain.Quote{
		SubtotalCents:    subtotal,
		DiscountCents:    discount,
		DeliveryFeeCents: deliveryFee,
		PlatformFeeCents: settings.PlatformFeeCents,
		GSTCents:         gst,
		TotalCents:       subtotal - discount + deliveryFee + settings.PlatformFeeCents + gst,
		FreeDelivery:     freeDelivery,
		CouponApplied:    discount > 0,
	}
	return quote, nil
}

// resolveDiscount validates a coupon against the cart. A coupon that
// fails any check contributes zero discount; checkout itself never
// fails on a bad coupon.
func (s *Service) resolveDiscount(ctx context.Context, code string, items []pricingdomain.LineItem, subtotal int64) int64 {
	if code == "" {
		return 0
	}

	offer, err := s.offerRepo.FindByCode(ctx, s.db, code)
	if err != nil {
		s.log.Warn("coupon lookup failed", zap.String("code", code), zap.Error(err))
		return 0
	}
	if offer == nil || !offer.Active {
		return 0
	}

	now := time.Now().UTC()
	if now.Before(offer.StartsAt) || now.After(offer.EndsAt) {
		return 0
	}
	if subtotal < offer.MinOrderCents {
		return 0
	}

	// Per-item offers discount the matching line only.
	var lineSubtotal int64
	for _, item := range items {
		if item.ItemID == offer.ItemID {
			lineSubtotal += item.PriceCents * item.Quantity
		}
	}
	if lineSubtotal <= 0 {
		return 0
	}

	var discount int64
	switch offer.Type {
	case pricingdomain.OfferTypeFlat:
		discount = offer.ValueCents
	default:
		discount = money.ApplyBps(lineSubtotal, offer.ValueBps)
		if offer.MaxDiscountCents > 0 && discount > offer.MaxDiscountCents {
			discount = offer.MaxDiscountCents
		}
	}

	// A discount can never exceed the line it applies to.
	if discount > lineSubtotal {
		discount = lineSubtotal
	}
	return discount
}
