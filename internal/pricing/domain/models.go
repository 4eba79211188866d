package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// OfferType selects how a coupon discount is computed.
type OfferType string

const (
	OfferTypePercentage OfferType = "percentage"
	OfferTypeFlat       OfferType = "flat"
)

// Offer is a per-item coupon: it discounts one menu item's line total
// when the coupon code is applied during checkout.
type Offer struct {
	ID     snowflake.ID `json:"id" gorm:"primaryKey"`
	Code   string       `json:"code" gorm:"type:text;not null;uniqueIndex"`
	ItemID snowflake.ID `json:"item_id" gorm:"not null;index"`
	Type   OfferType    `json:"type" gorm:"type:text;not null"`
	// ValueBps for percentage offers (100 bps = 1%), ValueCents for
	// flat offers; the unused field stays zero.
	ValueBps         int64     `json:"value_bps" gorm:"not null;default:0"`
	ValueCents       int64     `json:"value_cents" gorm:"not null;default:0"`
	MaxDiscountCents int64     `json:"max_discount_cents" gorm:"not null;default:0"`
	MinOrderCents    int64     `json:"min_order_cents" gorm:"not null;default:0"`
	Active           bool      `json:"active" gorm:"not null;default:true"`
	StartsAt         time.Time `json:"starts_at" gorm:"not null"`
	EndsAt           time.Time `json:"ends_at" gorm:"not null"`
	CreatedAt        time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Offer) TableName() string { return "offers" }

// LineItem is one cart entry at checkout.
type LineItem struct {
	ItemID     snowflake.ID `json:"item_id"`
	Name       string       `json:"name"`
	PriceCents int64        `json:"price_cents"`
	Quantity   int64        `json:"quantity"`
}

// Quote is the customer-facing price breakdown produced before any
// order or settlement exists.
type Quote struct {
	SubtotalCents    int64 `json:"subtotal_cents"`
	DiscountCents    int64 `json:"discount_cents"`
	DeliveryFeeCents int64 `json:"delivery_fee_cents"`
	PlatformFeeCents int64 `json:"platform_fee_cents"`
	GSTCents         int64 `json:"gst_cents"`
	TotalCents       int64 `json:"total_cents"`
	FreeDelivery     bool  `json:"free_delivery"`
	CouponApplied    bool  `json:"coupon_applied"`
}

type QuoteRequest struct {
	RestaurantRef string     `json:"restaurant_ref"`
	Items         []LineItem `json:"items"`
	CouponCode    string     `json:"coupon_code"`
}

type Service interface {
	Quote(ctx context.Context, req QuoteRequest) (*Quote, error)
}

type OfferRepository interface {
	Insert(ctx context.Context, db *gorm.DB, offer *Offer) error
	FindByCode(ctx context.Context, db *gorm.DB, code string) (*Offer, error)
}

var (
	ErrInvalidOrder      = errors.New("invalid_order")
	ErrInvalidRestaurant = errors.New("invalid_restaurant")
)
