package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// OrderStatus mirrors the lifecycle the external order layer reports.
type OrderStatus string

const (
	StatusPlaced         OrderStatus = "placed"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusAccepted       OrderStatus = "accepted"
	StatusPreparing      OrderStatus = "preparing"
	StatusReady          OrderStatus = "ready"
	StatusPickedUp       OrderStatus = "picked_up"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

// Order is read-only truth supplied by the external order CRUD layer.
// The settlement engine copies its monetary fields verbatim into the
// user-payment block and never writes back.
type Order struct {
	ID                snowflake.ID  `json:"id" gorm:"primaryKey"`
	OrderNo           string        `json:"order_no" gorm:"type:text;not null;uniqueIndex"`
	RestaurantRef     string        `json:"restaurant_ref" gorm:"type:text;not null;index"`
	DeliveryPartnerID *snowflake.ID `json:"delivery_partner_id,omitempty" gorm:"index"`
	SubtotalCents     int64         `json:"subtotal_cents" gorm:"not null"`
	DiscountCents     int64         `json:"discount_cents" gorm:"not null;default:0"`
	DeliveryFeeCents  int64         `json:"delivery_fee_cents" gorm:"not null;default:0"`
	PlatformFeeCents  int64         `json:"platform_fee_cents" gorm:"not null;default:0"`
	GSTCents          int64         `json:"gst_cents" gorm:"not null;default:0"`
	PackagingFeeCents int64         `json:"packaging_fee_cents" gorm:"not null;default:0"`
	TotalCents        int64         `json:"total_cents" gorm:"not null"`
	TripDistanceKm    *float64      `json:"trip_distance_km,omitempty" gorm:"type:numeric"`
	SurgeMultiplier   float64       `json:"surge_multiplier" gorm:"type:numeric;not null;default:1"`
	Status            OrderStatus   `json:"status" gorm:"type:text;not null;index"`
	PlacedAt          time.Time     `json:"placed_at" gorm:"not null"`
	CreatedAt         time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time     `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Order) TableName() string { return "orders" }
