package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type EscrowStatus string

const (
	EscrowPending  EscrowStatus = "pending"
	EscrowHeld     EscrowStatus = "held"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "pending"
	SettlementPartial   SettlementStatus = "partial"
	SettlementCompleted SettlementStatus = "completed"
	SettlementCancelled SettlementStatus = "cancelled"
)

// EarningStatus tracks each party's earning block independently of the
// settlement-level status and the payout-batching settled flags.
type EarningStatus string

const (
	EarningPending   EarningStatus = "pending"
	EarningCredited  EarningStatus = "credited"
	EarningCancelled EarningStatus = "cancelled"
)

// CancellationStage records where in the order lifecycle a cancellation
// happened; refund and compensation policy keys off this stage.
type CancellationStage string

const (
	StagePreAccept  CancellationStage = "pre_accept"
	StagePostAccept CancellationStage = "post_accept"
	StagePostCook   CancellationStage = "post_cook"
	StagePostPickup CancellationStage = "post_pickup"
)

// UserPayment is what the customer paid, copied verbatim from the
// order. It is ground truth for the conservation check.
type UserPayment struct {
	SubtotalCents     int64         `json:"subtotal_cents" gorm:"not null"`
	DiscountCents     int64         `json:"discount_cents" gorm:"not null;default:0"`
	DeliveryFeeCents  int64         `json:"delivery_fee_cents" gorm:"not null;default:0"`
	PlatformFeeCents  int64         `json:"platform_fee_cents" gorm:"not null;default:0"`
	GSTCents          int64         `json:"gst_cents" gorm:"not null;default:0"`
	PackagingFeeCents int64         `json:"packaging_fee_cents" gorm:"not null;default:0"`
	TotalCents        int64         `json:"total_cents" gorm:"not null"`
	Status            EarningStatus `json:"status" gorm:"type:text;not null;default:'pending'"`
	CreditedAt        *time.Time    `json:"credited_at,omitempty"`
}

// RestaurantEarning is the merchant's take after commission.
type RestaurantEarning struct {
	FoodPriceCents       int64         `json:"food_price_cents" gorm:"not null"`
	CommissionCents      int64         `json:"commission_cents" gorm:"not null"`
	CommissionPercentage float64       `json:"commission_percentage" gorm:"type:numeric;not null"`
	NetEarningCents      int64         `json:"net_earning_cents" gorm:"not null"`
	Status               EarningStatus `json:"status" gorm:"type:text;not null;default:'pending'"`
	CreditedAt           *time.Time    `json:"credited_at,omitempty"`
}

// DeliveryPartnerEarning is the courier payout including surge.
type DeliveryPartnerEarning struct {
	BasePayoutCents   int64         `json:"base_payout_cents" gorm:"not null;default:0"`
	DistanceKm        float64       `json:"distance_km" gorm:"type:numeric;not null;default:0"`
	PerKmCents        int64         `json:"per_km_cents" gorm:"not null;default:0"`
	DistanceCents     int64         `json:"distance_cents" gorm:"not null;default:0"`
	SurgeMultiplier   float64       `json:"surge_multiplier" gorm:"type:numeric;not null;default:1"`
	SurgeCents        int64         `json:"surge_cents" gorm:"not null;default:0"`
	TotalEarningCents int64         `json:"total_earning_cents" gorm:"not null;default:0"`
	Status            EarningStatus `json:"status" gorm:"type:text;not null;default:'pending'"`
	CreditedAt        *time.Time    `json:"credited_at,omitempty"`
}

// AdminEarning is the platform's take: commission, fees, GST collected,
// plus the margin kept on delivery.
type AdminEarning struct {
	CommissionCents     int64         `json:"commission_cents" gorm:"not null;default:0"`
	PlatformFeeCents    int64         `json:"platform_fee_cents" gorm:"not null;default:0"`
	DeliveryFeeCents    int64         `json:"delivery_fee_cents" gorm:"not null;default:0"`
	GSTCents            int64         `json:"gst_cents" gorm:"not null;default:0"`
	DeliveryMarginCents int64         `json:"delivery_margin_cents" gorm:"not null;default:0"`
	TotalEarningCents   int64         `json:"total_earning_cents" gorm:"not null;default:0"`
	Status              EarningStatus `json:"status" gorm:"type:text;not null;default:'pending'"`
	CreditedAt          *time.Time    `json:"credited_at,omitempty"`
}

// CancellationDetails captures the refund lifecycle of a cancelled
// order.
type CancellationDetails struct {
	Stage       CancellationStage `json:"stage,omitempty" gorm:"type:text"`
	RefundCents int64             `json:"refund_cents" gorm:"not null;default:0"`
	RefundBps   int64             `json:"refund_bps" gorm:"not null;default:0"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty"`
	RefundedAt  *time.Time        `json:"refunded_at,omitempty"`
}

// OrderSettlement is the four-way earnings breakdown for one order, one
// row per order. Recomputation overwrites the breakdown blocks in place
// while the row identity and lifecycle state survive.
type OrderSettlement struct {
	ID                snowflake.ID  `json:"id" gorm:"primaryKey"`
	OrderID           snowflake.ID  `json:"order_id" gorm:"not null;uniqueIndex:ux_order_settlements_order"`
	RestaurantID      snowflake.ID  `json:"restaurant_id" gorm:"not null;index"`
	DeliveryPartnerID *snowflake.ID `json:"delivery_partner_id,omitempty" gorm:"index"`

	UserPayment            UserPayment            `json:"user_payment" gorm:"embedded;embeddedPrefix:user_"`
	RestaurantEarning      RestaurantEarning      `json:"restaurant_earning" gorm:"embedded;embeddedPrefix:restaurant_"`
	DeliveryPartnerEarning DeliveryPartnerEarning `json:"delivery_partner_earning" gorm:"embedded;embeddedPrefix:delivery_"`
	AdminEarning           AdminEarning           `json:"admin_earning" gorm:"embedded;embeddedPrefix:admin_"`

	EscrowStatus      EscrowStatus `json:"escrow_status" gorm:"type:text;not null;default:'pending';index"`
	EscrowAmountCents int64        `json:"escrow_amount_cents" gorm:"not null"`
	EscrowReleasedAt  *time.Time   `json:"escrow_released_at,omitempty"`

	SettlementStatus SettlementStatus `json:"settlement_status" gorm:"type:text;not null;default:'pending';index"`

	RestaurantSettled      bool `json:"restaurant_settled" gorm:"not null;default:false"`
	DeliveryPartnerSettled bool `json:"delivery_partner_settled" gorm:"not null;default:false"`
	AdminSettled           bool `json:"admin_settled" gorm:"not null;default:false"`

	Cancellation CancellationDetails `json:"cancellation" gorm:"embedded;embeddedPrefix:cancel_"`

	// CalculationSnapshot is an immutable audit copy of the fee settings
	// and commission-rule values used, so the breakdown stays
	// explainable after rules change.
	CalculationSnapshot datatypes.JSON `json:"calculation_snapshot" gorm:"type:jsonb"`
	RestaurantRuleID    *snowflake.ID  `json:"restaurant_rule_id,omitempty" gorm:"index"`
	DeliveryRuleID      *snowflake.ID  `json:"delivery_rule_id,omitempty" gorm:"index"`

	CreatedAt time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (OrderSettlement) TableName() string { return "order_settlements" }

// Finalized reports whether the settlement reached a terminal state;
// recomputation is rejected afterwards.
func (s OrderSettlement) Finalized() bool {
	return s.SettlementStatus == SettlementCompleted || s.SettlementStatus == SettlementCancelled
}
