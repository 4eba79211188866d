package domain

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
)

// RuleCategory separates the two independent tier tables: restaurant
// commission (keyed by order value) and delivery-partner commission
// (keyed by trip distance).
type RuleCategory string

const (
	CategoryRestaurant RuleCategory = "restaurant"
	CategoryDelivery   RuleCategory = "delivery"
)

// RuleType selects how a restaurant-commission rule charges.
type RuleType string

const (
	RuleTypePercentage RuleType = "percentage"
	RuleTypeFlat       RuleType = "flat"
)

// CommissionRule maps a numeric range (distance in km, or order value in
// cents) to a payout formula. MaxValue nil means unbounded.
type CommissionRule struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	Category        RuleCategory `json:"category" gorm:"type:text;not null;index:idx_commission_rules_category"`
	Name            string       `json:"name" gorm:"type:text;not null"`
	MinValue        float64      `json:"min_value" gorm:"type:numeric;not null"`
	MaxValue        *float64     `json:"max_value,omitempty" gorm:"type:numeric"`
	RuleType        RuleType     `json:"rule_type" gorm:"type:text;not null;default:'percentage'"`
	BasePayoutCents int64        `json:"base_payout_cents" gorm:"not null;default:0"`
	PerKmCents      int64        `json:"per_km_cents" gorm:"not null;default:0"`
	RateBps         int64        `json:"rate_bps" gorm:"not null;default:0"`
	FlatFeeCents    int64        `json:"flat_fee_cents" gorm:"not null;default:0"`
	Active          bool         `json:"active" gorm:"not null;default:true;index:idx_commission_rules_category"`
	CreatedBy       string       `json:"created_by" gorm:"type:text"`
	UpdatedBy       string       `json:"updated_by" gorm:"type:text"`
	CreatedAt       time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time    `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CommissionRule) TableName() string { return "commission_rules" }

// maxOrInf treats an open upper bound as +infinity for range algebra.
func (r CommissionRule) maxOrInf() float64 {
	if r.MaxValue == nil {
		return math.Inf(1)
	}
	return *r.MaxValue
}

// Contains reports whether value falls inside the rule's range. The
// range is closed on both ends; an unbounded rule contains everything
// at or above its minimum.
func (r CommissionRule) Contains(value float64) bool {
	if value < r.MinValue {
		return false
	}
	return r.MaxValue == nil || value <= *r.MaxValue
}

// Overlaps implements the range-intersection test used by the store:
// [a.min, a.max] and [b.min, b.max] overlap iff a.min < b.maxOrInf and
// b.min < a.maxOrInf. Adjacent ranges sharing a single boundary point
// do not overlap. Two unbounded rules always overlap under this test.
func (r CommissionRule) Overlaps(other CommissionRule) bool {
	return r.MinValue < other.maxOrInf() && other.MinValue < r.maxOrInf()
}

// RangeLabel renders the rule's range for admin-facing conflict
// messages, e.g. "5km–10km" or "8km–Unlimited".
func (r CommissionRule) RangeLabel() string {
	unit := ""
	if r.Category == CategoryDelivery {
		unit = "km"
	}
	upper := "Unlimited"
	if r.MaxValue != nil {
		upper = formatBound(*r.MaxValue) + unit
	}
	return fmt.Sprintf("%s%s–%s", formatBound(r.MinValue), unit, upper)
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
