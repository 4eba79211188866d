package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// DeliveryFeeRange maps an order-value band to a delivery fee. Ranges
// are stored sorted ascending by MinCents; a value matches when
// min <= value < max, except the last range which is closed on both
// ends.
type DeliveryFeeRange struct {
	MinCents int64 `json:"min_cents"`
	MaxCents int64 `json:"max_cents"`
	FeeCents int64 `json:"fee_cents"`
}

// FeeSettings is the platform fee configuration. Rows are versioned:
// exactly one row is active at a time, enforced by activating inside a
// transaction that retires the previous active row.
type FeeSettings struct {
	ID                         snowflake.ID                           `json:"id" gorm:"primaryKey"`
	DeliveryFeeCents           int64                                  `json:"delivery_fee_cents" gorm:"not null"`
	DeliveryFeeRanges          datatypes.JSONType[[]DeliveryFeeRange] `json:"delivery_fee_ranges" gorm:"type:jsonb"`
	FreeDeliveryThresholdCents int64                                  `json:"free_delivery_threshold_cents" gorm:"not null"`
	PlatformFeeCents           int64                                  `json:"platform_fee_cents" gorm:"not null"`
	GSTRateBps                 int64                                  `json:"gst_rate_bps" gorm:"not null"`
	Active                     bool                                   `json:"active" gorm:"not null;default:false;index"`
	CreatedBy                  string                                 `json:"created_by" gorm:"type:text"`
	CreatedAt                  time.Time                              `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt                  time.Time                              `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (FeeSettings) TableName() string { return "fee_settings" }

// Defaults returns the conservative fallback used when no active record
// exists, so order pricing never fails on missing configuration.
func Defaults() FeeSettings {
	return FeeSettings{
		DeliveryFeeCents:           3000,
		FreeDeliveryThresholdCents: 50000,
		PlatformFeeCents:           500,
		GSTRateBps:                 500,
	}
}

// DeliveryFeeFor resolves the delivery fee for an order value from the
// ranged table, falling back to the flat fee when no range matches.
// The free-delivery threshold is applied by the caller because a
// restaurant override can take priority over the platform value.
func (f FeeSettings) DeliveryFeeFor(orderValueCents int64) int64 {
	ranges := f.DeliveryFeeRanges.Data()
	for i, r := range ranges {
		last := i == len(ranges)-1
		if orderValueCents >= r.MinCents {
			if orderValueCents < r.MaxCents || (last && orderValueCents <= r.MaxCents) {
				return r.FeeCents
			}
		}
	}
	return f.DeliveryFeeCents
}
