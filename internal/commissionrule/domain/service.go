package domain

import (
	"context"
	"errors"
	"fmt"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*CommissionRule, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*CommissionRule, error)
	SetActive(ctx context.Context, id string, active bool, actor string) (*CommissionRule, error)
	Delete(ctx context.Context, id string, actor string) error
	List(ctx context.Context, category RuleCategory) ([]CommissionRule, error)
	Get(ctx context.Context, id string) (*CommissionRule, error)

	// ResolveTier returns the single active rule whose range contains
	// value, falling back to the nearest boundary tier when the value
	// sits outside every configured range.
	ResolveTier(ctx context.Context, category RuleCategory, value float64) (*CommissionRule, error)

	ComputeDeliveryCommission(ctx context.Context, distanceKm float64) (*DeliveryCommission, error)
	ComputeRestaurantCommission(ctx context.Context, orderValueCents int64) (*RestaurantCommission, error)
}

type CreateRequest struct {
	Category        RuleCategory `json:"category"`
	Name            string       `json:"name"`
	MinValue        float64      `json:"min_value"`
	MaxValue        *float64     `json:"max_value"`
	RuleType        RuleType     `json:"rule_type"`
	BasePayoutCents int64        `json:"base_payout_cents"`
	PerKmCents      int64        `json:"per_km_cents"`
	RateBps         int64        `json:"rate_bps"`
	FlatFeeCents    int64        `json:"flat_fee_cents"`
	Actor           string       `json:"-"`
}

type UpdateRequest struct {
	Name            *string   `json:"name"`
	MinValue        *float64  `json:"min_value"`
	MaxValue        *float64  `json:"max_value"`
	ClearMaxValue   bool      `json:"clear_max_value"`
	RuleType        *RuleType `json:"rule_type"`
	BasePayoutCents *int64    `json:"base_payout_cents"`
	PerKmCents      *int64    `json:"per_km_cents"`
	RateBps         *int64    `json:"rate_bps"`
	FlatFeeCents    *int64    `json:"flat_fee_cents"`
	Actor           string    `json:"-"`
}

// DeliveryCommission is the payout breakdown for one trip.
type DeliveryCommission struct {
	RuleID          string  `json:"rule_id"`
	RuleName        string  `json:"rule_name"`
	DistanceKm      float64 `json:"distance_km"`
	BasePayoutCents int64   `json:"base_payout_cents"`
	PerKmCents      int64   `json:"per_km_cents"`
	DistanceCents   int64   `json:"distance_cents"`
	CommissionCents int64   `json:"commission_cents"`
}

// RestaurantCommission is the platform's cut of one order's food price.
type RestaurantCommission struct {
	RuleID          string   `json:"rule_id"`
	RuleName        string   `json:"rule_name"`
	RuleType        RuleType `json:"rule_type"`
	OrderValueCents int64    `json:"order_value_cents"`
	// Percentage is normalized even when the rule charged a flat fee,
	// so downstream reporting always has a comparable rate.
	Percentage      float64 `json:"percentage"`
	CommissionCents int64   `json:"commission_cents"`
}

var (
	ErrInvalidCategory = errors.New("invalid_category")
	ErrInvalidName     = errors.New("invalid_name")
	ErrInvalidRange    = errors.New("invalid_range")
	ErrInvalidRate     = errors.New("invalid_rate")
	ErrInvalidValue    = errors.New("invalid_value")
	ErrInvalidID       = errors.New("invalid_id")
	ErrNotFound        = errors.New("not_found")
	ErrNoActiveRules   = errors.New("no_active_rules")
	ErrLockUnavailable = errors.New("rule_lock_unavailable")
)

// OverlapError reports every active rule the candidate range intersects,
// with both ranges rendered human-readably so the conflict is
// self-explanatory to the admin.
type OverlapError struct {
	CandidateRange string
	Conflicts      []CommissionRule
}

func (e *OverlapError) Error() string {
	if len(e.Conflicts) == 0 {
		return "commission rule range overlap"
	}
	return fmt.Sprintf("commission rule range %s overlaps %s (%s)",
		e.CandidateRange, e.Conflicts[0].Name, e.Conflicts[0].RangeLabel())
}
