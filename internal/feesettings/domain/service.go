package domain

import (
	"context"
	"errors"
)

type Service interface {
	// Resolve returns the active fee settings, or hard-coded defaults
	// when none exist. It never fails on missing configuration.
	Resolve(ctx context.Context) (*FeeSettings, error)

	Create(ctx context.Context, req CreateRequest) (*FeeSettings, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*FeeSettings, error)
	Activate(ctx context.Context, id string) (*FeeSettings, error)
	List(ctx context.Context) ([]FeeSettings, error)
}

type CreateRequest struct {
	DeliveryFeeCents           int64              `json:"delivery_fee_cents"`
	DeliveryFeeRanges          []DeliveryFeeRange `json:"delivery_fee_ranges"`
	FreeDeliveryThresholdCents int64              `json:"free_delivery_threshold_cents"`
	PlatformFeeCents           int64              `json:"platform_fee_cents"`
	GSTRateBps                 int64              `json:"gst_rate_bps"`
	Activate                   bool               `json:"activate"`
	Actor                      string             `json:"-"`
}

type UpdateRequest struct {
	DeliveryFeeCents           *int64             `json:"delivery_fee_cents"`
	DeliveryFeeRanges          []DeliveryFeeRange `json:"delivery_fee_ranges"`
	FreeDeliveryThresholdCents *int64             `json:"free_delivery_threshold_cents"`
	PlatformFeeCents           *int64             `json:"platform_fee_cents"`
	GSTRateBps                 *int64             `json:"gst_rate_bps"`
}

var (
	ErrInvalidFee    = errors.New("invalid_fee")
	ErrInvalidRanges = errors.New("invalid_fee_ranges")
	ErrInvalidID     = errors.New("invalid_id")
	ErrNotFound      = errors.New("not_found")
)
