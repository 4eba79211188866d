package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Party identifies which side of the settlement a payout batch pays.
type Party string

const (
	PartyRestaurant      Party = "restaurant"
	PartyDeliveryPartner Party = "delivery_partner"
	PartyAdmin           Party = "admin"
)

var (
	ErrInvalidParty  = errors.New("invalid_party")
	ErrInvalidPeriod = errors.New("invalid_period")
)

// PendingPayout is one party's accumulated credited-but-unsettled
// earnings across completed settlements.
type PendingPayout struct {
	Party      Party          `json:"party"`
	PartyID    *snowflake.ID  `json:"party_id,omitempty"`
	OrderCount int64          `json:"order_count"`
	TotalCents int64          `json:"total_cents"`
	OrderIDs   []snowflake.ID `json:"order_ids,omitempty"`
}

type ReportRequest struct {
	From         time.Time
	To           time.Time
	RestaurantID *snowflake.ID
}

// Report is the period aggregate over finalized settlements.
type Report struct {
	From                  time.Time `json:"from"`
	To                    time.Time `json:"to"`
	OrdersSettled         int64     `json:"orders_settled"`
	OrdersCancelled       int64     `json:"orders_cancelled"`
	GrossRevenueCents     int64     `json:"gross_revenue_cents"`
	RestaurantPayoutCents int64     `json:"restaurant_payout_cents"`
	DeliveryPayoutCents   int64     `json:"delivery_payout_cents"`
	CommissionCents       int64     `json:"commission_cents"`
	PlatformFeeCents      int64     `json:"platform_fee_cents"`
	GSTCollectedCents     int64     `json:"gst_collected_cents"`
	DeliveryMarginCents   int64     `json:"delivery_margin_cents"`
	AdminEarningCents     int64     `json:"admin_earning_cents"`
	RefundedCents         int64     `json:"refunded_cents"`
	AveragePerOrderCents  int64     `json:"average_per_order_cents"`
}

type MarkProcessedRequest struct {
	Party    Party          `json:"party"`
	PartyID  *snowflake.ID  `json:"party_id,omitempty"`
	OrderIDs []snowflake.ID `json:"order_ids"`
}

type Service interface {
	// ListPending groups credited, not-yet-settled earnings on completed
	// settlements by the receiving party.
	ListPending(ctx context.Context, party Party) ([]PendingPayout, error)

	// MarkProcessed flips the party's settled flag on the given orders.
	// Rows whose earnings are not credited are skipped; reprocessing an
	// already settled order is a no-op.
	MarkProcessed(ctx context.Context, req MarkProcessedRequest) (int64, error)

	Report(ctx context.Context, req ReportRequest) (*Report, error)

	// ReportPDF renders the period report as a printable document.
	ReportPDF(ctx context.Context, req ReportRequest) ([]byte, error)
}
