package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"

	"github.com/smallbiznis/settleway/pkg/db/pagination"
)

var (
	ErrOrderNotFound      = errors.New("order_not_found")
	ErrInvalidOrder       = errors.New("invalid_order_amounts")
	ErrSettlementNotFound = errors.New("settlement_not_found")
	ErrAlreadyFinalized   = errors.New("settlement_already_finalized")
	ErrConservation       = errors.New("settlement_conservation_violation")
	ErrInvalidTransition  = errors.New("invalid_status_transition")
)

// CalculateRequest identifies the order to settle. Recalculation on the
// same order overwrites the breakdown atomically as long as the
// settlement has not been finalized.
type CalculateRequest struct {
	OrderID snowflake.ID `json:"order_id"`
}

// StatusChangeRequest propagates an order lifecycle transition into the
// escrow and settlement state machines.
type StatusChangeRequest struct {
	OrderID snowflake.ID      `json:"order_id"`
	Status  string            `json:"status"`
	Stage   CancellationStage `json:"stage,omitempty"`
}

type ListRequest struct {
	RestaurantID      *snowflake.ID
	DeliveryPartnerID *snowflake.ID
	SettlementStatus  SettlementStatus
	EscrowStatus      EscrowStatus
	Pagination        pagination.Pagination
}

type Service interface {
	// Calculate computes or recomputes the four-way breakdown for an
	// order and persists it in a single atomic write.
	Calculate(ctx context.Context, req CalculateRequest) (*OrderSettlement, error)

	// OnStatusChange reacts to order lifecycle transitions: holding,
	// releasing or refunding escrow and crediting earning blocks.
	OnStatusChange(ctx context.Context, req StatusChangeRequest) (*OrderSettlement, error)

	Get(ctx context.Context, orderID snowflake.ID) (*OrderSettlement, error)
	List(ctx context.Context, req ListRequest) ([]OrderSettlement, int64, error)
}
