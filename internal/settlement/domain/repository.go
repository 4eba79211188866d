package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts the settlement or, when a row for the order already
	// exists, overwrites only the breakdown and snapshot columns. The
	// lifecycle columns (escrow, settlement status, settled flags) are
	// never touched by an upsert.
	Upsert(ctx context.Context, db *gorm.DB, s *OrderSettlement) error

	Save(ctx context.Context, db *gorm.DB, s *OrderSettlement) error
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*OrderSettlement, error)
	List(ctx context.Context, db *gorm.DB, req ListRequest) ([]OrderSettlement, int64, error)
}
