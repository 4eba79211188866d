package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, settings *FeeSettings) error
	Update(ctx context.Context, db *gorm.DB, settings *FeeSettings) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FeeSettings, error)
	// FindActive returns the most recently created active row; more than
	// one active row is a defect the activate path prevents, but reads
	// stay deterministic if it ever happens.
	FindActive(ctx context.Context, db *gorm.DB) (*FeeSettings, error)
	DeactivateAll(ctx context.Context, db *gorm.DB) error
	List(ctx context.Context, db *gorm.DB) ([]FeeSettings, error)
}
