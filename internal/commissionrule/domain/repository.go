package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, rule *CommissionRule) error
	Update(ctx context.Context, db *gorm.DB, rule *CommissionRule) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*CommissionRule, error)
	// ListActive returns active rules for a category sorted ascending
	// by min_value, the order ResolveTier scans in.
	ListActive(ctx context.Context, db *gorm.DB, category RuleCategory) ([]CommissionRule, error)
	List(ctx context.Context, db *gorm.DB, category RuleCategory) ([]CommissionRule, error)
}
