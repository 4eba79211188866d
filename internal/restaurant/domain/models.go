package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Restaurant carries just enough identity for the engine to resolve a
// loose reference supplied by the order layer, plus the pricing
// overrides a merchant can negotiate.
type Restaurant struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	Name       string       `json:"name" gorm:"type:text;not null"`
	Slug       string       `json:"slug" gorm:"type:text;not null;uniqueIndex"`
	ExternalID string       `json:"external_id" gorm:"type:text;index"`
	// FreeDeliveryThresholdCents overrides the platform threshold when
	// set; zero means no override.
	FreeDeliveryThresholdCents int64     `json:"free_delivery_threshold_cents" gorm:"not null;default:0"`
	Active                     bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt                  time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt                  time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Restaurant) TableName() string { return "restaurants" }

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, restaurant *Restaurant) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Restaurant, error)
	// ResolveRef resolves a loose reference: primary id, then slug, then
	// external business id. The engine does not care which one matched.
	ResolveRef(ctx context.Context, db *gorm.DB, ref string) (*Restaurant, error)
}

var ErrNotFound = errors.New("restaurant_not_found")
