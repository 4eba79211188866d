package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smallbiznis/settleway/internal/settlement/domain"
)

type settlementRepository struct{}

func Provide() domain.Repository {
	return &settlementRepository{}
}

// breakdownColumns are the columns a recalculation is allowed to
// overwrite. Lifecycle state stays with the existing row.
var breakdownColumns = []string{
	"restaurant_id", "delivery_partner_id",
	"user_subtotal_cents", "user_discount_cents", "user_delivery_fee_cents",
	"user_platform_fee_cents", "user_gst_cents", "user_packaging_fee_cents",
	"user_total_cents",
	"restaurant_food_price_cents", "restaurant_commission_cents",
	"restaurant_commission_percentage", "restaurant_net_earning_cents",
	"delivery_base_payout_cents", "delivery_distance_km", "delivery_per_km_cents",
	"delivery_distance_cents", "delivery_surge_multiplier", "delivery_surge_cents",
	"delivery_total_earning_cents",
	"admin_commission_cents", "admin_platform_fee_cents", "admin_delivery_fee_cents",
	"admin_gst_cents", "admin_delivery_margin_cents", "admin_total_earning_cents",
	"escrow_amount_cents",
	"calculation_snapshot", "restaurant_rule_id", "delivery_rule_id",
	"updated_at",
}

func (r *settlementRepository) Upsert(ctx context.Context, db *gorm.DB, s *domain.OrderSettlement) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns(breakdownColumns),
		}).
		Create(s).Error
}

func (r *settlementRepository) Save(ctx context.Context, db *gorm.DB, s *domain.OrderSettlement) error {
	return db.WithContext(ctx).Save(s).Error
}

func (r *settlementRepository) FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.OrderSettlement, error) {
	var s domain.OrderSettlement
	if err := db.WithContext(ctx).Where("order_id = ?", orderID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *settlementRepository) List(ctx context.Context, db *gorm.DB, req domain.ListRequest) ([]domain.OrderSettlement, int64, error) {
	q := db.WithContext(ctx).Model(&domain.OrderSettlement{})
	if req.RestaurantID != nil {
		q = q.Where("restaurant_id = ?", *req.RestaurantID)
	}
	if req.DeliveryPartnerID != nil {
		q = q.Where("delivery_partner_id = ?", *req.DeliveryPartnerID)
	}
	if req.SettlementStatus != "" {
		q = q.Where("settlement_status = ?", req.SettlementStatus)
	}
	if req.EscrowStatus != "" {
		q = q.Where("escrow_status = ?", req.EscrowStatus)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []domain.OrderSettlement
	if err := q.Order("created_at DESC").
		Offset(req.Pagination.Offset()).
		Limit(req.Pagination.Limit()).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
