package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	ruledomain "github.com/smallbiznis/settleway/internal/commissionrule/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() ruledomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, rule *ruledomain.CommissionRule) error {
	return db.WithContext(ctx).Create(rule).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, rule *ruledomain.CommissionRule) error {
	return db.WithContext(ctx).Save(rule).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&ruledomain.CommissionRule{}).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ruledomain.CommissionRule, error) {
	var rule ruledomain.CommissionRule
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, category ruledomain.RuleCategory) ([]ruledomain.CommissionRule, error) {
	var rules []ruledomain.CommissionRule
	err := db.WithContext(ctx).
		Where("category = ? AND active = ?", category, true).
		Order("min_value ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, category ruledomain.RuleCategory) ([]ruledomain.CommissionRule, error) {
	var rules []ruledomain.CommissionRule
	err := db.WithContext(ctx).
		Where("category = ?", category).
		Order("min_value ASC").
		Find(&rules).Error
	if err != nil {
		return nil, err
	}
	return rules, nil
}
