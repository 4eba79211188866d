package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	feedomain "github.com/smallbiznis/settleway/internal/feesettings/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() feedomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, settings *feedomain.FeeSettings) error {
	return db.WithContext(ctx).Create(settings).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, settings *feedomain.FeeSettings) error {
	return db.WithContext(ctx).Save(settings).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*feedomain.FeeSettings, error) {
	var settings feedomain.FeeSettings
	err := db.WithContext(ctx).Where("id = ?", id).First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &settings, nil
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB) (*feedomain.FeeSettings, error) {
	var settings feedomain.FeeSettings
	err := db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at DESC").
		First(&settings).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &settings, nil
}

func (r *repo) DeactivateAll(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).
		Model(&feedomain.FeeSettings{}).
		Where("active = ?", true).
		Update("active", false).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]feedomain.FeeSettings, error) {
	var items []feedomain.FeeSettings
	err := db.WithContext(ctx).Order("created_at DESC").Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
