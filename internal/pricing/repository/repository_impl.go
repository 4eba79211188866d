package repository

import (
	"context"
	"errors"
	"strings"

	pricingdomain "github.com/smallbiznis/settleway/internal/pricing/domain"
	"gorm.io/gorm"
)

type offerRepo struct{}

func Provide() pricingdomain.OfferRepository {
	return &offerRepo{}
}

func (r *offerRepo) Insert(ctx context.Context, db *gorm.DB, offer *pricingdomain.Offer) error {
	return db.WithContext(ctx).Create(offer).Error
}

func (r *offerRepo) FindByCode(ctx context.Context, db *gorm.DB, code string) (*pricingdomain.Offer, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}

	var offer pricingdomain.Offer
	err := db.WithContext(ctx).Where("UPPER(code) = ?", code).First(&offer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &offer, nil
}
