package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	restaurantdomain "github.com/smallbiznis/settleway/internal/restaurant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() restaurantdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, restaurant *restaurantdomain.Restaurant) error {
	if strings.TrimSpace(restaurant.Slug) == "" {
		restaurant.Slug = slug.Make(restaurant.Name)
	}
	return db.WithContext(ctx).Create(restaurant).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*restaurantdomain.Restaurant, error) {
	return r.findOne(ctx, db, "id = ?", id)
}

func (r *repo) ResolveRef(ctx context.Context, db *gorm.DB, ref string) (*restaurantdomain.Restaurant, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, nil
	}

	if id, err := snowflake.ParseString(ref); err == nil {
		if found, err := r.findOne(ctx, db, "id = ?", id); err != nil || found != nil {
			return found, err
		}
	}
	if found, err := r.findOne(ctx, db, "slug = ?", ref); err != nil || found != nil {
		return found, err
	}
	return r.findOne(ctx, db, "external_id = ?", ref)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, arg any) (*restaurantdomain.Restaurant, error) {
	var restaurant restaurantdomain.Restaurant
	err := db.WithContext(ctx).Where(query, arg).First(&restaurant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &restaurant, nil
}
