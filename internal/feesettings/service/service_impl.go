package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	feedomain "github.com/smallbiznis/settleway/internal/feesettings/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  feedomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  feedomain.Repository
}

func New(p Params) feedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("feesettings.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) Resolve(ctx context.Context) (*feedomain.FeeSettings, error) {
	active, err := s.repo.FindActive(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if active == nil {
		defaults := feedomain.Defaults()
		return &defaults, nil
	}
	return active, nil
}

func (s *Service) Create(ctx context.Context, req feedomain.CreateRequest) (*feedomain.FeeSettings, error) {
	if req.DeliveryFeeCents < 0 || req.FreeDeliveryThresholdCents < 0 || req.PlatformFeeCents < 0 {
		return nil, feedomain.ErrInvalidFee
	}
	if req.GSTRateBps < 0 || req.GSTRateBps > 10000 {
		return nil, feedomain.ErrInvalidFee
	}

	ranges, err := normalizeRanges(req.DeliveryFeeRanges)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entity := &feedomain.FeeSettings{
		ID:                         s.genID.Generate(),
		DeliveryFeeCents:           req.DeliveryFeeCents,
		DeliveryFeeRanges:          datatypes.NewJSONType(ranges),
		FreeDeliveryThresholdCents: req.FreeDeliveryThresholdCents,
		PlatformFeeCents:           req.PlatformFeeCents,
		GSTRateBps:                 req.GSTRateBps,
		Active:                     false,
		CreatedBy:                  strings.TrimSpace(req.Actor),
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if req.Activate {
			if err := s.repo.DeactivateAll(ctx, tx); err != nil {
				return err
			}
			entity.Active = true
		}
		return s.repo.Insert(ctx, tx, entity)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("fee settings created",
		zap.String("fee_settings_id", entity.ID.String()),
		zap.Bool("active", entity.Active),
	)
	return entity, nil
}

func (s *Service) Update(ctx context.Context, id string, req feedomain.UpdateRequest) (*feedomain.FeeSettings, error) {
	settingsID, err := parseID(id)
	if err != nil {
		return nil, feedomain.ErrInvalidID
	}

	existing, err := s.repo.FindByID(ctx, s.db, settingsID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, feedomain.ErrNotFound
	}

	updated := *existing
	if req.DeliveryFeeCents != nil {
		updated.DeliveryFeeCents = *req.DeliveryFeeCents
	}
	if req.DeliveryFeeRanges != nil {
		ranges, err := normalizeRanges(req.DeliveryFeeRanges)
		if err != nil {
			return nil, err
		}
		updated.DeliveryFeeRanges = datatypes.NewJSONType(ranges)
	}
	if req.FreeDeliveryThresholdCents != nil {
		updated.FreeDeliveryThresholdCents = *req.FreeDeliveryThresholdCents
	}
	if req.PlatformFeeCents != nil {
		updated.PlatformFeeCents = *req.PlatformFeeCents
	}
	if req.GSTRateBps != nil {
		updated.GSTRateBps = *req.GSTRateBps
	}
	if updated.DeliveryFeeCents < 0 || updated.FreeDeliveryThresholdCents < 0 ||
		updated.PlatformFeeCents < 0 || updated.GSTRateBps < 0 || updated.GSTRateBps > 10000 {
		return nil, feedomain.ErrInvalidFee
	}
	updated.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, s.db, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Activate makes one row the active configuration, retiring the
// previous active row in the same transaction so the single-active
// invariant holds rather than relying on creation-order tie-breaking.
func (s *Service) Activate(ctx context.Context, id string) (*feedomain.FeeSettings, error) {
	settingsID, err := parseID(id)
	if err != nil {
		return nil, feedomain.ErrInvalidID
	}

	var activated *feedomain.FeeSettings
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.FindByID(ctx, tx, settingsID)
		if err != nil {
			return err
		}
		if existing == nil {
			return feedomain.ErrNotFound
		}
		if err := s.repo.DeactivateAll(ctx, tx); err != nil {
			return err
		}
		updated := *existing
		updated.Active = true
		updated.UpdatedAt = time.Now().UTC()
		if err := s.repo.Update(ctx, tx, &updated); err != nil {
			return err
		}
		activated = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return activated, nil
}

func (s *Service) List(ctx context.Context) ([]feedomain.FeeSettings, error) {
	return s.repo.List(ctx, s.db)
}

func normalizeRanges(ranges []feedomain.DeliveryFeeRange) ([]feedomain.DeliveryFeeRange, error) {
	if len(ranges) == 0 {
		return nil, nil
	}

	out := make([]feedomain.DeliveryFeeRange, len(ranges))
	copy(out, ranges)
	sort.Slice(out, func(i, j int) bool { return out[i].MinCents < out[j].MinCents })

	for i, r := range out {
		if r.MinCents < 0 || r.MaxCents <= r.MinCents || r.FeeCents < 0 {
			return nil, feedomain.ErrInvalidRanges
		}
		if i > 0 && r.MinCents < out[i-1].MaxCents {
			return nil, feedomain.ErrInvalidRanges
		}
	}
	return out, nil
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
