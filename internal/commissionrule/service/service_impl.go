package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	ruledomain "github.com/smallbiznis/settleway/internal/commissionrule/domain"
	"github.com/smallbiznis/settleway/internal/lock"
	obsmetrics "github.com/smallbiznis/settleway/internal/observability/metrics"
	"github.com/smallbiznis/settleway/pkg/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const ruleLockTTL = 10 * time.Second

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    ruledomain.Repository
	Locker  *lock.Locker        `optional:"true"`
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    ruledomain.Repository
	locker  *lock.Locker
	metrics *obsmetrics.Metrics
}

func New(p Params) ruledomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("commissionrule.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		locker:  p.Locker,
		metrics: p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req ruledomain.CreateRequest) (*ruledomain.CommissionRule, error) {
	category, err := normalizeCategory(req.Category)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ruledomain.ErrInvalidName
	}
	if err := validateRange(req.MinValue, req.MaxValue); err != nil {
		return nil, err
	}

	ruleType := req.RuleType
	if ruleType == "" {
		ruleType = ruledomain.RuleTypePercentage
	}
	if ruleType != ruledomain.RuleTypePercentage && ruleType != ruledomain.RuleTypeFlat {
		return nil, ruledomain.ErrInvalidRate
	}
	if req.RateBps < 0 || req.RateBps > 10000 {
		return nil, ruledomain.ErrInvalidRate
	}
	if req.BasePayoutCents < 0 || req.PerKmCents < 0 || req.FlatFeeCents < 0 {
		return nil, ruledomain.ErrInvalidRate
	}

	now := time.Now().UTC()
	entity := &ruledomain.CommissionRule{
		ID:              s.genID.Generate(),
		Category:        category,
		Name:            name,
		MinValue:        req.MinValue,
		MaxValue:        req.MaxValue,
		RuleType:        ruleType,
		BasePayoutCents: req.BasePayoutCents,
		PerKmCents:      req.PerKmCents,
		RateBps:         req.RateBps,
		FlatFeeCents:    req.FlatFeeCents,
		Active:          true,
		CreatedBy:       strings.TrimSpace(req.Actor),
		UpdatedBy:       strings.TrimSpace(req.Actor),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.withCategoryLock(ctx, category, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.validateNoOverlap(ctx, tx, entity, 0); err != nil {
				return err
			}
			return s.repo.Insert(ctx, tx, entity)
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("commission rule created",
		zap.String("rule_id", entity.ID.String()),
		zap.String("category", string(category)),
		zap.String("range", entity.RangeLabel()),
	)
	return entity, nil
}

func (s *Service) Update(ctx context.Context, id string, req ruledomain.UpdateRequest) (*ruledomain.CommissionRule, error) {
	ruleID, err := parseID(id)
	if err != nil {
		return nil, ruledomain.ErrInvalidID
	}

	existing, err := s.repo.FindByID(ctx, s.db, ruleID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ruledomain.ErrNotFound
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ruledomain.ErrInvalidName
		}
		updated.Name = name
	}
	if req.MinValue != nil {
		updated.MinValue = *req.MinValue
	}
	if req.ClearMaxValue {
		updated.MaxValue = nil
	} else if req.MaxValue != nil {
		updated.MaxValue = req.MaxValue
	}
	if err := validateRange(updated.MinValue, updated.MaxValue); err != nil {
		return nil, err
	}
	if req.RuleType != nil {
		if *req.RuleType != ruledomain.RuleTypePercentage && *req.RuleType != ruledomain.RuleTypeFlat {
			return nil, ruledomain.ErrInvalidRate
		}
		updated.RuleType = *req.RuleType
	}
	if req.BasePayoutCents != nil {
		updated.BasePayoutCents = *req.BasePayoutCents
	}
	if req.PerKmCents != nil {
		updated.PerKmCents = *req.PerKmCents
	}
	if req.RateBps != nil {
		updated.RateBps = *req.RateBps
	}
	if req.FlatFeeCents != nil {
		updated.FlatFeeCents = *req.FlatFeeCents
	}
	if updated.RateBps < 0 || updated.RateBps > 10000 ||
		updated.BasePayoutCents < 0 || updated.PerKmCents < 0 || updated.FlatFeeCents < 0 {
		return nil, ruledomain.ErrInvalidRate
	}
	updated.UpdatedBy = strings.TrimSpace(req.Actor)
	updated.UpdatedAt = time.Now().UTC()

	err = s.withCategoryLock(ctx, updated.Category, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if updated.Active {
				if err := s.validateNoOverlap(ctx, tx, &updated, updated.ID); err != nil {
					return err
				}
			}
			return s.repo.Update(ctx, tx, &updated)
		})
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Service) SetActive(ctx context.Context, id string, active bool, actor string) (*ruledomain.CommissionRule, error) {
	ruleID, err := parseID(id)
	if err != nil {
		return nil, ruledomain.ErrInvalidID
	}

	existing, err := s.repo.FindByID(ctx, s.db, ruleID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ruledomain.ErrNotFound
	}
	if existing.Active == active {
		return existing, nil
	}

	updated := *existing
	updated.Active = active
	updated.UpdatedBy = strings.TrimSpace(actor)
	updated.UpdatedAt = time.Now().UTC()

	err = s.withCategoryLock(ctx, updated.Category, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			// Re-activating a rule can reintroduce an overlap that was
			// tolerated while it sat inactive.
			if active {
				if err := s.validateNoOverlap(ctx, tx, &updated, updated.ID); err != nil {
					return err
				}
			}
			return s.repo.Update(ctx, tx, &updated)
		})
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Service) Delete(ctx context.Context, id string, actor string) error {
	ruleID, err := parseID(id)
	if err != nil {
		return ruledomain.ErrInvalidID
	}

	existing, err := s.repo.FindByID(ctx, s.db, ruleID)
	if err != nil {
		return err
	}
	if existing == nil {
		return ruledomain.ErrNotFound
	}

	return s.withCategoryLock(ctx, existing.Category, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			referenced, err := s.countSettlementReferences(ctx, tx, ruleID)
			if err != nil {
				return err
			}
			if referenced > 0 {
				// Historical settlements snapshot this rule; keep the row
				// so their audit trail stays resolvable.
				updated := *existing
				updated.Active = false
				updated.UpdatedBy = strings.TrimSpace(actor)
				updated.UpdatedAt = time.Now().UTC()
				return s.repo.Update(ctx, tx, &updated)
			}
			return s.repo.Delete(ctx, tx, ruleID)
		})
	})
}

func (s *Service) List(ctx context.Context, category ruledomain.RuleCategory) ([]ruledomain.CommissionRule, error) {
	normalized, err := normalizeCategory(category)
	if err != nil {
		return nil, err
	}
	return s.repo.List(ctx, s.db, normalized)
}

func (s *Service) Get(ctx context.Context, id string) (*ruledomain.CommissionRule, error) {
	ruleID, err := parseID(id)
	if err != nil {
		return nil, ruledomain.ErrInvalidID
	}
	rule, err := s.repo.FindByID(ctx, s.db, ruleID)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, ruledomain.ErrNotFound
	}
	return rule, nil
}

func (s *Service) ResolveTier(ctx context.Context, category ruledomain.RuleCategory, value float64) (*ruledomain.CommissionRule, error) {
	normalized, err := normalizeCategory(category)
	if err != nil {
		return nil, err
	}
	if value < 0 {
		return nil, ruledomain.ErrInvalidValue
	}

	rules, err := s.repo.ListActive(ctx, s.db, normalized)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, ruledomain.ErrNoActiveRules
	}

	// Rules come back sorted ascending by min_value. Keep scanning past
	// the first hit: a value sitting on the shared boundary of two
	// adjacent ranges is contained by both, and it belongs to the upper
	// tier (the one whose lower bound equals the value). The last rule
	// whose lower bound the value has passed doubles as the fallback
	// when the value lands in a gap above every matching range.
	var matched, fallback *ruledomain.CommissionRule
	for i := range rules {
		rule := rules[i]
		if value >= rule.MinValue {
			fallback = &rules[i]
			if rule.Contains(value) {
				matched = &rules[i]
			}
		}
	}
	if matched != nil {
		return matched, nil
	}
	if fallback != nil {
		return fallback, nil
	}

	// Below every configured tier: never fail hard, charge the lowest.
	return &rules[0], nil
}

func (s *Service) ComputeDeliveryCommission(ctx context.Context, distanceKm float64) (*ruledomain.DeliveryCommission, error) {
	if distanceKm < 0 {
		return nil, ruledomain.ErrInvalidValue
	}

	rule, err := s.ResolveTier(ctx, ruledomain.CategoryDelivery, distanceKm)
	if err != nil {
		return nil, err
	}

	// Base payout is always paid. The per-km rate kicks in only once the
	// trip exceeds the tier's lower bound, and then multiplies the whole
	// distance; the payout is deliberately not prorated beyond the
	// threshold.
	var distanceCents int64
	if distanceKm > rule.MinValue {
		distanceCents = money.RoundCents(distanceKm * float64(rule.PerKmCents))
	}

	return &ruledomain.DeliveryCommission{
		RuleID:          rule.ID.String(),
		RuleName:        rule.Name,
		DistanceKm:      distanceKm,
		BasePayoutCents: rule.BasePayoutCents,
		PerKmCents:      rule.PerKmCents,
		DistanceCents:   distanceCents,
		CommissionCents: rule.BasePayoutCents + distanceCents,
	}, nil
}

func (s *Service) ComputeRestaurantCommission(ctx context.Context, orderValueCents int64) (*ruledomain.RestaurantCommission, error) {
	if orderValueCents < 0 {
		return nil, ruledomain.ErrInvalidValue
	}

	rule, err := s.ResolveTier(ctx, ruledomain.CategoryRestaurant, float64(orderValueCents))
	if err != nil {
		return nil, err
	}

	result := &ruledomain.RestaurantCommission{
		RuleID:          rule.ID.String(),
		RuleName:        rule.Name,
		RuleType:        rule.RuleType,
		OrderValueCents: orderValueCents,
	}

	switch rule.RuleType {
	case ruledomain.RuleTypeFlat:
		result.CommissionCents = rule.FlatFeeCents
		if orderValueCents > 0 {
			result.Percentage = float64(rule.FlatFeeCents) / float64(orderValueCents) * 100
		}
	default:
		result.CommissionCents = money.ApplyBps(orderValueCents, rule.RateBps)
		result.Percentage = float64(rule.RateBps) / 100
	}

	return result, nil
}

// validateNoOverlap re-reads the category's active rules inside the
// caller's transaction and rejects the candidate if its range intersects
// any of them. excludeID skips the rule being updated.
func (s *Service) validateNoOverlap(ctx context.Context, tx *gorm.DB, candidate *ruledomain.CommissionRule, excludeID snowflake.ID) error {
	active, err := s.repo.ListActive(ctx, tx, candidate.Category)
	if err != nil {
		return err
	}

	var conflicts []ruledomain.CommissionRule
	for _, other := range active {
		if other.ID == excludeID {
			continue
		}
		if candidate.Overlaps(other) {
			conflicts = append(conflicts, other)
		}
	}
	if len(conflicts) == 0 {
		return nil
	}

	if s.metrics != nil {
		s.metrics.IncOverlapRejected(string(candidate.Category))
	}
	return &ruledomain.OverlapError{
		CandidateRange: candidate.RangeLabel(),
		Conflicts:      conflicts,
	}
}

// withCategoryLock serializes mutations per rule category via redis when
// a locker is wired, so concurrent admins cannot both validate against a
// stale rule set. Without redis the database transaction is the only
// isolation, which is sufficient on a single writer node.
func (s *Service) withCategoryLock(ctx context.Context, category ruledomain.RuleCategory, fn func() error) error {
	if s.locker == nil {
		return fn()
	}

	key := "settleway:commission_rules:" + string(category)
	token, ok, err := s.locker.TryLock(ctx, key, ruleLockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return ruledomain.ErrLockUnavailable
	}
	defer func() {
		if relErr := s.locker.Release(ctx, key, token); relErr != nil {
			s.log.Warn("failed to release rule lock", zap.String("key", key), zap.Error(relErr))
		}
	}()

	return fn()
}

func (s *Service) countSettlementReferences(ctx context.Context, tx *gorm.DB, ruleID snowflake.ID) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM order_settlements
		 WHERE restaurant_rule_id = ? OR delivery_rule_id = ?`,
		ruleID,
		ruleID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func normalizeCategory(category ruledomain.RuleCategory) (ruledomain.RuleCategory, error) {
	switch ruledomain.RuleCategory(strings.ToLower(strings.TrimSpace(string(category)))) {
	case ruledomain.CategoryRestaurant:
		return ruledomain.CategoryRestaurant, nil
	case ruledomain.CategoryDelivery:
		return ruledomain.CategoryDelivery, nil
	default:
		return "", ruledomain.ErrInvalidCategory
	}
}

func validateRange(min float64, max *float64) error {
	if min < 0 {
		return ruledomain.ErrInvalidRange
	}
	if max != nil && *max <= min {
		return ruledomain.ErrInvalidRange
	}
	return nil
}

func parseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(value))
}
