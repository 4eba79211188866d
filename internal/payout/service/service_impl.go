package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/settleway/internal/payout/domain"
	"github.com/smallbiznis/settleway/internal/providers/pdf"
	settlementdomain "github.com/smallbiznis/settleway/internal/settlement/domain"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
	PDF *pdf.ReportRenderer `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
	pdf *pdf.ReportRenderer
}

func New(p Params) domain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("payout.service"),
		pdf: p.PDF,
	}
}

func (s *Service) ListPending(ctx context.Context, party domain.Party) ([]domain.PendingPayout, error) {
	q := s.db.WithContext(ctx).Model(&settlementdomain.OrderSettlement{})

	// Cancelled settlements are included because late-stage
	// cancellations credit restaurant or courier compensation; the
	// earning-status filter keeps uncompensated cancellations out.
	payableStatuses := []settlementdomain.SettlementStatus{
		settlementdomain.SettlementCompleted,
		settlementdomain.SettlementCancelled,
	}

	switch party {
	case domain.PartyRestaurant:
		q = q.Where("settlement_status IN ?", payableStatuses).
			Where("restaurant_status = ?", settlementdomain.EarningCredited).
			Where("restaurant_settled = ?", false)
	case domain.PartyDeliveryPartner:
		q = q.Where("settlement_status IN ?", payableStatuses).
			Where("delivery_status = ?", settlementdomain.EarningCredited).
			Where("delivery_partner_settled = ?", false).
			Where("delivery_partner_id IS NOT NULL")
	case domain.PartyAdmin:
		q = q.Where("settlement_status = ?", settlementdomain.SettlementCompleted).
			Where("admin_status = ?", settlementdomain.EarningCredited).
			Where("admin_settled = ?", false)
	default:
		return nil, domain.ErrInvalidParty
	}

	var rows []settlementdomain.OrderSettlement
	if err := q.Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	grouped := make(map[snowflake.ID]*domain.PendingPayout)
	var order []snowflake.ID
	for _, row := range rows {
		key, amount, ok := payoutKey(party, row)
		if !ok {
			continue
		}
		p := grouped[key]
		if p == nil {
			id := key
			p = &domain.PendingPayout{Party: party}
			if party != domain.PartyAdmin {
				p.PartyID = &id
			}
			grouped[key] = p
			order = append(order, key)
		}
		p.OrderCount++
		p.TotalCents += amount
		p.OrderIDs = append(p.OrderIDs, row.OrderID)
	}

	out := make([]domain.PendingPayout, 0, len(order))
	for _, key := range order {
		out = append(out, *grouped[key])
	}
	return out, nil
}

func payoutKey(party domain.Party, row settlementdomain.OrderSettlement) (snowflake.ID, int64, bool) {
	switch party {
	case domain.PartyRestaurant:
		return row.RestaurantID, row.RestaurantEarning.NetEarningCents, true
	case domain.PartyDeliveryPartner:
		if row.DeliveryPartnerID == nil {
			return 0, 0, false
		}
		return *row.DeliveryPartnerID, row.DeliveryPartnerEarning.TotalEarningCents, true
	case domain.PartyAdmin:
		return 0, row.AdminEarning.TotalEarningCents, true
	}
	return 0, 0, false
}

func (s *Service) MarkProcessed(ctx context.Context, req domain.MarkProcessedRequest) (int64, error) {
	if len(req.OrderIDs) == 0 {
		return 0, nil
	}

	var flag, status string
	switch req.Party {
	case domain.PartyRestaurant:
		flag, status = "restaurant_settled", "restaurant_status"
	case domain.PartyDeliveryPartner:
		flag, status = "delivery_partner_settled", "delivery_status"
	case domain.PartyAdmin:
		flag, status = "admin_settled", "admin_status"
	default:
		return 0, domain.ErrInvalidParty
	}

	q := s.db.WithContext(ctx).Model(&settlementdomain.OrderSettlement{}).
		Where("order_id IN ?", req.OrderIDs).
		Where(flag+" = ?", false).
		Where(status+" = ?", settlementdomain.EarningCredited)
	if req.Party == domain.PartyRestaurant && req.PartyID != nil {
		q = q.Where("restaurant_id = ?", *req.PartyID)
	}
	if req.Party == domain.PartyDeliveryPartner && req.PartyID != nil {
		q = q.Where("delivery_partner_id = ?", *req.PartyID)
	}

	res := q.Update(flag, true)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected < int64(len(req.OrderIDs)) {
		s.log.Info("payout batch skipped some orders",
			zap.String("party", string(req.Party)),
			zap.Int("requested", len(req.OrderIDs)),
			zap.Int64("updated", res.RowsAffected),
		)
	}
	return res.RowsAffected, nil
}

func (s *Service) Report(ctx context.Context, req domain.ReportRequest) (*domain.Report, error) {
	if !req.To.After(req.From) {
		return nil, domain.ErrInvalidPeriod
	}

	q := s.db.WithContext(ctx).Model(&settlementdomain.OrderSettlement{}).
		Where("updated_at >= ? AND updated_at < ?", req.From, req.To).
		Where("settlement_status IN ?", []settlementdomain.SettlementStatus{
			settlementdomain.SettlementCompleted,
			settlementdomain.SettlementCancelled,
		})
	if req.RestaurantID != nil {
		q = q.Where("restaurant_id = ?", *req.RestaurantID)
	}

	var rows []settlementdomain.OrderSettlement
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	report := &domain.Report{From: req.From, To: req.To}
	for _, row := range rows {
		if row.SettlementStatus == settlementdomain.SettlementCancelled {
			report.OrdersCancelled++
			report.RefundedCents += row.Cancellation.RefundCents
			continue
		}
		// A completed settlement with a non-positive customer total is
		// corrupt input; keep the report usable and flag the row.
		if row.UserPayment.TotalCents <= 0 {
			s.log.Warn("skipping malformed settlement row in report",
				zap.Int64("order_id", int64(row.OrderID)),
				zap.Int64("user_total_cents", row.UserPayment.TotalCents),
			)
			continue
		}
		report.OrdersSettled++
		report.GrossRevenueCents += row.UserPayment.TotalCents
		report.RestaurantPayoutCents += row.RestaurantEarning.NetEarningCents
		report.DeliveryPayoutCents += row.DeliveryPartnerEarning.TotalEarningCents
		report.CommissionCents += row.RestaurantEarning.CommissionCents
		report.PlatformFeeCents += row.UserPayment.PlatformFeeCents
		report.GSTCollectedCents += row.UserPayment.GSTCents
		report.DeliveryMarginCents += row.AdminEarning.DeliveryMarginCents
		report.AdminEarningCents += row.AdminEarning.TotalEarningCents
	}

	if report.OrdersSettled > 0 {
		report.AveragePerOrderCents = report.GrossRevenueCents / report.OrdersSettled
	}
	return report, nil
}

func (s *Service) ReportPDF(ctx context.Context, req domain.ReportRequest) ([]byte, error) {
	report, err := s.Report(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.pdf == nil {
		return nil, pdf.ErrRendererUnavailable
	}
	return s.pdf.RenderSettlementReport(ctx, report)
}
