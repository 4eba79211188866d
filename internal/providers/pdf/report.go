package pdf

import (
	"context"
	"errors"
	"fmt"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"

	payoutdomain "github.com/smallbiznis/settleway/internal/payout/domain"
	"github.com/smallbiznis/settleway/pkg/money"
)

var ErrRendererUnavailable = errors.New("pdf_renderer_unavailable")

// ReportRenderer renders settlement period reports as PDF documents.
type ReportRenderer struct{}

func New() *ReportRenderer {
	return &ReportRenderer{}
}

func (r *ReportRenderer) RenderSettlementReport(ctx context.Context, report *payoutdomain.Report) ([]byte, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Settlement Report", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(14,
		col.New(12).Add(
			text.New("Period: "+report.From.Format("2 Jan 2006")+" to "+report.To.Format("2 Jan 2006"), props.Text{Top: 0}),
			text.New(fmt.Sprintf("Orders settled: %d    Orders cancelled: %d", report.OrdersSettled, report.OrdersCancelled), props.Text{Top: 5}),
		),
	)

	m.AddRow(10,
		text.NewCol(8, "Line", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	lines := []struct {
		label string
		cents int64
	}{
		{"Gross revenue", report.GrossRevenueCents},
		{"Restaurant payouts", report.RestaurantPayoutCents},
		{"Delivery partner payouts", report.DeliveryPayoutCents},
		{"Commission earned", report.CommissionCents},
		{"Platform fees", report.PlatformFeeCents},
		{"GST collected", report.GSTCollectedCents},
		{"Delivery margin", report.DeliveryMarginCents},
		{"Refunds issued", report.RefundedCents},
	}
	for _, line := range lines {
		m.AddRow(8,
			text.NewCol(8, line.label, props.Text{Size: 9}),
			text.NewCol(4, money.FormatCents(line.cents), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		text.NewCol(8, "Platform earnings", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(4, money.FormatCents(report.AdminEarningCents), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		text.NewCol(8, "Average per settled order", props.Text{Size: 9}),
		text.NewCol(4, money.FormatCents(report.AveragePerOrderCents), props.Text{Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
