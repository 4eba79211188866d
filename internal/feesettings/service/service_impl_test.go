package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	feedomain "github.com/smallbiznis/settleway/internal/feesettings/domain"
	feerepo "github.com/smallbiznis/settleway/internal/feesettings/repository"
	feeservice "github.com/smallbiznis/settleway/internal/feesettings/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newFeeService(t *testing.T) feedomain.Service {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_fees_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&feedomain.FeeSettings{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return feeservice.New(feeservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  feerepo.Provide(),
	})
}

func TestResolveFallsBackToDefaults(t *testing.T) {
	ctx := context.Background()
	svc := newFeeService(t)

	got, err := svc.Resolve(ctx)
	require.NoError(t, err)

	defaults := feedomain.Defaults()
	assert.Equal(t, defaults.DeliveryFeeCents, got.DeliveryFeeCents)
	assert.Equal(t, defaults.PlatformFeeCents, got.PlatformFeeCents)
	assert.Equal(t, defaults.GSTRateBps, got.GSTRateBps)
}

func TestActivateRetiresPreviousActive(t *testing.T) {
	ctx := context.Background()
	svc := newFeeService(t)

	first, err := svc.Create(ctx, feedomain.CreateRequest{
		DeliveryFeeCents: 3000, PlatformFeeCents: 500, GSTRateBps: 500, Activate: true,
	})
	require.NoError(t, err)

	second, err := svc.Create(ctx, feedomain.CreateRequest{
		DeliveryFeeCents: 4000, PlatformFeeCents: 600, GSTRateBps: 500,
	})
	require.NoError(t, err)
	assert.False(t, second.Active)

	// First is still the active configuration.
	active, err := svc.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	_, err = svc.Activate(ctx, second.ID.String())
	require.NoError(t, err)

	active, err = svc.Resolve(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	// Exactly one row is active.
	all, err := svc.List(ctx)
	require.NoError(t, err)
	var activeCount int
	for _, row := range all {
		if row.Active {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestCreateValidatesRanges(t *testing.T) {
	ctx := context.Background()
	svc := newFeeService(t)

	_, err := svc.Create(ctx, feedomain.CreateRequest{
		DeliveryFeeCents: 3000,
		DeliveryFeeRanges: []feedomain.DeliveryFeeRange{
			{MinCents: 0, MaxCents: 20000, FeeCents: 4000},
			{MinCents: 15000, MaxCents: 50000, FeeCents: 3000},
		},
	})
	assert.ErrorIs(t, err, feedomain.ErrInvalidRanges)

	_, err = svc.Create(ctx, feedomain.CreateRequest{DeliveryFeeCents: -1})
	assert.ErrorIs(t, err, feedomain.ErrInvalidFee)

	_, err = svc.Create(ctx, feedomain.CreateRequest{GSTRateBps: 20000})
	assert.ErrorIs(t, err, feedomain.ErrInvalidFee)
}

func TestDeliveryFeeRangeResolution(t *testing.T) {
	ctx := context.Background()
	svc := newFeeService(t)

	created, err := svc.Create(ctx, feedomain.CreateRequest{
		DeliveryFeeCents: 5000,
		DeliveryFeeRanges: []feedomain.DeliveryFeeRange{
			{MinCents: 0, MaxCents: 20000, FeeCents: 4000},
			{MinCents: 20000, MaxCents: 50000, FeeCents: 3000},
			{MinCents: 50000, MaxCents: 100000, FeeCents: 2000},
		},
		Activate: true,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(4000), created.DeliveryFeeFor(15000))
	// Boundary belongs to the upper range.
	assert.Equal(t, int64(3000), created.DeliveryFeeFor(20000))
	assert.Equal(t, int64(2000), created.DeliveryFeeFor(60000))
	// Outside every range: flat fallback fee.
	assert.Equal(t, int64(5000), created.DeliveryFeeFor(150000))
}

func TestUpdateKeepsUnsetFields(t *testing.T) {
	ctx := context.Background()
	svc := newFeeService(t)

	created, err := svc.Create(ctx, feedomain.CreateRequest{
		DeliveryFeeCents: 3000, PlatformFeeCents: 500, GSTRateBps: 500,
	})
	require.NoError(t, err)

	newFee := int64(4500)
	updated, err := svc.Update(ctx, created.ID.String(), feedomain.UpdateRequest{
		DeliveryFeeCents: &newFee,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4500), updated.DeliveryFeeCents)
	assert.Equal(t, int64(500), updated.PlatformFeeCents)
	assert.Equal(t, int64(500), updated.GSTRateBps)
}

func TestUpdateUnknownID(t *testing.T) {
	ctx := context.Background()
	svc := newFeeService(t)

	fee := int64(100)
	_, err := svc.Update(ctx, "123456789", feedomain.UpdateRequest{DeliveryFeeCents: &fee})
	assert.ErrorIs(t, err, feedomain.ErrNotFound)

	_, err = svc.Update(ctx, "not-a-number", feedomain.UpdateRequest{DeliveryFeeCents: &fee})
	assert.ErrorIs(t, err, feedomain.ErrInvalidID)
}
