package migration

import (
	ruledomain "github.com/smallbiznis/settleway/internal/commissionrule/domain"
	"github.com/smallbiznis/settleway/internal/config"
	feedomain "github.com/smallbiznis/settleway/internal/feesettings/domain"
	orderdomain "github.com/smallbiznis/settleway/internal/order/domain"
	pricingdomain "github.com/smallbiznis/settleway/internal/pricing/domain"
	restaurantdomain "github.com/smallbiznis/settleway/internal/restaurant/domain"
	"github.com/smallbiznis/settleway/internal/seed"
	settlementdomain "github.com/smallbiznis/settleway/internal/settlement/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Non-postgres targets (sqlite in dev and tests) build the
			// schema from the models directly.
			if err := conn.AutoMigrate(
				&ruledomain.CommissionRule{},
				&feedomain.FeeSettings{},
				&restaurantdomain.Restaurant{},
				&orderdomain.Order{},
				&pricingdomain.Offer{},
				&settlementdomain.OrderSettlement{},
			); err != nil {
				return err
			}
		}

		if cfg.SeedDefaults {
			return seed.EnsureDefaults(conn)
		}
		return nil
	}),
)
