package scheduler

import (
	"context"
	"time"

	"github.com/smallbiznis/settleway/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(Start),
)

func ProvideConfig(cfg config.Config) Config {
	c := Config{}
	if cfg.SweepInterval > 0 {
		c.RunInterval = time.Duration(cfg.SweepInterval) * time.Second
	}
	return c.withDefaults()
}

// Start launches the sweep loop unless the interval disables it.
func Start(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	if cfg.SweepInterval <= 0 {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runCtx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(runCtx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
