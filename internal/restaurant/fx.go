package restaurant

import (
	"github.com/smallbiznis/settleway/internal/restaurant/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("restaurant.repository",
	fx.Provide(repository.Provide),
)
