package feesettings

import (
	"github.com/smallbiznis/settleway/internal/feesettings/repository"
	"github.com/smallbiznis/settleway/internal/feesettings/service"
	"go.uber.org/fx"
)

var Module = fx.Module("feesettings.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
