package commissionrule

import (
	"github.com/smallbiznis/settleway/internal/commissionrule/repository"
	"github.com/smallbiznis/settleway/internal/commissionrule/service"
	"go.uber.org/fx"
)

var Module = fx.Module("commissionrule.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
