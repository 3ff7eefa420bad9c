package contract

import (
	"github.com/smallbiznis/accessd/internal/contract/repository"
	"github.com/smallbiznis/accessd/internal/contract/service"
	"go.uber.org/fx"
)

var Module = fx.Module("contract.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
