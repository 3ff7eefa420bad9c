package role

import (
	"github.com/smallbiznis/accessd/internal/role/repository"
	"github.com/smallbiznis/accessd/internal/role/service"
	"go.uber.org/fx"
)

var Module = fx.Module("role.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
