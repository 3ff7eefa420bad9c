package seat

import (
	"github.com/smallbiznis/accessd/internal/seat/repository"
	"github.com/smallbiznis/accessd/internal/seat/service"
	"go.uber.org/fx"
)

var Module = fx.Module("seat.service",
	fx.Provide(repository.NewRepository),
	fx.Provide(service.NewService),
)
