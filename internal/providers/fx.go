package providers

import (
	"github.com/smallbiznis/accessd/internal/providers/email"
	"go.uber.org/fx"
)

// Module bundles the outbound delivery channels.
var Module = fx.Module("providers",
	email.Module,
)
