package cycle

import (
	"github.com/smallbiznis/nexus360/internal/cycle/repository"
	"github.com/smallbiznis/nexus360/internal/cycle/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cycle.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
