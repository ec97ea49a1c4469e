package report

import (
	"github.com/smallbiznis/nexus360/internal/report/repository"
	"github.com/smallbiznis/nexus360/internal/report/service"
	"go.uber.org/fx"
)

var Module = fx.Module("report.service",
	fx.Provide(repository.ProvideShares),
	fx.Provide(service.New),
)
