package ratelimit

import "go.uber.org/fx"

var Module = fx.Module("auth.throttle",
	fx.Provide(NewAuthLimiter),
)
