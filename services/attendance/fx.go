package attendance

import (
	"go.uber.org/fx"
)

var Module = fx.Module("attendance.service",
	fx.Provide(NewService),
)
