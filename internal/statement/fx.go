package statement

import (
	"github.com/smallbiznis/feeledger/internal/statement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("statement.service",
	fx.Provide(service.New),
)
