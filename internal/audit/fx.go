package audit

import (
	"github.com/smallbiznis/seatkeeper/internal/audit/repository"
	"github.com/smallbiznis/seatkeeper/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
