package seat

import (
	"github.com/smallbiznis/seatkeeper/internal/seat/domain"
	"github.com/smallbiznis/seatkeeper/internal/seat/service"
	"go.uber.org/fx"
)

var Module = fx.Module("seat.service",
	fx.Provide(service.NewEngine),
	fx.Provide(func(e *service.Engine) domain.Engine { return e }),
	fx.Provide(func(e *service.Engine) domain.Syncer { return e }),
)
