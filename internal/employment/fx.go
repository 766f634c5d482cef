package employment

import (
	"github.com/smallbiznis/taxverify/internal/employment/repository"
	"github.com/smallbiznis/taxverify/internal/employment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("employment.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
