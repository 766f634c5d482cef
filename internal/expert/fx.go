package expert

import (
	"github.com/smallbiznis/taxverify/internal/expert/repository"
	"github.com/smallbiznis/taxverify/internal/expert/service"
	"go.uber.org/fx"
)

var Module = fx.Module("expert.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
