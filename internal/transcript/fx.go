package transcript

import (
	"github.com/smallbiznis/taxverify/internal/transcript/repository"
	"github.com/smallbiznis/taxverify/internal/transcript/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transcript.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
