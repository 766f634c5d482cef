package transcriptrequest

import (
	"github.com/smallbiznis/taxverify/internal/transcriptrequest/repository"
	"github.com/smallbiznis/taxverify/internal/transcriptrequest/service"
	"go.uber.org/fx"
)

var Module = fx.Module("transcriptrequest.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
