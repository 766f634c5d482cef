package webhook

import (
	"context"

	trdomain "github.com/smallbiznis/taxverify/internal/transcriptrequest/domain"
	"github.com/smallbiznis/taxverify/internal/webhook/domain"
	"github.com/smallbiznis/taxverify/internal/webhook/repository"
	"github.com/smallbiznis/taxverify/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.ProvideConfig),
	fx.Provide(service.New),
	fx.Provide(
		func(d *service.Dispatcher) domain.Outbox { return d },
		func(d *service.Dispatcher) trdomain.DeliveryLookup { return d },
	),
	fx.Invoke(StartDispatcher),
)

// StartDispatcher runs the delivery loop for the lifetime of the app.
func StartDispatcher(lc fx.Lifecycle, d *service.Dispatcher) {
	var cancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			go d.RunForever(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			if cancel != nil {
				cancel()
			}
			return nil
		},
	})
}
