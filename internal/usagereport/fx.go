package usagereport

import (
	"context"
	"time"

	"github.com/smallbiznis/taxverify/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const pushInterval = 5 * time.Minute

var Module = fx.Module("usage.report",
	fx.Provide(NewPusher),
	fx.Provide(func(cfg config.Config, pusher Pusher, log *zap.Logger) *Reporter {
		if !cfg.UsageMetrics.Enabled || pusher == nil {
			return nil
		}
		return NewReporter(nil, pusher, log)
	}),
	fx.Invoke(Start),
)

// Start runs the push loop for the lifetime of the app. A nil reporter means
// reporting is off.
func Start(lc fx.Lifecycle, r *Reporter, db *gorm.DB) {
	if r == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			r.log.Info("starting usage reporter", zap.Duration("interval", pushInterval))
			go func() {
				defer close(done)
				ticker := time.NewTicker(pushInterval)
				defer ticker.Stop()
				for {
					r.RefreshRequestCount(ctx, db)
					if err := r.Push(ctx); err != nil {
						r.log.Warn("usage push failed", zap.Error(err))
					}
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			// flush what was billed since the last tick
			flushCtx, flushCancel := context.WithTimeout(context.Background(), defaultPushTimeout)
			defer flushCancel()
			if err := r.Push(flushCtx); err != nil {
				r.log.Warn("final usage push failed", zap.Error(err))
			}
			return nil
		},
	})
}
