package migration

import (
	"strings"

	"github.com/smallbiznis/taxverify/internal/config"
	pkgdb "github.com/smallbiznis/taxverify/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if strings.EqualFold(strings.TrimSpace(cfg.DBType), pkgdb.TypePostgres) {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
			log.Info("schema migrated", zap.String("mode", "golang-migrate"))
			return nil
		}

		if err := AutoMigrate(conn); err != nil {
			return err
		}
		log.Info("schema migrated", zap.String("mode", "automigrate"), zap.String("db_type", cfg.DBType))
		return nil
	}),
)
