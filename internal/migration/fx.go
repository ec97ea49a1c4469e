package migration

import (
	"github.com/smallbiznis/nexus360/internal/config"
	"github.com/smallbiznis/nexus360/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if err := Run(conn, cfg); err != nil {
			return err
		}
		inserted, err := seed.EnsureSharedQuestionnaire(conn)
		if err != nil {
			return err
		}
		if inserted > 0 {
			log.Info("seeded shared questionnaire", zap.Int("questions", inserted))
		}
		return nil
	}),
)
