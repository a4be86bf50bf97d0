package migrations

import (
	"github.com/classboard/notification-engine/internal/repository"
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		createTemplates(),
		createSchedules(),
		createDeliveries(),
		createDeliveryAttempts(),
		createUserPreferences(),
	})

	return m.Migrate()
}

func createTemplates() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_templates",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.TemplateModel{}); err != nil {
				return err
			}
			return tx.Exec(
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_templates_type_locale_active ON templates (type, locale) WHERE is_active`,
			).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.TemplateModel{})
		},
	}
}

func createSchedules() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_schedules",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ScheduleModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules (next_fire_at) WHERE status = 'SCHEDULED' AND next_fire_at IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_schedules_status_created ON schedules (status, created_at)`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ScheduleModel{})
		},
	}
}

func createDeliveries() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_deliveries",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryModel{}); err != nil {
				return err
			}
			indexes := []string{
				`CREATE UNIQUE INDEX IF NOT EXISTS idx_deliveries_fire_recipient_channel ON deliveries (fire_id, user_id, channel)`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_schedule_id ON deliveries (schedule_id)`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_status_channel_created ON deliveries (status, channel, created_at)`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_retry ON deliveries (next_retry_at) WHERE status = 'FAILED' AND next_retry_at IS NOT NULL`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_send_at ON deliveries (send_at) WHERE status = 'SCHEDULED'`,
				`CREATE INDEX IF NOT EXISTS idx_deliveries_expiry ON deliveries (expires_at) WHERE status IN ('PENDING', 'SCHEDULED') AND expires_at IS NOT NULL`,
			}
			for _, sql := range indexes {
				if err := tx.Exec(sql).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryModel{})
		},
	}
}

func createDeliveryAttempts() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_delivery_attempts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.DeliveryAttemptModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_attempts_delivery_id ON delivery_attempts (delivery_id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.DeliveryAttemptModel{})
		},
	}
}

func createUserPreferences() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000005_create_user_preferences",
		Migrate: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&repository.PreferenceModel{})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.PreferenceModel{})
		},
	}
}
