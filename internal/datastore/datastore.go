// Package datastore owns the persistent store behind the monitoring engine:
// compliance rules, the execution ledger, alerts and preventive warnings.
package datastore

import (
	"fmt"

	"github.com/regwatch/regwatch/internal/conf"
	"github.com/regwatch/regwatch/internal/datastore/entities"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// Open connects to the configured database and runs migrations.
func Open(settings *conf.DatabaseSettings) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch settings.Type {
	case "sqlite":
		dialector = sqlite.Open(settings.Path + "?_foreign_keys=ON")
	case "mysql":
		dialector = mysql.Open(settings.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type %q", settings.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gorm_logger.Default.LogMode(gorm_logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", settings.Type, err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies the schema for all monitoring entities.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&entities.ComplianceRule{},
		&entities.TriggerCondition{},
		&entities.RuleExecution{},
		&entities.Alert{},
		&entities.PreventiveWarning{},
	); err != nil {
		return fmt.Errorf("failed to migrate monitoring tables: %w", err)
	}
	return nil
}
