// Package db opens the gorm connection for the configured driver and
// migrates every table the service owns.
package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/suPer8Hu/mygpt/internal/account"
	"github.com/suPer8Hu/mygpt/internal/conversation"
	"github.com/suPer8Hu/mygpt/internal/turnjob"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryDSN opens a private in-memory SQLite database.
const MemoryDSN = ":memory:"

func dialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	case "sqlite":
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER=%q", driver)
	}
}

// Connect opens and pings the database.
func Connect(driver, dsn string) (*gorm.DB, error) {
	d, err := dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	gdb, err := gorm.Open(d, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(driver, "sqlite") {
		// one writer; an in-memory database also lives only as long as its connection
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return gdb, nil
}

// Migrate creates or updates every table.
func Migrate(gdb *gorm.DB) error {
	models := []any{&account.User{}, &turnjob.Job{}}
	models = append(models, conversation.Models()...)
	return gdb.AutoMigrate(models...)
}
