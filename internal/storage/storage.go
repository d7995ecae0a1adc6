package storage

import (
	"fmt"
	"log"
	"strings"

	"pollctl/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MemoryDSN is a private in-memory SQLite database. Each name gets its own
// database, shared between the pool's connections.
func MemoryDSN(name string) string {
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}

// Open connects to dsn and migrates the schema. postgres:// and
// postgresql:// DSNs use the Postgres driver; anything else is a SQLite path.
func Open(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialector.Name() == "sqlite" {
		// one writer at a time; also keeps a memory database alive
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Poll{},
		&models.Choice{},
		&models.VoteCount{},
		&models.Voter{},
		&models.VoterToken{},
		&models.PollResult{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("Database ready (%s)", dialector.Name())
	return db, nil
}
