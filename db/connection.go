package db

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewConnection(path string) (*gorm.DB, error) {
	dblgr := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", errors.WithStack(err))
		}
	}

	dbc, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: dblgr})
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", errors.WithStack(err))
	}

	if err := dbc.AutoMigrate(&Conversation{}, &Turn{}); err != nil {
		return nil, fmt.Errorf("auto-migrating database: %w", errors.WithStack(err))
	}

	return dbc, nil
}
