// Package db implements the custody stores on top of GORM and SQLite.
//
// A single *gorm.DB backs every repository. Store.Begin opens a GORM
// transaction and returns a UnitOfWork whose repositories run on it.
// Connections are capped at one: SQLite serializes writers anyway, and an
// in-memory database only exists on the connection that created it.
package db

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	// InMemorySQLiteDSN is a special DSN to create an ephemeral in-memory SQLite database.
	InMemorySQLiteDSN = ":memory:"

	// dbDirPermissions sets directory permissions to 750 (rwxr-x---).
	dbDirPermissions = 0o750
)

var (
	gormConfig = &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	// schemaModels lists the structs to be auto-migrated into the database.
	schemaModels = []any{
		&Wallet{},
		&Challenge{},
		&AnonChallenge{},
		&WorkKeyShare{},
		&RecoveryKeyShare{},
		&WalletActivation{},
		&WalletRecovery{},
		&Session{},
		&DeviceAndLocation{},
		&UserProfile{},
	}
)

// OpenFileStore opens (or creates) a file-backed SQLite database in dir and
// migrates the schema.
func OpenFileStore(dir, filename string) (*Store, error) {
	dsn, err := prepareFilePath(dir, filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to prepare database path")
	}
	return openSQLite(dsn)
}

// OpenInMemoryStore opens a non-persistent SQLite database in memory.
func OpenInMemoryStore() (*Store, error) {
	return openSQLite(InMemorySQLiteDSN)
}

func openSQLite(dsn string) (*Store, error) {
	if dsn != InMemorySQLiteDSN && !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000&cache=shared&mode=rwc"
	}

	client, err := gorm.Open(sqlite.Open(dsn), gormConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open SQLite database")
	}

	sqlDB, err := client.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	// Limit the pool before migrating so the schema lands on the one
	// connection an in-memory database lives on.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := client.AutoMigrate(schemaModels...); err != nil {
		return nil, errors.Wrap(err, "failed to auto-migrate database schema")
	}

	return &Store{repositories: repositories{db: client}, client: client}, nil
}

// prepareFilePath ensures the target directory exists and returns the full database file path.
func prepareFilePath(dir, filename string) (string, error) {
	if strings.Contains(dir, InMemorySQLiteDSN) {
		return dir, nil
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, dbDirPermissions); err != nil {
			return "", errors.Wrapf(err, "failed to create directory: %s", dir)
		}
	} else if err != nil {
		return "", errors.Wrap(err, "error checking directory")
	}

	return fmt.Sprintf("%s/%s", dir, filename), nil
}
