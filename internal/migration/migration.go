package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

// Manager handles database migrations
type Manager struct {
	migrator *migrate.Migrate
	db       *sql.DB
	ownsDB   bool
}

// NewManagerWithDB creates a new migration manager using an existing database connection
func NewManagerWithDB(db *sql.DB) (*Manager, error) {
	migrator, err := newMigrator(db)
	if err != nil {
		return nil, err
	}
	return &Manager{migrator: migrator, db: db}, nil
}

// NewManager opens dbPath and creates a migration manager owning the connection
func NewManager(dbPath string) (*Manager, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	migrator, err := newMigrator(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Manager{migrator: migrator, db: db, ownsDB: true}, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	sourceDriver, err := iofs.New(MigrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return migrator, nil
}

// Up runs all pending migrations
func (m *Manager) Up() error {
	log.Println("Running database migrations...")

	if err := m.FixDirtyState(); err != nil {
		return err
	}

	err := m.migrator.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("No new migrations to run")
	} else {
		log.Println("Migrations completed successfully")
	}
	return nil
}

// Down rolls back the last migration
func (m *Manager) Down() error {
	log.Println("Rolling back last migration...")

	err := m.migrator.Steps(-1)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to rollback migration: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("No migrations to rollback")
	} else {
		log.Println("Migration rollback completed successfully")
	}
	return nil
}

// Force sets the migration version without running migrations
func (m *Manager) Force(version int) error {
	log.Printf("Forcing migration version to %d...", version)

	if err := m.migrator.Force(version); err != nil {
		return fmt.Errorf("failed to force migration version: %w", err)
	}

	log.Printf("Migration version forced to %d", version)
	return nil
}

// Version returns the current migration version
func (m *Manager) Version() (uint, bool, error) {
	version, dirty, err := m.migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, dirty, nil
}

// MigrateToVersion migrates to a specific version
func (m *Manager) MigrateToVersion(targetVersion uint) error {
	log.Printf("Migrating to version %d...", targetVersion)

	err := m.migrator.Migrate(targetVersion)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate to version %d: %w", targetVersion, err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		log.Printf("Already at version %d", targetVersion)
	} else {
		log.Printf("Successfully migrated to version %d", targetVersion)
	}
	return nil
}

// FixDirtyState attempts to fix a dirty migration state
func (m *Manager) FixDirtyState() error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}

	log.Printf("Database is in dirty state at version %d. Attempting to fix...", version)

	if err := m.migrator.Force(int(version)); err != nil {
		log.Printf("Warning: Failed to force clean version %d: %v", version, err)
		if version == 0 {
			return fmt.Errorf("database is dirty at version 0 and cannot be fixed automatically")
		}
		log.Printf("Attempting to force to previous version %d...", version-1)
		if err := m.migrator.Force(int(version - 1)); err != nil {
			return fmt.Errorf("failed to fix dirty database state: %w", err)
		}
		log.Printf("Successfully forced to version %d", version-1)
		return nil
	}

	log.Printf("Successfully cleaned dirty state at version %d", version)
	return nil
}

// Drop drops all tables (use with caution!)
func (m *Manager) Drop() error {
	log.Println("Dropping all tables...")

	if err := m.migrator.Drop(); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}

	log.Println("All tables dropped successfully")
	return nil
}

// Close releases the connection if the manager opened it. A shared connection stays open.
func (m *Manager) Close() error {
	if !m.ownsDB {
		return nil
	}
	return m.db.Close()
}
