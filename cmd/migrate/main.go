package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/marianozunino/gatedrop/internal/migration"
)

func main() {
	var (
		dbPath  = flag.String("db", "./data/gatedrop.db", "Database path")
		action  = flag.String("action", "up", "Migration action: up, down, force, goto, version, drop")
		version = flag.Int("version", 0, "Version to force or migrate to")
	)
	flag.Parse()

	if err := os.MkdirAll(filepath.Dir(*dbPath), 0o755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	m, err := migration.NewManager(*dbPath)
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}
	defer m.Close()

	switch *action {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "force":
		if *version == 0 {
			log.Fatal("Version must be specified for force action")
		}
		err = m.Force(*version)
	case "goto":
		if *version <= 0 {
			log.Fatal("Version must be specified for goto action")
		}
		err = m.MigrateToVersion(uint(*version))
	case "version":
		v, dirty, verr := m.Version()
		if verr != nil {
			log.Fatalf("Failed to read version: %v", verr)
		}
		log.Printf("Database version %d (dirty: %t)", v, dirty)
	case "drop":
		err = m.Drop()
	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	if err != nil {
		log.Fatalf("Migration %s failed: %v", *action, err)
	}
}
