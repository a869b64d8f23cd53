// The migrate command applies database migrations.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/hammerstone/live-auction-backend/internal/infrastructure/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	source := flag.String("source", "file://migrations", "migration source")
	down := flag.Bool("down", false, "roll back one migration instead of migrating up")
	flag.Parse()

	if err := run(*configPath, *source, *down); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, source string, down bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	m, err := migrate.New(source, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}
	defer m.Close()

	if down {
		err = m.Steps(-1)
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading version: %w", err)
	}
	fmt.Printf("schema version %d (dirty=%v)\n", version, dirty)
	return nil
}
