package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/liamcoop/wisepay/internal/config"
	"github.com/liamcoop/wisepay/internal/logger"
)

func main() {
	flags := config.FlagSet()
	migrationsPath := flags.String("path", "migrations", "Path to migrations directory")
	command := flags.String("command", "up", "Migration command: up, down, version, force")
	if err := flags.Parse(os.Args[1:]); err != nil {
		logger.Fatal("invalid arguments", "error", err.Error())
	}

	cfg, err := config.Load(flags)
	if err != nil {
		logger.Fatal("failed to load config", "error", err.Error())
	}
	if cfg.Database.URL == "" {
		logger.Fatal("database URL is required, use --database.url, WISEPAY_DATABASE_URL or DATABASE_URL")
	}

	logger.Info("connecting to database", "migrations", *migrationsPath)
	m, err := migrate.New(fmt.Sprintf("file://%s", *migrationsPath), cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to create migration instance", "error", err.Error())
	}
	defer m.Close()

	if err := run(m, *command, flags.Args()); err != nil {
		logger.Fatal("migration failed", "command", *command, "error", err.Error())
	}
}

func run(m *migrate.Migrate, command string, args []string) error {
	switch command {
	case "up":
		err := m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to run, database is up to date")
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("migrations completed")

	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		logger.Info("rollback completed")

	case "version":
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		logger.Info("current version", "version", version, "dirty", dirty)

	case "force":
		if len(args) < 1 {
			return errors.New("force requires a version number: --command force <version>")
		}
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version number: %w", err)
		}
		if err := m.Force(version); err != nil {
			return err
		}
		logger.Info("forced version", "version", version)

	default:
		return fmt.Errorf("unknown command %q (use: up, down, version, force)", command)
	}
	return nil
}
