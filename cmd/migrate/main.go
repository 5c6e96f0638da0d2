package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/ManuelReschke/LocalListings/internal/pkg/config"
	"github.com/ManuelReschke/LocalListings/internal/pkg/env"
	"github.com/ManuelReschke/LocalListings/internal/pkg/logger"
)

func main() {
	env.SetupEnvFile()

	log, err := logger.NewLogger(env.GetEnv("LOG_LEVEL", "info"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]

	dbCfg, err := config.LoadDatabase()
	if err != nil {
		log.Fatalw("invalid database configuration", "error", err)
	}
	log.Infow("connecting to database", "user", dbCfg.User, "host", dbCfg.Host, "port", dbCfg.Port, "name", dbCfg.Name)

	m, err := migrate.New(env.GetEnv("MIGRATIONS_SOURCE", "file://migrations"), dbCfg.MigrateURL())
	if err != nil {
		log.Fatalw("failed to initialize migrations", "error", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Warnw("failed to close migration resources", "source_error", sourceErr, "database_error", dbErr)
		}
	}()

	switch command {
	case "up":
		err := m.Up()
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			log.Info("no change: database is up to date")
		case err != nil:
			log.Fatalw("failed to apply migrations", "error", err)
		default:
			log.Info("migrations applied")
		}

	case "down":
		if err := m.Steps(-1); err != nil {
			log.Fatalw("failed to roll back last migration", "error", err)
		}
		log.Info("last migration rolled back")

	case "goto":
		version := versionArg(log)
		err := m.Migrate(version)
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			log.Infow("no change: database already at version", "version", version)
		case err != nil:
			log.Fatalw("failed to migrate", "version", version, "error", err)
		default:
			log.Infow("migrated", "version", version)
		}

	case "force":
		version := versionArg(log)
		if err := m.Force(int(version)); err != nil {
			log.Fatalw("failed to force version", "version", version, "error", err)
		}
		log.Infow("version forced", "version", version)

	case "status":
		version, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			log.Info("no migrations applied yet")
		case err != nil:
			log.Fatalw("failed to read migration version", "error", err)
		default:
			log.Infow("current migration version", "version", version, "dirty", dirty)
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func versionArg(log *logger.Logger) uint {
	if len(os.Args) < 3 {
		log.Fatal("a version number is required")
	}
	version, err := strconv.ParseUint(os.Args[2], 10, 64)
	if err != nil {
		log.Fatalw("invalid version number", "value", os.Args[2], "error", err)
	}
	return uint(version)
}

func printUsage() {
	fmt.Println("Usage: go run cmd/migrate/main.go [command]")
	fmt.Println("Commands:")
	fmt.Println("  up       - apply all pending migrations")
	fmt.Println("  down     - roll back the last migration")
	fmt.Println("  goto N   - migrate to version N")
	fmt.Println("  force N  - set version N without running migrations (clears dirty state)")
	fmt.Println("  status   - show the current migration version")
}
