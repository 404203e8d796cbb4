package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"ms-auction/internal/config"
	"ms-auction/internal/database/migrations"
	"ms-auction/internal/logger"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: migrate [-dir ./migrations] [-seed] up|down|version\n")
	flag.PrintDefaults()
}

func main() {
	cfg := config.Load()

	dir := flag.String("dir", cfg.Migrations.Dir, "migrations directory")
	seed := flag.Bool("seed", false, "also apply demo data migrations on up")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
		os.Exit(2)
	}

	logger := logger.NewLogger("migrate")
	defer logger.Close()

	sqldb, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		logger.Fatal("DATABASE", fmt.Sprintf("Failed to open PostgreSQL: %v", err))
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{MigrationsDir: *dir, SeedData: *seed}, logger)
	defer runner.Close()

	switch flag.Arg(0) {
	case "up":
		err = runner.RunMigrations()
	case "down":
		err = runner.MigrateDown()
	case "version":
		var version uint
		var dirty bool
		version, dirty, err = runner.Version()
		if err == nil {
			fmt.Printf("version=%d dirty=%t\n", version, dirty)
		}
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Fatal("MIGRATE", err.Error())
	}
	logger.Info("MIGRATE", fmt.Sprintf("%s complete", flag.Arg(0)))
}
