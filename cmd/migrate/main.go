// Command migrate applies the embedded goose migrations.
//
// Usage:
//
//	migrate [flags] [up|down|status|version]
//
// The command defaults to "up". Connection settings come from DATABASE_URL
// or the POSTGRES_* variables the server itself uses.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/repolens/repolens/internal/migrate"
	"github.com/repolens/repolens/pkg/logger"
)

func main() {
	upTo := flag.Int64("to", 0, "Migrate up to a specific version (0 = latest)")
	flag.Parse()

	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	_ = godotenv.Load(".env")

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getEnv("POSTGRES_HOST", "localhost")
		port := getEnv("POSTGRES_PORT", "5432")
		user := getEnv("POSTGRES_USER", "repolens")
		pass := getEnv("POSTGRES_PASSWORD", "")
		name := getEnv("POSTGRES_DB", "repolens")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, name)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	log := logger.NewLogger()
	m := migrate.NewMigrator(db, log)
	ctx := context.Background()

	var err error
	switch cmd {
	case "up":
		if *upTo > 0 {
			err = m.UpTo(ctx, *upTo)
		} else {
			err = m.Up(ctx)
		}
	case "down":
		err = m.Down(ctx)
	case "status":
		err = m.Status(ctx)
	case "version":
		var v int64
		if v, err = m.Version(ctx); err == nil {
			fmt.Printf("database version: %d\n", v)
		}
	default:
		fmt.Println("Usage: migrate [-to <version>] [up|down|status|version]")
		os.Exit(1)
	}
	if err != nil {
		log.Error("migration command failed", logger.Error(err))
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
