package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"chunkstore/config"
	"chunkstore/internal/domain/file"
	"chunkstore/pkg/database"
)

const usage = `
Chunkstore - Database CLI Tool

Usage:
  migrate [command]

Commands:
  up          Run GORM migrations for the metadata tables
  status      Show database connection status
  drop        Drop the metadata tables (DANGEROUS)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go status
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.LoadConfig()
	database.Connect(cfg)

	switch flag.Arg(0) {
	case "up":
		if err := database.DB.AutoMigrate(
			&file.CanonicalObject{},
			&file.StoredFile{},
		); err != nil {
			log.Fatalf("Failed to apply GORM migrations: %v", err)
		}
		log.Println("Migrations applied")
	case "status":
		if err := database.HealthCheck(); err != nil {
			log.Fatalf("Database unreachable: %v", err)
		}
		log.Println("Database connection healthy")
	case "drop":
		if err := database.DB.Migrator().DropTable(
			&file.StoredFile{},
			&file.CanonicalObject{},
		); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Println("Tables dropped")
	default:
		flag.Usage()
		os.Exit(1)
	}
}
