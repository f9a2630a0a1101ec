package main

import (
	"log"
	"os"

	"focustimer/internal/config"
	"focustimer/internal/db"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	migrations, err := db.Migrations(cfg.MigrationsDir)
	if err != nil {
		log.Fatalf("load migrations: %v", err)
	}
	if err := db.RunMigrations(database, migrations); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	log.Println("migrations applied successfully")
}
