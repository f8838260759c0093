package main

import (
	"flag"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"domus-rmm-sync/internal/config"
	"domus-rmm-sync/internal/database"
)

func main() {
	sqlFile := flag.String("f", "scripts/schema.sql", "path to the schema SQL file")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	sqlBytes, err := os.ReadFile(*sqlFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read SQL file: %v\n", err)
		os.Exit(1)
	}

	if _, err := db.Exec(string(sqlBytes)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to execute SQL: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("✅ Schema applied successfully!")
}
