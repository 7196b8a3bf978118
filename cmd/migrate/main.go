package main

import (
	"log"
	"os"

	"ai-restaurant-search-be/internal/model"
	"ai-restaurant-search-be/pkg/database"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Info: No .env file found, using system env")
	}

	dsn := os.Getenv("DB_CONNECTION_STRING")
	if dsn == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.NewGormDBFromDSN(dsn, os.Getenv("ENVIRONMENT") == "production")
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Step 1: Setting up extensions...")
	// gen_random_uuid() on Postgres < 13
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS pgcrypto;`).Error; err != nil {
		log.Printf("Warn: Failed to create pgcrypto extension: %v. Continuing...", err)
	}

	log.Println("Step 2: Running AutoMigrate...")
	if err := database.Migrate(db, &model.SearchHistory{}); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	log.Println("Step 3: Creating views...")
	views := []string{
		`CREATE OR REPLACE VIEW search_outcomes_daily AS
		 SELECT date_trunc('day', created_at) AS day, route, status, count(*) AS total, avg(result_count) AS avg_results
		 FROM search_histories
		 GROUP BY 1, 2, 3;`,
	}
	for _, sql := range views {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}

	log.Println("Success: Database migration completed.")
}
