package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/branchops/csv-validator/internal/database"
	"github.com/branchops/csv-validator/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	connStr := os.Getenv("DATABASE_URL")
	if connStr == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	dbpool, err := database.ConnectDB(connStr)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer dbpool.Close()

	store := database.NewPostgresStore(context.Background(), dbpool)
	router := server.NewRouter(server.NewStatsService(store))

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Reporting API listening on :%s", port)
	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
