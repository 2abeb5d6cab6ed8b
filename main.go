package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"

	"wardstock/m/internal/api"
	"wardstock/m/internal/config"
	"wardstock/m/internal/database"
	"wardstock/m/internal/forecast"
	"wardstock/m/internal/migrations"
	"wardstock/m/internal/notify"
	"wardstock/m/internal/seed"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	db, err := database.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	migrations.Run(db)
	seed.LoadDrugs(db, cfg.SeedPath)

	hub := notify.NewHub()
	forecastClient := forecast.NewClient(cfg.ForecastAPIURL)
	handler := api.New(db, cfg.Secret, hub, forecastClient)

	log.Printf("ward stock server starting on :%s", cfg.HTTPPort)
	if err := http.ListenAndServe(":"+cfg.HTTPPort, handler.Router()); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
