package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds application configuration values.
type Config struct {
	Secret         string
	DatabaseDSN    string
	HTTPPort       string
	ForecastAPIURL string
	SeedPath       string
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() Config {
	secret := os.Getenv("SECRET")
	if secret == "" {
		secret = "dev_secret"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		dsn = "wardstock.db"
	}

	forecastURL := os.Getenv("FORECAST_API_URL")
	if forecastURL == "" {
		forecastURL = "http://127.0.0.1:8000"
	}

	seedPath := os.Getenv("SEED_PATH")
	if seedPath == "" {
		seedPath = "assets/drugs.csv"
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(port); err != nil {
		log.Printf("invalid HTTP_PORT value %q, defaulting to 8080", port)
		port = "8080"
	}

	return Config{
		Secret:         secret,
		DatabaseDSN:    dsn,
		HTTPPort:       port,
		ForecastAPIURL: forecastURL,
		SeedPath:       seedPath,
	}
}
