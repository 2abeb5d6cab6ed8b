package migrations

import (
	"log"

	"github.com/jmoiron/sqlx"
)

// Run creates the database schema required by the inventory backend.
func Run(db *sqlx.DB) {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            department TEXT NOT NULL,
            role TEXT NOT NULL DEFAULT 'department',
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS drugs (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            drug_name TEXT NOT NULL,
            department TEXT NOT NULL,
            current_stock INTEGER NOT NULL DEFAULT 0 CHECK(current_stock >= 0),
            min_stock INTEGER NOT NULL DEFAULT 0,
            max_stock INTEGER NOT NULL DEFAULT 0,
            expiry_date TEXT,
            category TEXT NOT NULL DEFAULT '',
            UNIQUE(drug_name, department)
        );`,
		`CREATE TABLE IF NOT EXISTS borrowing_requests (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            drug_name TEXT NOT NULL,
            quantity INTEGER NOT NULL CHECK(quantity > 0),
            from_department TEXT NOT NULL,
            to_department TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'Pending',
            request_time DATETIME DEFAULT CURRENT_TIMESTAMP,
            processed_time DATETIME,
            expiry_date TEXT,
            min_stock INTEGER NOT NULL DEFAULT 0,
            max_stock INTEGER NOT NULL DEFAULT 0
        );`,
		`CREATE TABLE IF NOT EXISTS drug_checkouts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            drug_name TEXT NOT NULL,
            quantity INTEGER NOT NULL,
            dispensed_by TEXT NOT NULL,
            department TEXT NOT NULL,
            checkout_time DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
		`CREATE TABLE IF NOT EXISTS communications (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            from_department TEXT NOT NULL,
            to_department TEXT NOT NULL,
            message TEXT NOT NULL,
            priority TEXT NOT NULL DEFAULT 'normal',
            status TEXT NOT NULL DEFAULT 'sent',
            is_read INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
	}
}
