package seed

import (
	"encoding/csv"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
)

// LoadDrugs ingests the drug-stock CSV into the drugs table, ignoring rows
// that already exist for a (drug_name, department) pair.
//
// Expected columns: drug_name, department, current_stock, min_stock,
// max_stock, expiry_date, category.
func LoadDrugs(db *sqlx.DB, csvPath string) {
	file, err := os.Open(csvPath)
	if err != nil {
		log.Printf("unable to load drug catalog %s: %v", csvPath, err)
		return
	}
	defer file.Close()

	reader := csv.NewReader(file)
	// Skip header
	if _, err := reader.Read(); err != nil {
		log.Printf("unable to read drug header: %v", err)
		return
	}

	tx, err := db.Beginx()
	if err != nil {
		log.Printf("unable to start drug transaction: %v", err)
		return
	}
	stmt, err := tx.Preparex(`INSERT OR IGNORE INTO drugs (drug_name, department, current_stock, min_stock, max_stock, expiry_date, category) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		log.Printf("unable to prepare drug insert: %v", err)
		_ = tx.Rollback()
		return
	}
	defer stmt.Close()

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("unable to read drug row: %v", err)
			continue
		}
		if len(record) < 7 {
			continue
		}
		drugName := strings.TrimSpace(record[0])
		department := strings.TrimSpace(record[1])
		if drugName == "" || department == "" {
			continue
		}
		stock, _ := strconv.ParseInt(strings.TrimSpace(record[2]), 10, 64)
		minStock, _ := strconv.ParseInt(strings.TrimSpace(record[3]), 10, 64)
		maxStock, _ := strconv.ParseInt(strings.TrimSpace(record[4]), 10, 64)
		expiry := strings.TrimSpace(record[5])
		category := strings.TrimSpace(record[6])
		if stock < 0 {
			continue
		}

		var expiryArg any
		if expiry != "" {
			expiryArg = expiry
		}

		if _, err := stmt.Exec(drugName, department, stock, minStock, maxStock, expiryArg, category); err != nil {
			log.Printf("unable to insert drug %s: %v", drugName, err)
		} else {
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("unable to commit drug seed: %v", err)
	} else {
		log.Printf("seeded drug catalog with %d rows", rows)
	}
}
