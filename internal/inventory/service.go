package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"wardstock/m/domain"
)

// Service covers stock reads, dashboard aggregates and checkouts (dispensing
// a drug to a patient). A checkout competes with borrowing approvals for the
// same stock row, so the decrement runs guarded inside a transaction.
type Service struct {
	db *sqlx.DB
}

func NewService(db *sqlx.DB) *Service {
	return &Service{db: db}
}

// ListDrugs returns a department's drugs with stock on hand, optionally
// filtered by a name/category search term.
func (s *Service) ListDrugs(ctx context.Context, department, query string) ([]domain.Drug, error) {
	if department == "" {
		return nil, domain.ErrInvalidRequest
	}

	drugs := []domain.Drug{}
	var err error
	if query = strings.TrimSpace(query); query != "" {
		like := "%" + strings.ToLower(query) + "%"
		err = s.db.SelectContext(ctx, &drugs,
			`SELECT id, drug_name, department, current_stock, min_stock, max_stock, expiry_date, category
             FROM drugs
             WHERE department = $1 AND (LOWER(drug_name) LIKE $2 OR LOWER(category) LIKE $2)
             ORDER BY drug_name ASC`, department, like)
	} else {
		err = s.db.SelectContext(ctx, &drugs,
			`SELECT id, drug_name, department, current_stock, min_stock, max_stock, expiry_date, category
             FROM drugs
             WHERE department = $1 AND current_stock > 0
             ORDER BY drug_name ASC`, department)
	}
	if err != nil {
		return nil, fmt.Errorf("list drugs: %w", err)
	}
	return drugs, nil
}

// Departments returns the distinct departments currently holding stock.
func (s *Service) Departments(ctx context.Context) ([]string, error) {
	departments := []string{}
	err := s.db.SelectContext(ctx, &departments,
		`SELECT DISTINCT department FROM drugs WHERE current_stock > 0 ORDER BY department ASC`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return departments, nil
}

// Supplies returns every stocked drug row across all departments.
func (s *Service) Supplies(ctx context.Context) ([]domain.Drug, error) {
	drugs := []domain.Drug{}
	err := s.db.SelectContext(ctx, &drugs,
		`SELECT id, drug_name, department, current_stock, min_stock, max_stock, expiry_date, category
         FROM drugs WHERE current_stock > 0
         ORDER BY department ASC, drug_name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list supplies: %w", err)
	}
	return drugs, nil
}

// Stats aggregates the dashboard headline figures.
type Stats struct {
	TotalDrugs      int64 `db:"total_drugs" json:"total_drugs"`
	CriticalStock   int64 `db:"critical_stock" json:"critical_stock"`
	PendingRequests int64 `db:"pending_requests" json:"pending_requests"`
}

// Stats counts all drug rows, rows expired or expiring within 30 days, and
// pending borrowing requests.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := s.db.GetContext(ctx, &stats,
		`SELECT
            (SELECT COUNT(*) FROM drugs) AS total_drugs,
            (SELECT COUNT(*) FROM drugs
                WHERE expiry_date IS NOT NULL AND expiry_date <= DATE('now', '+30 day')) AS critical_stock,
            (SELECT COUNT(*) FROM borrowing_requests WHERE status = 'Pending') AS pending_requests`)
	if err != nil {
		return Stats{}, fmt.Errorf("fetch stats: %w", err)
	}
	return stats, nil
}

// ExpiryAlerts lists a department's rows expiring within the given number of
// days, soonest first.
func (s *Service) ExpiryAlerts(ctx context.Context, department string, days int) ([]domain.Drug, error) {
	if days <= 0 {
		days = 30
	}
	drugs := []domain.Drug{}
	err := s.db.SelectContext(ctx, &drugs,
		`SELECT id, drug_name, department, current_stock, min_stock, max_stock, expiry_date, category
         FROM drugs
         WHERE department = $1 AND expiry_date IS NOT NULL
           AND expiry_date <= DATE('now', '+' || $2 || ' day')
         ORDER BY expiry_date ASC`, department, days)
	if err != nil {
		return nil, fmt.Errorf("fetch expiry alerts: %w", err)
	}
	return drugs, nil
}

// Checkout dispenses quantity units of drugName from the caller's own
// department and logs the checkout, atomically.
func (s *Service) Checkout(ctx context.Context, drugName string, quantity int64, dispensedBy, department string) error {
	drugName = strings.TrimSpace(drugName)
	if drugName == "" || quantity <= 0 {
		return domain.ErrInvalidRequest
	}
	if dispensedBy == "" {
		dispensedBy = "Unknown User"
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkout: %w", err)
	}
	defer tx.Rollback()

	var stock int64
	err = tx.GetContext(ctx, &stock,
		`SELECT current_stock FROM drugs WHERE drug_name = $1 AND department = $2`,
		drugName, department)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrDrugNotFound
	}
	if err != nil {
		return fmt.Errorf("fetch stock: %w", err)
	}
	if stock < quantity {
		return domain.ErrInsufficientStock
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE drugs SET current_stock = current_stock - $1
         WHERE drug_name = $2 AND department = $3 AND current_stock >= $1`,
		quantity, drugName, department)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	} else if n == 0 {
		return domain.ErrInsufficientStock
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO drug_checkouts (drug_name, quantity, dispensed_by, department, checkout_time)
         VALUES ($1, $2, $3, $4, $5)`,
		drugName, quantity, dispensedBy, department,
		time.Now().UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return fmt.Errorf("log checkout: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkout: %w", err)
	}
	return nil
}

// RecentCheckouts returns a department's latest checkouts, capped at 100.
func (s *Service) RecentCheckouts(ctx context.Context, department string) ([]domain.Checkout, error) {
	checkouts := []domain.Checkout{}
	err := s.db.SelectContext(ctx, &checkouts,
		`SELECT id, drug_name, quantity, dispensed_by, department, checkout_time
         FROM drug_checkouts WHERE department = $1
         ORDER BY checkout_time DESC, id DESC LIMIT 100`, department)
	if err != nil {
		return nil, fmt.Errorf("list checkouts: %w", err)
	}
	return checkouts, nil
}
