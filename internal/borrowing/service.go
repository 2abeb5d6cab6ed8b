package borrowing

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

// Placeholder category for drug rows created on the borrower's side by an
// approved transfer.
const transferredCategory = "Transferred"

// Service owns the borrowing-request lifecycle and the atomic stock transfer
// that happens on approval.
type Service struct {
	db *sqlx.DB
}

func NewService(db *sqlx.DB) *Service {
	return &Service{db: db}
}

// Submit creates a Pending request from toDepartment (the caller's own
// department) asking fromDepartment for quantity units of drugName. The
// lender's expiry date and min/max stock are snapshotted onto the request.
// Returns the new request id.
func (s *Service) Submit(ctx context.Context, drugName string, quantity int64, fromDepartment, toDepartment string) (int64, error) {
	drugName = strings.TrimSpace(drugName)
	fromDepartment = strings.TrimSpace(fromDepartment)
	if drugName == "" || fromDepartment == "" || toDepartment == "" || quantity <= 0 {
		return 0, domain.ErrInvalidRequest
	}
	if fromDepartment == toDepartment {
		return 0, domain.ErrInvalidRequest
	}

	var lender domain.Drug
	err := s.db.GetContext(ctx, &lender,
		`SELECT id, drug_name, department, current_stock, min_stock, max_stock, expiry_date, category
         FROM drugs WHERE drug_name = $1 AND department = $2`, drugName, fromDepartment)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrDrugNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("fetch lender stock: %w", err)
	}
	if lender.CurrentStock < quantity {
		return 0, domain.ErrInsufficientStock
	}

	var id int64
	err = s.db.QueryRowxContext(ctx,
		`INSERT INTO borrowing_requests (drug_name, quantity, from_department, to_department, status, request_time, expiry_date, min_stock, max_stock)
         VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		drugName, quantity, fromDepartment, toDepartment, domain.RequestStatusPending,
		now(), lender.ExpiryDate, lender.MinStock, lender.MaxStock).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert borrowing request: %w", err)
	}
	return id, nil
}

// Approve moves quantity units from the lender to the borrower and marks the
// request Approved, all inside one transaction. Only the lending department
// may approve. Stock is re-validated here; the submission-time check is not
// trusted.
func (s *Service) Approve(ctx context.Context, requestID int64, actingDepartment string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin approve: %w", err)
	}
	defer tx.Rollback()

	req, err := getRequest(ctx, tx, requestID)
	if err != nil {
		return err
	}
	if req.Status != domain.RequestStatusPending {
		return domain.ErrAlreadyProcessed
	}
	if actingDepartment != req.FromDepartment {
		return domain.ErrForbidden
	}

	var lenderStock int64
	err = tx.GetContext(ctx, &lenderStock,
		`SELECT current_stock FROM drugs WHERE drug_name = $1 AND department = $2`,
		req.DrugName, req.FromDepartment)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrDrugNotFound
	}
	if err != nil {
		return fmt.Errorf("fetch lender stock: %w", err)
	}
	if lenderStock < req.Quantity {
		return domain.ErrInsufficientStock
	}

	// Guarded decrement so a concurrent checkout can never overdraw the row.
	res, err := tx.ExecContext(ctx,
		`UPDATE drugs SET current_stock = current_stock - $1
         WHERE drug_name = $2 AND department = $3 AND current_stock >= $1`,
		req.Quantity, req.DrugName, req.FromDepartment)
	if err != nil {
		return fmt.Errorf("decrement lender stock: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("decrement lender stock: %w", err)
	} else if n == 0 {
		return domain.ErrInsufficientStock
	}

	// Credit the borrower. A fresh row is seeded from the snapshot taken at
	// submission time, not from the lender's current row.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO drugs (drug_name, department, current_stock, min_stock, max_stock, expiry_date, category)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         ON CONFLICT(drug_name, department) DO UPDATE SET current_stock = current_stock + excluded.current_stock`,
		req.DrugName, req.ToDepartment, req.Quantity, req.MinStock, req.MaxStock,
		req.ExpiryDate, transferredCategory)
	if err != nil {
		return fmt.Errorf("credit borrower stock: %w", err)
	}

	res, err = tx.ExecContext(ctx,
		`UPDATE borrowing_requests SET status = $1, processed_time = $2 WHERE id = $3 AND status = $4`,
		domain.RequestStatusApproved, now(), requestID, domain.RequestStatusPending)
	if err != nil {
		return fmt.Errorf("mark request approved: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("mark request approved: %w", err)
	} else if n == 0 {
		return domain.ErrAlreadyProcessed
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit approve: %w", err)
	}
	return nil
}

// Reject marks a pending request Rejected. The lending department or an admin
// may reject. No stock moves.
func (s *Service) Reject(ctx context.Context, requestID int64, actingDepartment string, isAdmin bool) error {
	req, err := getRequest(ctx, s.db, requestID)
	if err != nil {
		return err
	}
	if req.Status != domain.RequestStatusPending {
		return domain.ErrAlreadyProcessed
	}
	if !isAdmin && actingDepartment != req.FromDepartment {
		return domain.ErrForbidden
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE borrowing_requests SET status = $1, processed_time = $2 WHERE id = $3 AND status = $4`,
		domain.RequestStatusRejected, now(), requestID, domain.RequestStatusPending)
	if err != nil {
		return fmt.Errorf("mark request rejected: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("mark request rejected: %w", err)
	} else if n == 0 {
		return domain.ErrAlreadyProcessed
	}
	return nil
}

// Cancel marks a pending request Cancelled. Only the requesting department
// may cancel its own request.
func (s *Service) Cancel(ctx context.Context, requestID int64, actingDepartment string) error {
	req, err := getRequest(ctx, s.db, requestID)
	if err != nil {
		return err
	}
	if req.Status != domain.RequestStatusPending {
		return domain.ErrAlreadyProcessed
	}
	if actingDepartment != req.ToDepartment {
		return domain.ErrForbidden
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE borrowing_requests SET status = $1, processed_time = $2 WHERE id = $3 AND status = $4`,
		domain.RequestStatusCancelled, now(), requestID, domain.RequestStatusPending)
	if err != nil {
		return fmt.Errorf("mark request cancelled: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("mark request cancelled: %w", err)
	} else if n == 0 {
		return domain.ErrAlreadyProcessed
	}
	return nil
}

// Get returns a single request by id.
func (s *Service) Get(ctx context.Context, requestID int64) (domain.BorrowingRequest, error) {
	return getRequest(ctx, s.db, requestID)
}

// List returns every request where department is lender or borrower, newest
// first.
func (s *Service) List(ctx context.Context, department string) ([]domain.BorrowingRequest, error) {
	requests := []domain.BorrowingRequest{}
	err := s.db.SelectContext(ctx, &requests,
		`SELECT id, drug_name, quantity, from_department, to_department, status, request_time, processed_time, expiry_date, min_stock, max_stock
         FROM borrowing_requests
         WHERE from_department = $1 OR to_department = $1
         ORDER BY request_time DESC, id DESC`, department)
	if err != nil {
		return nil, fmt.Errorf("list borrowing requests: %w", err)
	}
	return requests, nil
}

func getRequest(ctx context.Context, q sqlx.QueryerContext, id int64) (domain.BorrowingRequest, error) {
	var req domain.BorrowingRequest
	err := sqlx.GetContext(ctx, q, &req,
		`SELECT id, drug_name, quantity, from_department, to_department, status, request_time, processed_time, expiry_date, min_stock, max_stock
         FROM borrowing_requests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return req, domain.ErrRequestNotFound
	}
	if err != nil {
		return req, fmt.Errorf("fetch borrowing request: %w", err)
	}
	return req, nil
}

func now() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}
