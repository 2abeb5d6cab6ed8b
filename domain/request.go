package domain

// Borrowing request statuses. Approved, Rejected and Cancelled are terminal.
const (
	RequestStatusPending   = "Pending"
	RequestStatusApproved  = "Approved"
	RequestStatusRejected  = "Rejected"
	RequestStatusCancelled = "Cancelled"
)

// BorrowingRequest is a stock-transfer proposal from the lending department
// (from_department) to the requesting department (to_department). Expiry and
// min/max stock are snapshots of the lender's drug row at submission time so
// a fresh row on the borrower's side is seeded consistently.
type BorrowingRequest struct {
	ID             int64   `db:"id" json:"id"`
	DrugName       string  `db:"drug_name" json:"drug_name"`
	Quantity       int64   `db:"quantity" json:"quantity"`
	FromDepartment string  `db:"from_department" json:"from_department"`
	ToDepartment   string  `db:"to_department" json:"to_department"`
	Status         string  `db:"status" json:"status"`
	RequestTime    string  `db:"request_time" json:"request_time"`
	ProcessedTime  *string `db:"processed_time" json:"processed_time,omitempty"`
	ExpiryDate     *string `db:"expiry_date" json:"expiry_date,omitempty"`
	MinStock       int64   `db:"min_stock" json:"min_stock"`
	MaxStock       int64   `db:"max_stock" json:"max_stock"`
}
