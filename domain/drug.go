package domain

type Drug struct {
	ID           int64   `db:"id" json:"id"`
	DrugName     string  `db:"drug_name" json:"drug_name"`
	Department   string  `db:"department" json:"department"`
	CurrentStock int64   `db:"current_stock" json:"current_stock"`
	MinStock     int64   `db:"min_stock" json:"min_stock"`
	MaxStock     int64   `db:"max_stock" json:"max_stock"`
	ExpiryDate   *string `db:"expiry_date" json:"expiry_date,omitempty"`
	Category     string  `db:"category" json:"category"`
}
