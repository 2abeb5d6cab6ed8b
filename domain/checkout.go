package domain

type Checkout struct {
	ID           int64  `db:"id" json:"id"`
	DrugName     string `db:"drug_name" json:"drug_name"`
	Quantity     int64  `db:"quantity" json:"quantity"`
	DispensedBy  string `db:"dispensed_by" json:"dispensed_by"`
	Department   string `db:"department" json:"department"`
	CheckoutTime string `db:"checkout_time" json:"checkout_time"`
}
