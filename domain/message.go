package domain

// Message priorities and delivery statuses for inter-department communications.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"

	MessageStatusSent = "sent"
	MessageStatusRead = "read"
)

type Message struct {
	ID             int64  `db:"id" json:"id"`
	FromDepartment string `db:"from_department" json:"from_department"`
	ToDepartment   string `db:"to_department" json:"to_department"`
	Message        string `db:"message" json:"message"`
	Priority       string `db:"priority" json:"priority"`
	Status         string `db:"status" json:"status"`
	IsRead         bool   `db:"is_read" json:"is_read"`
	CreatedAt      string `db:"created_at" json:"created_at"`
}
