package domain

// User roles. An admin may reject any borrowing request; every other action
// is scoped to the user's own department.
const (
	RoleDepartment = "department"
	RoleAdmin      = "admin"
)

type User struct {
	ID         int64  `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	Email      string `json:"email" db:"email"`
	Password   string `json:"password,omitempty" db:"password"`
	Department string `json:"department" db:"department"`
	Role       string `json:"role" db:"role"`
	CreatedAt  string `json:"created_at,omitempty" db:"created_at"`
}
