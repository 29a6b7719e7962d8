package entity

import "time"

// Company owns users and fixes the reporting currency for their claims
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

// User is a directory entry. Credentials live with the identity provider.
type User struct {
	ID                int64     `json:"id"`
	CompanyID         int64     `json:"company_id"`
	Email             string    `json:"email"`
	Name              string    `json:"name,omitempty"`
	Role              Role      `json:"role"`
	ManagerID         *int64    `json:"manager_id,omitempty"`
	IsManagerApprover bool      `json:"is_manager_approver"`
	LarkOpenID        string    `json:"lark_open_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// IsAdmin returns true for administrators
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
