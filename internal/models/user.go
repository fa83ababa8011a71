package models

import "time"

type Role string

const (
	RoleUser       Role = "user"
	RoleBusiness   Role = "business"
	RoleSuperAdmin Role = "superadmin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleBusiness, RoleSuperAdmin:
		return true
	}
	return false
}

type User struct {
	ID          string    `json:"id" db:"id"`
	Email       string    `json:"email" db:"email"`
	DisplayName string    `json:"displayName" db:"display_name"`
	Phone       string    `json:"phone,omitempty" db:"phone"`
	Role        Role      `json:"role" db:"role"`
	BusinessID  *string   `json:"businessId,omitempty" db:"business_id"`
	Disabled    bool      `json:"disabled" db:"disabled"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// Contact is the subset of a profile used for out-of-band delivery.
type Contact struct {
	UserID      string `json:"userId" db:"id"`
	Email       string `json:"email" db:"email"`
	Phone       string `json:"phone" db:"phone"`
	DisplayName string `json:"displayName" db:"display_name"`
	Disabled    bool   `json:"disabled" db:"disabled"`
}
