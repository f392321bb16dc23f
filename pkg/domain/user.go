package domain

import "time"

// UserAccount is a directory entry keyed by phone number.
type UserAccount struct {
	Username  string    `json:"username"`
	Phone     string    `json:"phone"`
	Role      Role      `json:"role"`
	Blocked   bool      `json:"blocked"`
	CreatedAt time.Time `json:"created_at"`
}

// NewUser is the input for creating a directory account.
type NewUser struct {
	Username string `json:"username"`
	Phone    string `json:"phone"`
	Role     Role   `json:"role"`
}
