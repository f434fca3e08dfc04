package models

import "time"

// Role determines which workflow operations a user may invoke.
type Role string

const (
	RoleBuyer Role = "buyer"
	RoleOwner Role = "owner"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleOwner, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

type User struct {
	ID            string    `json:"id"`
	Role          Role      `json:"role"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	PasswordHash  string    `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SignupInput is the self-registration payload. Admin accounts are not self-service.
type SignupInput struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,e164|numeric"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     Role   `json:"role" validate:"required,oneof=buyer owner agent"`
}

type SigninInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
