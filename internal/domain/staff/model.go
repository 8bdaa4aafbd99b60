package staff

import (
	"time"

	"github.com/google/uuid"
)

// User maps to the users table. Doctors must be validated by an admin
// before they are assigned emergency cases.
type User struct {
	ID             uuid.UUID `db:"id" json:"_id"`
	Username       string    `db:"username" json:"username"`
	Email          string    `db:"email" json:"email"`
	PasswordHash   string    `db:"password_hash" json:"-"`
	Role           string    `db:"role" json:"role"`
	Specialization *string   `db:"specialization" json:"specialization,omitempty"`
	IsAvailable    bool      `db:"is_available" json:"isAvailable"`
	IsValidated    bool      `db:"is_validated" json:"isValidated"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// DisplayName is used in notification messages.
func (u *User) DisplayName() string {
	if u.Role == "doctor" {
		return "Dr. " + u.Username
	}
	return u.Username
}

type RegisterRequest struct {
	Username       string  `json:"username"`
	Email          string  `json:"email"`
	Password       string  `json:"password"`
	Role           string  `json:"role"`
	Specialization *string `json:"specialization,omitempty"`
}

type LoginRequest struct {
	// Login is a username or an email address.
	Login    string `json:"login"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) identifier() string {
	switch {
	case r.Login != "":
		return r.Login
	case r.Username != "":
		return r.Username
	}
	return r.Email
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}
