package staff

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/auth"
)

// User maps to the staff_user table.
type User struct {
	ID             uuid.UUID      `json:"id"`
	Username       string         `json:"username"`
	Email          string         `json:"email"`
	PasswordHash   string         `json:"-"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	Phone          *string        `json:"phone,omitempty"`
	UserType       auth.UserType  `json:"user_type"`
	RoleLevel      auth.RoleLevel `json:"role_level"`
	Specialization *string        `json:"specialization,omitempty"`
	IsSuperuser    bool           `json:"is_superuser"`
	IsStaff        bool           `json:"is_staff"`
	IsActive       bool           `json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) Actor() *auth.Actor {
	return &auth.Actor{
		ID:          u.ID,
		Username:    u.Username,
		Name:        u.FullName(),
		UserType:    u.UserType,
		RoleLevel:   u.RoleLevel,
		IsSuperuser: u.IsSuperuser,
		IsStaff:     u.IsStaff,
	}
}

// OTP maps to otp_verification. Codes are single use.
type OTP struct {
	ID        uuid.UUID
	Email     string
	Code      string
	ExpiresAt time.Time
	Verified  bool
	Attempts  int
	CreatedAt time.Time
}

// Profile is the authenticated user's view of themselves.
type Profile struct {
	*User
	Permissions []string `json:"permissions"`
}

// Doctor is the public listing shape of a doctor account.
type Doctor struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Specialization *string   `json:"specialization,omitempty"`
}
