package staff

import (
	"context"

	"github.com/google/uuid"
)

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	// EnsureUser inserts u under its own ID unless a conflicting row exists,
	// reporting whether a row was written.
	EnsureUser(ctx context.Context, u *User) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListDoctors(ctx context.Context) ([]*User, error)
}

type OTPRepository interface {
	Create(ctx context.Context, o *OTP) error
	// Latest returns the newest unverified code for email.
	Latest(ctx context.Context, email string) (*OTP, error)
	MarkVerified(ctx context.Context, id uuid.UUID) error
	// RecordFailure counts a wrong guess against the code and retires it once
	// limit guesses have been made. It returns the new attempt count.
	RecordFailure(ctx context.Context, id uuid.UUID, limit int) (int, error)
}
