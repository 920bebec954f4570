package staff

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/ist"
)

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepoPG(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

const userCols = `id, username, email, password_hash, first_name, last_name, phone,
	user_type, role_level, specialization, is_superuser, is_staff, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var userType, roleLevel string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone,
		&userType, &roleLevel, &u.Specialization, &u.IsSuperuser, &u.IsStaff, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}
	if u.UserType, err = auth.ParseUserType(userType); err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	if u.RoleLevel, err = auth.ParseRoleLevel(roleLevel); err != nil {
		return nil, fmt.Errorf("user %s: %w", u.ID, err)
	}
	u.CreatedAt = ist.ToIST(u.CreatedAt)
	u.UpdatedAt = ist.ToIST(u.UpdatedAt)
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	u.ID = uuid.New()
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO staff_user (id, username, email, password_hash, first_name, last_name, phone,
			user_type, role_level, specialization, is_superuser, is_staff, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone,
		u.UserType.String(), u.RoleLevel.String(), u.Specialization, u.IsSuperuser, u.IsStaff, u.IsActive,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if constraint, ok := db.UniqueViolation(err); ok {
			switch constraint {
			case "staff_user_email_key":
				return apperr.Conflict("a user with this email already exists")
			default:
				return apperr.Conflict("a user with this username already exists")
			}
		}
		return err
	}
	u.CreatedAt = ist.ToIST(u.CreatedAt)
	u.UpdatedAt = ist.ToIST(u.UpdatedAt)
	return nil
}

func (r *userRepoPG) EnsureUser(ctx context.Context, u *User) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO staff_user (id, username, email, password_hash, first_name, last_name, phone,
			user_type, role_level, specialization, is_superuser, is_staff, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT DO NOTHING`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.FirstName, u.LastName, u.Phone,
		u.UserType.String(), u.RoleLevel.String(), u.Specialization, u.IsSuperuser, u.IsStaff, u.IsActive)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *userRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userCols+` FROM staff_user WHERE id = $1`, id))
}

func (r *userRepoPG) GetByUsername(ctx context.Context, username string) (*User, error) {
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userCols+` FROM staff_user WHERE username = $1`, username))
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userCols+` FROM staff_user WHERE lower(email) = lower($1)`, email))
}

func (r *userRepoPG) ListDoctors(ctx context.Context) ([]*User, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+userCols+` FROM staff_user
		WHERE user_type = 'doctor' AND is_active
		ORDER BY first_name, last_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type otpRepoPG struct{ pool *pgxpool.Pool }

func NewOTPRepoPG(pool *pgxpool.Pool) OTPRepository { return &otpRepoPG{pool: pool} }

func (r *otpRepoPG) Create(ctx context.Context, o *OTP) error {
	o.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO otp_verification (id, email, code, expires_at)
		VALUES ($1, lower($2), $3, $4)
		RETURNING created_at`,
		o.ID, o.Email, o.Code, o.ExpiresAt,
	).Scan(&o.CreatedAt)
}

func (r *otpRepoPG) Latest(ctx context.Context, email string) (*OTP, error) {
	var o OTP
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, email, code, expires_at, verified, attempts, created_at
		FROM otp_verification
		WHERE email = lower($1) AND NOT verified
		ORDER BY created_at DESC
		LIMIT 1`, email,
	).Scan(&o.ID, &o.Email, &o.Code, &o.ExpiresAt, &o.Verified, &o.Attempts, &o.CreatedAt)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("verification code")
		}
		return nil, err
	}
	o.ExpiresAt = ist.ToIST(o.ExpiresAt)
	o.CreatedAt = ist.ToIST(o.CreatedAt)
	return &o, nil
}

func (r *otpRepoPG) MarkVerified(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE otp_verification SET verified = TRUE WHERE id = $1 AND NOT verified`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.Unauthorized("verification code already used")
	}
	return nil
}

func (r *otpRepoPG) RecordFailure(ctx context.Context, id uuid.UUID, limit int) (int, error) {
	var attempts int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE otp_verification
		SET attempts = attempts + 1, verified = verified OR attempts + 1 >= $2
		WHERE id = $1
		RETURNING attempts`, id, limit,
	).Scan(&attempts)
	if err != nil {
		if db.IsNotFound(err) {
			return 0, apperr.NotFound("verification code")
		}
		return 0, err
	}
	return attempts, nil
}
