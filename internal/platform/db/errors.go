package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hms/hms/internal/platform/apperr"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// IsNotFound reports whether err is pgx's no-rows error.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// UniqueViolation returns the name of the violated unique constraint.
func UniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// IsForeignKeyViolation reports whether err is an FK violation, returning the
// constraint name when it is.
func IsForeignKeyViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// ErrUnknownActor is returned when a write references a staff account that is
// not in staff_user, typically a token whose account was removed.
var ErrUnknownActor = apperr.Unauthorized("staff account no longer exists")

// actorColumns are the FK columns that record who performed a write.
var actorColumns = []string{"created_by", "updated_by", "recorded_by", "actor_id", "receptionist_id"}

// IsActorConstraint reports whether constraint is the default-named FK of one
// of the audit columns pointing at staff_user.
func IsActorConstraint(constraint string) bool {
	for _, col := range actorColumns {
		if strings.HasSuffix(constraint, "_"+col+"_fkey") {
			return true
		}
	}
	return false
}

// ActorViolation maps an FK violation on an audit column to ErrUnknownActor
// wrapping err. It returns nil for any other error.
func ActorViolation(err error) error {
	constraint, ok := IsForeignKeyViolation(err)
	if !ok || !IsActorConstraint(constraint) {
		return nil
	}
	return apperr.Wrap(ErrUnknownActor, err)
}
