package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserType is the staff category an account is created with.
type UserType int

const (
	Receptionist UserType = iota
	Nurse
	Doctor
	Admin

	userTypeCount
)

var userTypeNames = [userTypeCount]string{
	Receptionist: "receptionist",
	Nurse:        "nurse",
	Doctor:       "doctor",
	Admin:        "admin",
}

func (u UserType) String() string {
	if u < 0 || u >= userTypeCount {
		return fmt.Sprintf("UserType(%d)", int(u))
	}
	return userTypeNames[u]
}

func (u UserType) Valid() bool { return u >= 0 && u < userTypeCount }

func ParseUserType(s string) (UserType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range userTypeNames {
		if name == s {
			return UserType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown user type %q", s)
}

// RoleLevel is the seniority tier within a user type.
type RoleLevel int

const (
	Basic RoleLevel = iota
	Medium
	Senior

	roleLevelCount
)

var roleLevelNames = [roleLevelCount]string{
	Basic:  "basic",
	Medium: "medium",
	Senior: "senior",
}

func (r RoleLevel) String() string {
	if r < 0 || r >= roleLevelCount {
		return fmt.Sprintf("RoleLevel(%d)", int(r))
	}
	return roleLevelNames[r]
}

func (r RoleLevel) Valid() bool { return r >= 0 && r < roleLevelCount }

func ParseRoleLevel(s string) (RoleLevel, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range roleLevelNames {
		if name == s {
			return RoleLevel(i), nil
		}
	}
	return 0, fmt.Errorf("unknown role level %q", s)
}

// Actor is the authenticated staff member behind a request.
type Actor struct {
	ID          uuid.UUID
	Username    string
	Name        string
	UserType    UserType
	RoleLevel   RoleLevel
	IsSuperuser bool
	IsStaff     bool

	// TokenID and TokenExpiresAt describe the access token that
	// authenticated the request. Logout revokes TokenID until TokenExpiresAt.
	TokenID        string
	TokenExpiresAt time.Time
}

// Unrestricted reports whether the actor bypasses the permission matrix.
func (a *Actor) Unrestricted() bool {
	return a.IsSuperuser || a.UserType == Admin
}

func (a *Actor) IsDoctor() bool {
	return a.UserType == Doctor && !a.Unrestricted()
}

type contextKey string

const actorKey contextKey = "actor"

func WithActor(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

func ActorFromContext(ctx context.Context) (*Actor, bool) {
	a, ok := ctx.Value(actorKey).(*Actor)
	return a, ok && a != nil
}

func (u UserType) MarshalText() ([]byte, error) {
	if !u.Valid() {
		return nil, fmt.Errorf("invalid user type %d", int(u))
	}
	return []byte(u.String()), nil
}

func (u *UserType) UnmarshalText(b []byte) error {
	v, err := ParseUserType(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

func (r RoleLevel) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role level %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *RoleLevel) UnmarshalText(b []byte) error {
	v, err := ParseRoleLevel(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
