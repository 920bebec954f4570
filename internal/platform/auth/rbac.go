package auth

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
)

type Action int

const (
	View Action = iota
	Add
	Change

	actionCount
)

var actionNames = [actionCount]string{View: "view", Add: "add", Change: "change"}

type Resource int

const (
	PatientResource Resource = iota
	AppointmentResource
	VitalsResource
	BillResource
	ServiceResource

	resourceCount
)

var resourceNames = [resourceCount]string{
	PatientResource:     "patient",
	AppointmentResource: "appointment",
	VitalsResource:      "vitals",
	BillResource:        "bill",
	ServiceResource:     "service",
}

func (r Resource) String() string { return resourceNames[r] }

// ParseResource maps a URL segment such as "patient" or "patients" to a Resource.
func ParseResource(s string) (Resource, error) {
	for i, name := range resourceNames {
		if s == name || s == name+"s" {
			return Resource(i), nil
		}
	}
	return 0, fmt.Errorf("unknown resource %q", s)
}

// Permission is an action on a resource, rendered as "add_patient".
type Permission struct {
	Action   Action
	Resource Resource
}

func (p Permission) String() string {
	return actionNames[p.Action] + "_" + resourceNames[p.Resource]
}

func (p Permission) bit() PermissionSet {
	return 1 << (uint(p.Resource)*uint(actionCount) + uint(p.Action))
}

func Perm(a Action, r Resource) Permission { return Permission{Action: a, Resource: r} }

var (
	ViewPatient       = Perm(View, PatientResource)
	AddPatient        = Perm(Add, PatientResource)
	ChangePatient     = Perm(Change, PatientResource)
	ViewAppointment   = Perm(View, AppointmentResource)
	AddAppointment    = Perm(Add, AppointmentResource)
	ChangeAppointment = Perm(Change, AppointmentResource)
	ViewVitals        = Perm(View, VitalsResource)
	AddVitals         = Perm(Add, VitalsResource)
	ChangeVitals      = Perm(Change, VitalsResource)
	ViewBill          = Perm(View, BillResource)
	AddBill           = Perm(Add, BillResource)
	ChangeBill        = Perm(Change, BillResource)
	ViewService       = Perm(View, ServiceResource)
	AddService        = Perm(Add, ServiceResource)
	ChangeService     = Perm(Change, ServiceResource)
)

// PermissionSet is a bitmask over every (action, resource) pair.
type PermissionSet uint32

func (s PermissionSet) Has(p Permission) bool { return s&p.bit() != 0 }

// List returns the set as sorted permission codenames.
func (s PermissionSet) List() []string {
	var out []string
	for r := Resource(0); r < resourceCount; r++ {
		for a := Action(0); a < actionCount; a++ {
			if p := Perm(a, r); s.Has(p) {
				out = append(out, p.String())
			}
		}
	}
	return out
}

func grant(actions []Action, resources ...Resource) PermissionSet {
	var s PermissionSet
	for _, r := range resources {
		for _, a := range actions {
			s |= Perm(a, r).bit()
		}
	}
	return s
}

var (
	basicActions  = []Action{View}
	mediumActions = []Action{View, Add}
	seniorActions = []Action{View, Add, Change}

	frontDesk = []Resource{PatientResource, AppointmentResource, BillResource, ServiceResource}
	clinical  = []Resource{PatientResource, AppointmentResource, VitalsResource}
	every     = []Resource{PatientResource, AppointmentResource, VitalsResource, BillResource, ServiceResource}
)

// matrix is indexed by [UserType][RoleLevel]. Adding a user type or level
// without extending it fails the completeness test.
var matrix = [userTypeCount][roleLevelCount]PermissionSet{
	Receptionist: {
		Basic:  grant(basicActions, frontDesk...),
		Medium: grant(mediumActions, frontDesk...),
		Senior: grant(seniorActions, frontDesk...),
	},
	Nurse: {
		Basic:  grant(basicActions, clinical...),
		Medium: grant(mediumActions, clinical...),
		Senior: grant(seniorActions, clinical...),
	},
	Doctor: {
		Basic:  grant(basicActions, clinical...),
		Medium: grant(mediumActions, clinical...),
		Senior: grant(seniorActions, clinical...),
	},
	Admin: {
		Basic:  grant(seniorActions, every...),
		Medium: grant(seniorActions, every...),
		Senior: grant(seniorActions, every...),
	},
}

var allPermissions = grant(seniorActions, every...)

// PermissionsFor returns the permission set of an actor.
func PermissionsFor(a *Actor) PermissionSet {
	if a == nil {
		return 0
	}
	if a.Unrestricted() {
		return allPermissions
	}
	if !a.UserType.Valid() || !a.RoleLevel.Valid() {
		return 0
	}
	return matrix[a.UserType][a.RoleLevel]
}

// Authorize reports whether the actor holds p.
func Authorize(a *Actor, p Permission) bool {
	return PermissionsFor(a).Has(p)
}

// Require returns middleware rejecting requests whose actor lacks p.
func Require(logger zerolog.Logger, p Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := Check(c, logger, p); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// Check authorizes the request's actor for p, logging denials.
func Check(c echo.Context, logger zerolog.Logger, p Permission) error {
	a, ok := ActorFromContext(c.Request().Context())
	if !ok {
		return apperr.Unauthorized("authentication required")
	}
	if !Authorize(a, p) {
		logger.Warn().
			Str("actor_id", a.ID.String()).
			Str("username", a.Username).
			Str("user_type", a.UserType.String()).
			Str("role_level", a.RoleLevel.String()).
			Str("permission", p.String()).
			Str("path", c.Path()).
			Msg("permission denied")
		return apperr.Permission("permission denied: " + p.String())
	}
	return nil
}

// CanAccessAppointment is the ownership check layered on the matrix. Doctors
// reach an appointment only as its assigned doctor or as the patient's
// primary doctor; everyone else is unrestricted here.
func CanAccessAppointment(a *Actor, doctorID, primaryDoctorID *uuid.UUID) bool {
	if a == nil {
		return false
	}
	if !a.IsDoctor() {
		return true
	}
	return (doctorID != nil && *doctorID == a.ID) || (primaryDoctorID != nil && *primaryDoctorID == a.ID)
}
