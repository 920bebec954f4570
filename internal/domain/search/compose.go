package search

import (
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/ist"
)

type Kind string

const (
	Patients     Kind = "patients"
	Appointments Kind = "appointments"
)

// Recognised parameters in branch priority order.
const (
	ParamIDs             = "ids"
	ParamDoctorID        = "doctor_id"
	ParamFirstName       = "first_name"
	ParamContactNumber   = "contact_number"
	ParamDateOfBirth     = "date_of_birth"
	ParamAppointmentDate = "appointment_date"
	ParamQ               = "q"
)

var pageParams = map[string]bool{"page": true, "page_size": true}

// Query is a composed search. Fallback is set when an exact appointment_date
// match may be widened to the whole IST day if it finds nothing.
type Query struct {
	Kind      Kind
	Primary   *db.Query
	Fallback  *db.Query
	Cacheable bool
}

type target struct {
	table, cols, order string
	scope              func(q *db.Query, doctorID uuid.UUID)
	ids                func(q *db.Query, values []string) error
	doctorColumn       string
	apptAt             string
	apptBetween        string
}

var targets = map[Kind]target{
	Patients: {
		table: "patient",
		cols:  patient.Columns,
		order: "patient.created_at DESC, patient.patient_id DESC",
		scope: patient.ApplyDoctorScope,
		ids: func(q *db.Query, values []string) error {
			q.Where("patient.patient_id = ANY(?)", values)
			return nil
		},
		doctorColumn: "patient.primary_doctor_id",
		apptAt:       "EXISTS (SELECT 1 FROM appointment a WHERE a.patient_id = patient.id AND a.appointment_date = ?)",
		apptBetween:  "EXISTS (SELECT 1 FROM appointment a WHERE a.patient_id = patient.id AND a.appointment_date >= ? AND a.appointment_date < ?)",
	},
	Appointments: {
		table: scheduling.Table,
		cols:  scheduling.Columns,
		order: "appointment.appointment_date DESC, appointment.id",
		scope: scheduling.ApplyDoctorScope,
		ids: func(q *db.Query, values []string) error {
			ids := make([]uuid.UUID, 0, len(values))
			for _, v := range values {
				id, err := uuid.Parse(v)
				if err != nil {
					return apperr.Field(ParamIDs, "invalid id "+v)
				}
				ids = append(ids, id)
			}
			q.Where("appointment.id = ANY(?)", ids)
			return nil
		},
		doctorColumn: "appointment.doctor_id",
		apptAt:       "appointment.appointment_date = ?",
		apptBetween:  "appointment.appointment_date >= ? AND appointment.appointment_date < ?",
	},
}

// splitList flattens repeated and comma separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Compose builds the role-scoped query for params. Only the first matching
// branch applies; with no recognised parameter every record in scope matches.
func Compose(kind Kind, params url.Values, a *auth.Actor) (*Query, error) {
	t, ok := targets[kind]
	if !ok {
		return nil, apperr.NotFound("search kind " + string(kind))
	}
	build := func() *db.Query {
		q := db.NewQuery(t.table, t.cols)
		q.OrderBy(t.order)
		if a.IsDoctor() {
			t.scope(q, a.ID)
		}
		return q
	}
	get := func(key string) string { return strings.TrimSpace(params.Get(key)) }

	// appointment_date always forces a fresh read, even when a higher
	// priority parameter picks the branch.
	out := &Query{Kind: kind, Primary: build(), Cacheable: get(ParamAppointmentDate) == ""}
	q := out.Primary
	switch {
	case len(splitList(params[ParamIDs])) > 0:
		if err := t.ids(q, splitList(params[ParamIDs])); err != nil {
			return nil, err
		}
	case get(ParamDoctorID) != "":
		id, err := uuid.Parse(get(ParamDoctorID))
		if err != nil {
			return nil, apperr.Field(ParamDoctorID, "invalid id")
		}
		q.Eq(t.doctorColumn, id)
	case get(ParamFirstName) != "":
		q.Where("lower(patient.first_name) = lower(?)", get(ParamFirstName))
	case get(ParamContactNumber) != "":
		q.Contains("patient.mobile_number", get(ParamContactNumber))
	case get(ParamDateOfBirth) != "":
		dob, err := ist.ParseDate(get(ParamDateOfBirth))
		if err != nil {
			return nil, apperr.Field(ParamDateOfBirth, "expected YYYY-MM-DD")
		}
		q.Where("patient.date_of_birth = ?::date", ist.FormatDate(dob))
	case get(ParamAppointmentDate) != "":
		raw := get(ParamAppointmentDate)
		if at, err := ist.Parse(raw); err == nil {
			q.Where(t.apptAt, at)
			out.Fallback = build()
			from, to := ist.DayBounds(at)
			out.Fallback.Where(t.apptBetween, from, to)
			break
		}
		day, err := ist.ParseDate(raw)
		if err != nil {
			return nil, apperr.Field(ParamAppointmentDate, "expected YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS")
		}
		from, to := ist.DayBounds(day)
		q.Where(t.apptBetween, from, to)
	case get(ParamQ) != "":
		q.ContainsAny([]string{"patient.last_name", "patient.mobile_number", "patient.email"}, get(ParamQ))
	}
	return out, nil
}

// CacheKey identifies a search by kind, user and the normalized parameters.
// Paging parameters are excluded so every page shares one cached result.
func CacheKey(kind Kind, userID uuid.UUID, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if !pageParams[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		var v string
		if k == ParamIDs {
			ids := splitList(params[k])
			sort.Strings(ids)
			v = strings.Join(ids, ",")
		} else {
			v = strings.TrimSpace(params.Get(k))
		}
		if v != "" {
			pairs = append(pairs, k+"="+url.QueryEscape(v))
		}
	}
	return "search:" + string(kind) + ":" + userID.String() + ":" + strings.Join(pairs, "&")
}
