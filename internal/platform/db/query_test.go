package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuery_Placeholders(t *testing.T) {
	q := NewQuery("patient", "id, first_name")
	q.Eq("first_name", "Asha")
	q.Where("(primary_doctor_id = ? OR created_by = ?)", "d1", "d2")
	q.Contains("email", "50%_off")
	q.OrderBy("created_at DESC")

	assert.Equal(t,
		"SELECT id, first_name FROM patient WHERE first_name = $1 AND (primary_doctor_id = $2 OR created_by = $3) AND email ILIKE $4 ORDER BY created_at DESC LIMIT $5 OFFSET $6",
		q.DataSQL())
	assert.Equal(t, "SELECT COUNT(*) FROM patient WHERE first_name = $1 AND (primary_doctor_id = $2 OR created_by = $3) AND email ILIKE $4", q.CountSQL())
	assert.Equal(t, []any{"Asha", "d1", "d2", `%50\%\_off%`}, q.Args())
	assert.Equal(t, []any{"Asha", "d1", "d2", `%50\%\_off%`, 10, 20}, q.DataArgs(10, 20))
}

func TestQuery_NoFilters(t *testing.T) {
	q := NewQuery("service", "id")
	assert.Equal(t, "SELECT id FROM service", q.SelectSQL())
	assert.Equal(t, "SELECT id FROM service LIMIT $1 OFFSET $2", q.DataSQL())
}

func TestQuery_ArgReuse(t *testing.T) {
	q := NewQuery("appointment", "id")
	p := q.Arg("doc")
	q.Where("(doctor_id = " + p + " OR patient_id IN (SELECT id FROM patient WHERE primary_doctor_id = " + p + "))")
	assert.Equal(t, "SELECT id FROM appointment WHERE (doctor_id = $1 OR patient_id IN (SELECT id FROM patient WHERE primary_doctor_id = $1))", q.SelectSQL())
	assert.Len(t, q.Args(), 1)
}

func TestQuery_ContainsAny(t *testing.T) {
	q := NewQuery("patient", "id")
	q.Eq("admission_type", "OP")
	q.ContainsAny([]string{"last_name", "email"}, "sha")
	assert.Equal(t, "SELECT id FROM patient WHERE admission_type = $1 AND (last_name ILIKE $2 OR email ILIKE $2)", q.SelectSQL())
	assert.Equal(t, []any{"OP", "%sha%"}, q.Args())
}
