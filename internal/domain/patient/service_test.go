package patient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/history"
	"github.com/hms/hms/internal/platform/idgen"
	"github.com/hms/hms/internal/platform/ist"
)

// -- Mock Repositories --

type mockRepo struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]*Patient
	appointments map[uuid.UUID][]uuid.UUID // patient -> doctors
	// collide makes the next n inserts report a patient_id collision.
	collide int
}

func newMockRepo() *mockRepo {
	return &mockRepo{patients: make(map[uuid.UUID]*Patient), appointments: make(map[uuid.UUID][]uuid.UUID)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collide > 0 {
		m.collide--
		return idgen.ErrCollision
	}
	for _, existing := range m.patients {
		if existing.PatientID == p.PatientID {
			return idgen.ErrCollision
		}
		if existing.FirstName == p.FirstName && existing.MobileNumber == p.MobileNumber {
			return ErrDuplicate
		}
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient")
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByPatientID(_ context.Context, patientID string) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.PatientID == patientID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("patient")
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[p.ID]; !ok {
		return apperr.NotFound("patient")
	}
	for id, existing := range m.patients {
		if id != p.ID && existing.FirstName == p.FirstName && existing.MobileNumber == p.MobileNumber {
			return ErrDuplicate
		}
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.patients[p.ID] = &cp
	return nil
}

func (m *mockRepo) visibleTo(p *Patient, doctorID uuid.UUID) bool {
	if p.PrimaryDoctorID != nil && *p.PrimaryDoctorID == doctorID {
		return true
	}
	for _, d := range m.appointments[p.ID] {
		if d == doctorID {
			return true
		}
	}
	return false
}

func (m *mockRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Patient, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Patient
	for _, p := range m.patients {
		if f.DoctorScope != nil && !m.visibleTo(p, *f.DoctorScope) {
			continue
		}
		if f.AdmissionType != "" && p.AdmissionType != f.AdmissionType {
			continue
		}
		if f.PrimaryDoctorID != nil && (p.PrimaryDoctorID == nil || *p.PrimaryDoctorID != *f.PrimaryDoctorID) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatientID < out[j].PatientID })
	total := len(out)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *mockRepo) MaxPatientID(_ context.Context, prefix string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := ""
	for _, p := range m.patients {
		if strings.HasPrefix(p.PatientID, prefix) && (len(p.PatientID) > len(max) || (len(p.PatientID) == len(max) && p.PatientID > max)) {
			max = p.PatientID
		}
	}
	return max, nil
}

func (m *mockRepo) HasAppointmentWith(_ context.Context, id, doctorID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.appointments[id] {
		if d == doctorID {
			return true, nil
		}
	}
	return false, nil
}

type mockHistoryRepo struct {
	records []*history.Record
}

func (m *mockHistoryRepo) Insert(_ context.Context, r *history.Record) error {
	m.records = append(m.records, r)
	return nil
}

func (m *mockHistoryRepo) List(_ context.Context, resourceType, resourceID string) ([]*history.Record, error) {
	var out []*history.Record
	for _, r := range m.records {
		if r.ResourceType == resourceType && r.ResourceID == resourceID {
			out = append(out, r)
		}
	}
	return out, nil
}

// -- Fixtures --

var (
	receptionist = &auth.Actor{ID: uuid.New(), Username: "rita", UserType: auth.Receptionist, RoleLevel: auth.Senior}
	doctorA      = &auth.Actor{ID: uuid.New(), Username: "dra", UserType: auth.Doctor, RoleLevel: auth.Senior}
	doctorB      = &auth.Actor{ID: uuid.New(), Username: "drb", UserType: auth.Doctor, RoleLevel: auth.Senior}
)

type fixture struct {
	svc     *Service
	repo    *mockRepo
	history *mockHistoryRepo
	clock   *clock.ManagedClock
	logs    *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	// 2024-06-14 10:00 IST
	c := clock.NewManaged(time.Date(2024, 6, 14, 4, 30, 0, 0, time.UTC))
	repo := newMockRepo()
	hist := &mockHistoryRepo{}
	logs := &bytes.Buffer{}
	doctors := func(_ context.Context, id uuid.UUID) error {
		if id == doctorA.ID || id == doctorB.ID {
			return nil
		}
		return apperr.NotFound("doctor")
	}
	svc := NewService(repo, Config{
		HospitalCode: "01",
		Doctors:      doctors,
		History:      history.NewRecorder(hist, c, zerolog.Nop()),
		Clock:        c,
		Logger:       zerolog.New(logs),
	})
	return &fixture{svc: svc, repo: repo, history: hist, clock: c, logs: logs}
}

func strp(s string) *string { return &s }

func dob(t *testing.T, s string) *ist.Date {
	t.Helper()
	d, err := ist.ParseDate(s)
	if err != nil {
		t.Fatal(err)
	}
	return &ist.Date{Time: d}
}

func validInput(t *testing.T, first, mobile string) Input {
	return Input{
		FirstName:    strp(first),
		LastName:     strp("Sharma"),
		DateOfBirth:  dob(t, "2000-06-15"),
		Gender:       strp("female"),
		MobileNumber: strp(mobile),
	}
}

// -- Tests --

func TestAgeOn(t *testing.T) {
	birth := time.Date(2000, 6, 15, 0, 0, 0, 0, ist.Location)
	tests := []struct {
		today string
		want  int
	}{
		{"2024-06-14", 23},
		{"2024-06-15", 24},
		{"2024-12-31", 24},
		{"2000-06-15", 0},
		{"1999-01-01", 0},
	}
	for _, tt := range tests {
		today, _ := ist.ParseDate(tt.today)
		if got := AgeOn(birth, today); got != tt.want {
			t.Errorf("AgeOn(2000-06-15, %s) = %d, want %d", tt.today, got, tt.want)
		}
	}
}

func TestCreate_AgeRecomputedDaily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Create(ctx, receptionist, validInput(t, "Asha", "9876543210"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Age != 23 {
		t.Errorf("expected age 23 on 2024-06-14, got %d", p.Age)
	}

	f.clock.WarpForward(24 * time.Hour)
	p, err = f.svc.Update(ctx, receptionist, p.PatientID, Input{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Age != 24 {
		t.Errorf("expected age 24 on 2024-06-15, got %d", p.Age)
	}
}

func TestCreate_SequentialIDsWithoutGaps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 1; i <= 12; i++ {
		p, err := f.svc.Create(ctx, receptionist, validInput(t, fmt.Sprintf("Patient%d", i), "9876543210"))
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		want := fmt.Sprintf("KHOP01%03d", i)
		if p.PatientID != want {
			t.Fatalf("expected %s, got %s", want, p.PatientID)
		}
	}

	in := validInput(t, "Ravi", "9000000000")
	in.AdmissionType = strp("er")
	p, err := f.svc.Create(ctx, receptionist, in)
	if err != nil {
		t.Fatal(err)
	}
	if p.PatientID != "KHER01001" {
		t.Errorf("expected separate counter per admission type, got %s", p.PatientID)
	}
}

func TestCreate_RetriesIdentifierCollision(t *testing.T) {
	f := newFixture(t)
	f.repo.collide = 2

	p, err := f.svc.Create(context.Background(), receptionist, validInput(t, "Asha", "9876543210"))
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if p.PatientID != "KHOP01001" {
		t.Errorf("unexpected id %s", p.PatientID)
	}

	f.repo.collide = idgen.MaxAttempts
	_, err = f.svc.Create(context.Background(), receptionist, validInput(t, "Bela", "9876543210"))
	if !errors.Is(err, idgen.ErrCollision) {
		t.Errorf("expected collision after exhausting attempts, got %v", err)
	}
}

func TestCreate_DuplicateNameMobileConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, receptionist, validInput(t, "Asha", "9876543210")); err != nil {
		t.Fatal(err)
	}
	_, err := f.svc.Create(ctx, receptionist, validInput(t, "Asha", "9876543210"))
	if apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(f.repo.patients) != 1 {
		t.Errorf("expected 1 patient, got %d", len(f.repo.patients))
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	in := Input{
		DateOfBirth:   dob(t, "2030-01-01"),
		Gender:        strp("unknown"),
		MobileNumber:  strp("12ab"),
		Email:         strp("nope"),
		Pincode:       strp("12"),
		BloodGroup:    strp("C+"),
		AdmissionType: strp("XX"),
		PaymentMode:   strp("insurance"),
	}
	_, err := f.svc.Create(context.Background(), receptionist, in)
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"first_name", "date_of_birth", "gender", "mobile_number", "email", "pincode", "blood_group", "admission_type", "insurance_provider"} {
		if _, ok := ae.Fields[field]; !ok {
			t.Errorf("expected error for %s, got %v", field, ae.Fields)
		}
	}
}

func TestCreate_UnknownPrimaryDoctor(t *testing.T) {
	f := newFixture(t)
	in := validInput(t, "Asha", "9876543210")
	unknown := uuid.New()
	in.PrimaryDoctorID = &unknown
	_, err := f.svc.Create(context.Background(), receptionist, in)
	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Fields["primary_doctor_id"] == "" {
		t.Fatalf("expected primary_doctor_id field error, got %v", err)
	}
}

func TestCreate_RecordsHistory(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.Create(context.Background(), receptionist, validInput(t, "Asha", "9876543210"))
	if err != nil {
		t.Fatal(err)
	}
	if len(f.history.records) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(f.history.records))
	}
	rec := f.history.records[0]
	if rec.Action != history.ActionCreate || rec.ResourceID != p.PatientID || *rec.ActorID != receptionist.ID {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestUpdate_PatientIDImmutable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Create(ctx, receptionist, validInput(t, "Asha", "9876543210"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.Update(ctx, receptionist, p.PatientID, Input{PatientID: strp("KHOP01999")})
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	// Echoing the current id back is allowed.
	updated, err := f.svc.Update(ctx, receptionist, p.PatientID, Input{PatientID: strp(p.PatientID), City: strp(" Pune ")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.PatientID != p.PatientID || updated.City == nil || *updated.City != "Pune" {
		t.Errorf("unexpected patient %+v", updated)
	}
	if updated.LastName != "Sharma" {
		t.Error("partial update must keep unspecified fields")
	}

	last := f.history.records[len(f.history.records)-1]
	if got := strings.Join(last.ChangedFields(), ","); got != "city" {
		t.Errorf("expected only city in history diff, got %s", got)
	}
}

func TestDoctorScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	own := validInput(t, "Own", "9000000001")
	own.PrimaryDoctorID = &doctorA.ID
	pOwn, err := f.svc.Create(ctx, receptionist, own)
	if err != nil {
		t.Fatal(err)
	}
	pVisit, err := f.svc.Create(ctx, receptionist, validInput(t, "Visit", "9000000002"))
	if err != nil {
		t.Fatal(err)
	}
	f.repo.appointments[pVisit.ID] = []uuid.UUID{doctorA.ID}
	pOther, err := f.svc.Create(ctx, receptionist, validInput(t, "Other", "9000000003"))
	if err != nil {
		t.Fatal(err)
	}

	list, total, err := f.svc.List(ctx, doctorA, ListFilter{}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(list) != 2 {
		t.Fatalf("expected 2 visible patients, got %d", total)
	}

	if _, err := f.svc.Get(ctx, doctorA, pOwn.PatientID); err != nil {
		t.Errorf("primary doctor should see patient: %v", err)
	}
	if _, err := f.svc.Get(ctx, doctorA, pVisit.PatientID); err != nil {
		t.Errorf("appointment doctor should see patient: %v", err)
	}
	if _, err := f.svc.Get(ctx, doctorA, pOther.PatientID); apperr.KindOf(err) != apperr.KindPermission {
		t.Errorf("expected permission error, got %v", err)
	}
	if logs := f.logs.String(); !strings.Contains(logs, `"level":"warn"`) ||
		!strings.Contains(logs, `"actor_id":"`+doctorA.ID.String()+`"`) ||
		!strings.Contains(logs, `"patient_id":"`+pOther.PatientID+`"`) {
		t.Errorf("scope denial should be logged at warn with the actor, got %s", logs)
	}
	if err := f.svc.Authorize(ctx, doctorA, pOther.PatientID); apperr.KindOf(err) != apperr.KindPermission {
		t.Errorf("Authorize should apply the doctor scope, got %v", err)
	}
	if err := f.svc.Authorize(ctx, receptionist, pOther.PatientID); err != nil {
		t.Errorf("receptionist is unscoped: %v", err)
	}
	if _, err := f.svc.Update(ctx, doctorB, pOwn.PatientID, Input{City: strp("Goa")}); apperr.KindOf(err) != apperr.KindPermission {
		t.Errorf("expected permission error for other doctor, got %v", err)
	}

	_, total, err = f.svc.List(ctx, receptionist, ListFilter{DoctorScope: &doctorB.ID}, 10, 0)
	if err != nil || total != 3 {
		t.Errorf("receptionist sees everyone regardless of caller-supplied scope, got %d %v", total, err)
	}
}
