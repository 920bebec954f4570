package scheduling

import (
	"bytes"
	"context"
	"errors"
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
	"github.com/hms/hms/internal/platform/ist"
)

// -- Mocks --

type mockDirectory struct {
	doctors  map[uuid.UUID]*DoctorInfo
	patients map[uuid.UUID]*PatientInfo
}

func (d *mockDirectory) Doctor(_ context.Context, id uuid.UUID) (*DoctorInfo, error) {
	if v, ok := d.doctors[id]; ok {
		return v, nil
	}
	return nil, apperr.NotFound("doctor")
}

func (d *mockDirectory) Patient(_ context.Context, id uuid.UUID) (*PatientInfo, error) {
	if v, ok := d.patients[id]; ok {
		return v, nil
	}
	return nil, apperr.NotFound("patient")
}

type mockRepo struct {
	mu    sync.Mutex
	dir   *mockDirectory
	appts map[uuid.UUID]*Appointment
	// blindSlots makes SlotTaken always report free, leaving the insert
	// as the only uniqueness check.
	blindSlots bool
}

func newMockRepo(dir *mockDirectory) *mockRepo {
	return &mockRepo{dir: dir, appts: make(map[uuid.UUID]*Appointment)}
}

func (m *mockRepo) withPrimary(a *Appointment) *Appointment {
	cp := *a
	if p, ok := m.dir.patients[a.PatientID]; ok {
		cp.PrimaryDoctorID = p.PrimaryDoctorID
	}
	return &cp
}

func (m *mockRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.appts {
		if existing.PatientID == a.PatientID && existing.AppointmentDate.Equal(a.AppointmentDate) {
			return ErrSlotTaken
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment")
	}
	return m.withPrimary(a), nil
}

func (m *mockRepo) Update(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[a.ID]; !ok {
		return apperr.NotFound("appointment")
	}
	for id, existing := range m.appts {
		if id != a.ID && existing.PatientID == a.PatientID && existing.AppointmentDate.Equal(a.AppointmentDate) {
			return ErrSlotTaken
		}
	}
	a.UpdatedAt = time.Now()
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockRepo) List(_ context.Context, f ListFilter, limit, offset int) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, stored := range m.appts {
		a := m.withPrimary(stored)
		if f.DoctorScope != nil && !auth.CanAccessAppointment(&auth.Actor{ID: *f.DoctorScope, UserType: auth.Doctor}, a.DoctorID, a.PrimaryDoctorID) {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.PatientID != nil && a.PatientID != *f.PatientID {
			continue
		}
		if f.From != nil && a.AppointmentDate.Before(*f.From) {
			continue
		}
		if f.To != nil && !a.AppointmentDate.Before(*f.To) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentDate.After(out[j].AppointmentDate) })
	total := len(out)
	if offset > total {
		offset = total
	}
	if end := offset + limit; end < total {
		return out[offset:end], total, nil
	}
	return out[offset:], total, nil
}

func (m *mockRepo) ListIDsByPatient(_ context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appts {
		if a.PatientID == patientID && a.Status != StatusCanceled {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppointmentDate.Before(out[j].AppointmentDate) })
	ids := make([]uuid.UUID, len(out))
	for i, a := range out {
		ids[i] = a.ID
	}
	return ids, nil
}

func (m *mockRepo) SlotTaken(_ context.Context, patientID uuid.UUID, ts time.Time, excludeID *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blindSlots {
		return false, nil
	}
	for id, a := range m.appts {
		if excludeID != nil && id == *excludeID {
			continue
		}
		if a.PatientID == patientID && a.AppointmentDate.Equal(ts) {
			return true, nil
		}
	}
	return false, nil
}

type mockAuditRepo struct {
	mu      sync.Mutex
	entries []*MonitoredAppointment
	err     error
}

func (m *mockAuditRepo) Insert(_ context.Context, e *MonitoredAppointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRepo) ListByAppointment(_ context.Context, id uuid.UUID) ([]*MonitoredAppointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*MonitoredAppointment
	for _, e := range m.entries {
		if e.AppointmentID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockHistoryRepo struct {
	mu      sync.Mutex
	records []*history.Record
}

func (m *mockHistoryRepo) Insert(_ context.Context, r *history.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *mockHistoryRepo) List(context.Context, string, string) ([]*history.Record, error) {
	return m.records, nil
}

// -- Fixtures --

var (
	cardiology   = "Cardiology"
	doctorA      = &auth.Actor{ID: uuid.New(), Username: "dra", Name: "Dr A", UserType: auth.Doctor, RoleLevel: auth.Senior}
	doctorB      = &auth.Actor{ID: uuid.New(), Username: "drb", Name: "Dr B", UserType: auth.Doctor, RoleLevel: auth.Senior}
	receptionist = &auth.Actor{ID: uuid.New(), Username: "rita", Name: "Rita", UserType: auth.Receptionist, RoleLevel: auth.Senior}
)

type fixture struct {
	svc     *Service
	repo    *mockRepo
	audits  *mockAuditRepo
	history *mockHistoryRepo
	dir     *mockDirectory
	clock   *clock.ManagedClock
	logs    *bytes.Buffer
	patient uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	// 2030-01-01 09:00 IST
	c := clock.NewManaged(time.Date(2030, 1, 1, 3, 30, 0, 0, time.UTC))
	patientID := uuid.New()
	email := "asha@example.com"
	dir := &mockDirectory{
		doctors: map[uuid.UUID]*DoctorInfo{
			doctorA.ID: {ID: doctorA.ID, Name: "Dr A", Email: "a@hms.local", Specialization: &cardiology},
			doctorB.ID: {ID: doctorB.ID, Name: "Dr B", Email: "b@hms.local"},
		},
		patients: map[uuid.UUID]*PatientInfo{
			patientID: {ID: patientID, PatientID: "KHOP01001", Name: "Asha Sharma", Email: &email, Phone: "9876543210"},
		},
	}
	repo := newMockRepo(dir)
	audits := &mockAuditRepo{}
	hist := &mockHistoryRepo{}
	logs := &bytes.Buffer{}
	svc := NewService(repo, audits, Config{
		Directory: dir,
		History:   history.NewRecorder(hist, c, zerolog.Nop()),
		Clock:     c,
		Logger:    zerolog.New(logs),
	})
	return &fixture{svc: svc, repo: repo, audits: audits, history: hist, dir: dir, clock: c, patient: patientID, logs: logs}
}

func (f *fixture) addPatient(primary *uuid.UUID) uuid.UUID {
	id := uuid.New()
	f.dir.patients[id] = &PatientInfo{ID: id, PatientID: "KHOP01" + id.String()[:3], Name: "P", Phone: "9000000000", PrimaryDoctorID: primary}
	return id
}

func (f *fixture) book(t *testing.T, patientID uuid.UUID, doctor *uuid.UUID, date string) *Appointment {
	t.Helper()
	a, err := f.svc.Create(context.Background(), receptionist, CreateInput{PatientID: patientID, DoctorID: doctor, AppointmentDate: date})
	if err != nil {
		t.Fatalf("book %s: %v", date, err)
	}
	return a
}

func strp(s string) *string { return &s }

// -- Guard --

func TestGuard_Validate(t *testing.T) {
	f := newFixture(t)
	now := ist.Now(f.clock)
	ctx := context.Background()
	g := NewGuard(f.repo)

	if err := g.Validate(ctx, f.patient, now, now, nil); !errors.Is(err, ErrPastDate) {
		t.Errorf("ts == now: expected ErrPastDate, got %v", err)
	}
	if err := g.Validate(ctx, f.patient, now.Add(-time.Minute), now, nil); !errors.Is(err, ErrPastDate) {
		t.Errorf("past: expected ErrPastDate, got %v", err)
	}
	if err := g.Validate(ctx, f.patient, now.Add(time.Second), now, nil); err != nil {
		t.Errorf("future: unexpected %v", err)
	}

	a := f.book(t, f.patient, nil, "2030-01-02T10:30:00")
	if err := g.Validate(ctx, f.patient, a.AppointmentDate.UTC(), now, nil); !errors.Is(err, ErrSlotTaken) {
		t.Errorf("same instant other zone: expected ErrSlotTaken, got %v", err)
	}
	if err := g.Validate(ctx, f.patient, a.AppointmentDate, now, &a.ID); err != nil {
		t.Errorf("own slot excluded: unexpected %v", err)
	}
	if err := g.Validate(ctx, f.addPatient(nil), a.AppointmentDate, now, nil); err != nil {
		t.Errorf("other patient same time: unexpected %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		before, after, want string
	}{
		{StatusBooked, StatusBooked, ActionEdited},
		{StatusBooked, StatusCanceled, ActionCanceled},
		{StatusBooked, StatusRescheduled, ActionRescheduled},
		{StatusBooked, StatusArrived, ActionEdited},
		{StatusCanceled, StatusCanceled, ActionEdited},
	}
	for _, tt := range tests {
		if got := Classify(tt.before, tt.after); got != tt.want {
			t.Errorf("Classify(%s, %s) = %s, want %s", tt.before, tt.after, got, tt.want)
		}
	}
}

func TestNormalizeStatus(t *testing.T) {
	if s, ok := NormalizeStatus(" Cancelled "); !ok || s != StatusCanceled {
		t.Errorf("got %q %v", s, ok)
	}
	if _, ok := NormalizeStatus("done"); ok {
		t.Error("unknown status accepted")
	}
}

// -- Create --

func TestCreate(t *testing.T) {
	f := newFixture(t)
	a := f.book(t, f.patient, &doctorA.ID, "2030-01-02T10:30:00")

	if a.Status != StatusBooked {
		t.Errorf("expected default status booked, got %s", a.Status)
	}
	if !ist.IsIST(a.AppointmentDate) || a.AppointmentDate.Hour() != 10 {
		t.Errorf("expected IST 10:30, got %v", a.AppointmentDate)
	}
	if a.ReceptionistID == nil || *a.ReceptionistID != receptionist.ID {
		t.Error("receptionist should be recorded")
	}
	if len(f.history.records) != 1 || f.history.records[0].Action != history.ActionCreate {
		t.Errorf("expected create history, got %+v", f.history.records)
	}
}

func TestCreate_DuplicateAcrossZones(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.patient, nil, "2030-01-02T10:30:00")

	for _, dup := range []string{"2030-01-02T10:30:00", "2030-01-02T05:00:00Z", "2030-01-02T10:30:00+05:30", "2030-01-02T00:00:00-05:00"} {
		_, err := f.svc.Create(context.Background(), receptionist, CreateInput{PatientID: f.patient, AppointmentDate: dup})
		if !errors.Is(err, ErrSlotTaken) || apperr.KindOf(err) != apperr.KindConflict {
			t.Errorf("%s: expected slot conflict, got %v", dup, err)
		}
	}
}

func TestCreate_ConcurrentDuplicateOneWins(t *testing.T) {
	f := newFixture(t)
	f.repo.blindSlots = true

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Create(context.Background(), receptionist, CreateInput{PatientID: f.patient, AppointmentDate: "2030-01-02T10:30:00"})
		}(i)
	}
	wg.Wait()

	ok, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrSlotTaken):
			conflicts++
		default:
			t.Errorf("unexpected error %v", err)
		}
	}
	if ok != 1 || conflicts != 1 {
		t.Errorf("expected one success and one conflict, got %d/%d", ok, conflicts)
	}
}

func TestCreate_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tests := []struct {
		name  string
		in    CreateInput
		kind  apperr.Kind
		field string
	}{
		{"past", CreateInput{PatientID: f.patient, AppointmentDate: "2029-12-31T10:00:00"}, apperr.KindValidation, "appointment_date"},
		{"now", CreateInput{PatientID: f.patient, AppointmentDate: "2030-01-01T09:00:00"}, apperr.KindValidation, "appointment_date"},
		{"bad format", CreateInput{PatientID: f.patient, AppointmentDate: "2030-01-02 10:00"}, apperr.KindValidation, "appointment_date"},
		{"missing patient", CreateInput{AppointmentDate: "2030-01-02T10:00:00"}, apperr.KindValidation, "patient_id"},
		{"unknown patient", CreateInput{PatientID: uuid.New(), AppointmentDate: "2030-01-02T10:00:00"}, apperr.KindValidation, "patient_id"},
		{"unknown doctor", CreateInput{PatientID: f.patient, DoctorID: &receptionist.ID, AppointmentDate: "2030-01-02T10:00:00"}, apperr.KindValidation, "doctor_id"},
		{"bad status", CreateInput{PatientID: f.patient, Status: "done", AppointmentDate: "2030-01-02T10:00:00"}, apperr.KindValidation, "status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, receptionist, tt.in)
			var ae *apperr.Error
			if !errors.As(err, &ae) || ae.Kind != tt.kind {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			if _, ok := ae.Fields[tt.field]; !ok {
				t.Errorf("expected field %s, got %v", tt.field, ae.Fields)
			}
		})
	}
	if len(f.repo.appts) != 0 {
		t.Errorf("nothing should be stored, got %d", len(f.repo.appts))
	}
}

// -- Update & audit --

func TestUpdate_AuditsTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, f.patient, &doctorA.ID, "2030-01-02T10:30:00")

	if _, err := f.svc.Update(ctx, receptionist, a.ID, UpdateInput{Notes: strp("bring reports")}); err != nil {
		t.Fatal(err)
	}
	updated, err := f.svc.Update(ctx, receptionist, a.ID, UpdateInput{Status: strp("cancelled")})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != StatusCanceled {
		t.Errorf("expected canceled, got %s", updated.Status)
	}

	entries, err := f.svc.History(ctx, receptionist, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	if entries[0].Action != ActionEdited || entries[1].Action != ActionCanceled {
		t.Errorf("unexpected actions %s, %s", entries[0].Action, entries[1].Action)
	}
	e := entries[1]
	if e.Before.Status != StatusBooked || e.After.Status != StatusCanceled {
		t.Errorf("unexpected snapshot statuses %s -> %s", e.Before.Status, e.After.Status)
	}
	if e.After.DoctorName != "Dr A" || *e.After.DoctorSpecialization != cardiology || e.After.PatientName != "Asha Sharma" || e.After.PatientCode != "KHOP01001" {
		t.Errorf("snapshot not denormalized: %+v", e.After)
	}
	if e.ActorName != "Rita" || *e.ActorID != receptionist.ID {
		t.Errorf("unexpected actor %s", e.ActorName)
	}
	if !ist.IsIST(e.After.AppointmentDate) {
		t.Error("snapshot date must be IST")
	}

	// one create + two updates
	if len(f.history.records) != 3 {
		t.Errorf("expected 3 history records, got %d", len(f.history.records))
	}
}

func TestUpdate_Reschedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, f.patient, nil, "2030-01-02T10:30:00")
	f.book(t, f.patient, nil, "2030-01-03T10:30:00")

	if _, err := f.svc.Update(ctx, receptionist, a.ID, UpdateInput{AppointmentDate: strp("2030-01-03T05:00:00Z")}); !errors.Is(err, ErrSlotTaken) {
		t.Errorf("expected slot conflict, got %v", err)
	}
	if _, err := f.svc.Update(ctx, receptionist, a.ID, UpdateInput{AppointmentDate: strp("2029-01-03T10:00:00")}); !errors.Is(err, ErrPastDate) {
		t.Errorf("expected past date, got %v", err)
	}
	// Unchanged date passes even once it is in the past.
	f.clock.WarpForward(48 * time.Hour)
	if _, err := f.svc.Update(ctx, receptionist, a.ID, UpdateInput{AppointmentDate: strp("2030-01-02T10:30:00"), Status: strp("reviewed")}); err != nil {
		t.Errorf("unchanged date should not run the guard: %v", err)
	}
}

func TestUpdate_DoctorOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.book(t, f.patient, &doctorA.ID, "2030-01-02T10:30:00")

	if _, err := f.svc.Update(ctx, doctorB, a.ID, UpdateInput{Notes: strp("x")}); apperr.KindOf(err) != apperr.KindPermission {
		t.Errorf("expected permission error, got %v", err)
	}
	if logs := f.logs.String(); !strings.Contains(logs, `"level":"warn"`) ||
		!strings.Contains(logs, `"actor_id":"`+doctorB.ID.String()+`"`) ||
		!strings.Contains(logs, "doctor scope denied") {
		t.Errorf("ownership denial should be logged at warn with the actor, got %s", logs)
	}
	if _, err := f.svc.Get(ctx, doctorA, a.ID); err != nil {
		t.Errorf("assigned doctor: %v", err)
	}

	primary := f.addPatient(&doctorB.ID)
	b := f.book(t, primary, &doctorA.ID, "2030-01-02T11:00:00")
	if _, err := f.svc.Get(ctx, doctorB, b.ID); err != nil {
		t.Errorf("primary doctor should access: %v", err)
	}

	list, total, err := f.svc.List(ctx, doctorB, ListFilter{}, 10, 0)
	if err != nil || total != 1 || list[0].ID != b.ID {
		t.Errorf("doctor list scope: %d %v", total, err)
	}
}

func TestAuditor_SkipsAndSwallows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	au := NewAuditor(f.audits, f.dir, f.clock, zerolog.Nop())
	after := &Appointment{ID: uuid.New(), PatientID: f.patient, Status: StatusBooked}

	au.Record(ctx, receptionist, nil, after)
	if len(f.audits.entries) != 0 {
		t.Error("nil before must be skipped")
	}

	f.audits.err = errors.New("insert or update on table violates foreign key constraint")
	au.Record(ctx, receptionist, after, after)
	if len(f.audits.entries) != 0 {
		t.Error("failed insert must not be stored")
	}

	// An update still succeeds while the audit store is failing.
	a := f.book(t, f.patient, nil, "2030-01-02T10:30:00")
	if _, err := f.svc.Update(ctx, receptionist, a.ID, UpdateInput{Notes: strp("n")}); err != nil {
		t.Errorf("audit failure leaked into update: %v", err)
	}
}

// -- Bulk --

func TestCancel_DoctorOwnsTwoOfThree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.book(t, f.patient, &doctorA.ID, "2030-01-02T10:00:00")
	a2 := f.book(t, f.patient, &doctorA.ID, "2030-01-02T11:00:00")
	a3 := f.book(t, f.patient, &doctorB.ID, "2030-01-02T12:00:00")

	res, err := f.svc.Cancel(ctx, doctorA, BulkInput{AppointmentIDs: []uuid.UUID{a1.ID, a2.ID, a3.ID}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 2 || res.Skipped != 1 || len(res.Failed) != 0 {
		t.Fatalf("expected 2 updated 1 skipped, got %+v", res)
	}
	if f.repo.appts[a3.ID].Status != StatusBooked {
		t.Error("unowned appointment must be untouched")
	}
	if f.repo.appts[a1.ID].Status != StatusCanceled || f.repo.appts[a2.ID].Status != StatusCanceled {
		t.Error("owned appointments must be canceled")
	}
	cancels := 0
	for _, e := range f.audits.entries {
		if e.Action == ActionCanceled {
			cancels++
		}
	}
	if cancels != 2 {
		t.Errorf("expected 2 CANCELED audit entries, got %d", cancels)
	}
}

func TestCancel_ByPatient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, f.patient, nil, "2030-01-02T10:00:00")
	f.book(t, f.patient, nil, "2030-01-03T10:00:00")
	missing := uuid.New()

	res, err := f.svc.Cancel(ctx, receptionist, BulkInput{PatientID: &f.patient})
	if err != nil || res.Updated != 2 {
		t.Fatalf("expected 2 updated, got %+v %v", res, err)
	}
	res, err = f.svc.Cancel(ctx, receptionist, BulkInput{PatientID: &f.patient})
	if err != nil || res.Updated != 0 {
		t.Fatalf("already canceled appointments are not selected again, got %+v %v", res, err)
	}
	res, _ = f.svc.Cancel(ctx, receptionist, BulkInput{AppointmentIDs: []uuid.UUID{missing}})
	if len(res.Failed) != 1 || res.Failed[0].ID != missing {
		t.Errorf("expected missing id reported, got %+v", res)
	}
	if _, err := f.svc.Cancel(ctx, receptionist, BulkInput{}); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestReschedule_PerItemGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := f.addPatient(nil)
	a1 := f.book(t, f.patient, nil, "2030-01-02T10:00:00")
	a2 := f.book(t, other, nil, "2030-01-02T10:00:00")
	f.book(t, other, nil, "2030-01-05T10:00:00")

	res, err := f.svc.Reschedule(ctx, receptionist, BulkInput{
		AppointmentIDs:  []uuid.UUID{a1.ID, a2.ID},
		AppointmentDate: "2030-01-05T10:00:00",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Updated != 1 || len(res.Failed) != 1 || res.Failed[0].ID != a2.ID || res.Failed[0].Error != ErrSlotTaken.Message {
		t.Fatalf("unexpected result %+v", res)
	}
	got := f.repo.appts[a1.ID]
	if got.Status != StatusRescheduled || got.AppointmentDate.Day() != 5 {
		t.Errorf("unexpected appointment %+v", got)
	}
	if f.audits.entries[len(f.audits.entries)-1].Action != ActionRescheduled {
		t.Error("expected RESCHEDULED audit entry")
	}

	if _, err := f.svc.Reschedule(ctx, receptionist, BulkInput{AppointmentIDs: []uuid.UUID{a1.ID}, AppointmentDate: "2030-01-01T09:00:00"}); !errors.Is(err, ErrPastDate) {
		t.Errorf("expected past date rejection, got %v", err)
	}
}
