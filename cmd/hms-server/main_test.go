package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/clock"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/notification"
)

func TestMigrationsFS_Embedded(t *testing.T) {
	migs, err := db.NewMigrator(nil, migrationsFS("")).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(migs) == 0 || migs[0].Version != 1 {
		t.Fatalf("expected embedded migration 1, got %+v", migs)
	}
	for _, table := range []string{"staff_user", "patient", "appointment", "vitals", "bill_item", "history_record"} {
		if !strings.Contains(migs[0].SQL, "CREATE TABLE "+table+" (") {
			t.Errorf("schema is missing table %s", table)
		}
	}
}

func TestMigrationsFS_Directory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "007_extra.sql"), []byte("SELECT 1;"), 0o600); err != nil {
		t.Fatal(err)
	}
	migs, err := db.NewMigrator(nil, migrationsFS(dir)).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(migs) != 1 || migs[0].Version != 7 {
		t.Fatalf("expected only the on-disk migration, got %+v", migs)
	}
}

func TestPrintStatus(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	printStatus(&buf, []db.MigrationStatus{
		{Version: 1, Name: "001_core.sql", Applied: true, AppliedAt: &at},
		{Version: 2, Name: "002_next.sql"},
	})
	out := buf.String()
	if !strings.Contains(out, "applied    2024-03-01 09:30:00") {
		t.Errorf("applied row not rendered:\n%s", out)
	}
	if !strings.Contains(out, "002_next.sql") || !strings.Contains(out, "pending") {
		t.Errorf("pending row not rendered:\n%s", out)
	}
}

func TestStaffInputFromFlags(t *testing.T) {
	cmd, _, err := staffCmd().Find([]string{"create"})
	if err != nil {
		t.Fatal(err)
	}
	for name, value := range map[string]string{
		"username":       "dr.rao",
		"email":          "rao@example.com",
		"first-name":     "Anil",
		"user-type":      "doctor",
		"specialization": "Cardiology",
	} {
		if err := cmd.Flags().Set(name, value); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := staffInputFromFlags(cmd); err == nil || err.Error() != "--password is required" {
		t.Fatalf("expected missing password error, got %v", err)
	}

	if err := cmd.Flags().Set("password", "s3cret-pass"); err != nil {
		t.Fatal(err)
	}
	in, err := staffInputFromFlags(cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.UserType != "doctor" || in.RoleLevel != "senior" {
		t.Errorf("unexpected type/level: %s/%s", in.UserType, in.RoleLevel)
	}
	if in.Specialization == nil || *in.Specialization != "Cardiology" {
		t.Errorf("specialization not carried: %v", in.Specialization)
	}
	if in.IsSuperuser {
		t.Error("superuser should default to false")
	}
}

func TestBootstrapActor(t *testing.T) {
	if !bootstrapActor.Unrestricted() || !bootstrapActor.IsSuperuser {
		t.Error("cli actor must be able to create any account")
	}
}

func TestNewMailer_LogsWithoutAPIKey(t *testing.T) {
	m := newMailer(&config.Config{}, zerolog.Nop())
	if _, ok := m.(*notification.LogSender); !ok {
		t.Errorf("expected LogSender, got %T", m)
	}
	m = newMailer(&config.Config{SendGridAPIKey: "SG.key", MailFrom: "noreply@example.com"}, zerolog.Nop())
	if _, ok := m.(*notification.SendGridSender); !ok {
		t.Errorf("expected SendGridSender, got %T", m)
	}
}

func TestAuthRateLimit(t *testing.T) {
	clk := clock.NewManaged(time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC))
	rl := authRateLimit(&config.Config{AuthRatePerMinute: 30, AuthRateBurst: 4}, clk, zerolog.Nop())
	if rl.RequestsPerSecond != 0.5 {
		t.Errorf("expected 0.5 req/s, got %v", rl.RequestsPerSecond)
	}
	if rl.BurstSize != 4 {
		t.Errorf("expected burst 4, got %d", rl.BurstSize)
	}
	if rl.Clock != clk {
		t.Error("expected the server clock to drive the limiter")
	}
	if rl.IdleTTL <= 0 {
		t.Error("expected idle clients to be evicted")
	}
}

func TestAppointmentScope_MalformedID(t *testing.T) {
	err := appointmentScope(nil)(context.Background(), auth.DevActor, "not-a-uuid")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}
