package db

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrations_AreEmbeddedInPairs(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no migrations embedded")
	}

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file in migrations: %s", name)
		}
	}
	for base := range ups {
		if !downs[base] {
			t.Errorf("migration %s has no down file", base)
		}
	}
	for base := range downs {
		if !ups[base] {
			t.Errorf("migration %s has no up file", base)
		}
	}
}

func TestMigrations_AuditLogIsAppendOnly(t *testing.T) {
	data, err := fs.ReadFile(migrationsFS, "migrations/000003_create_audit_logs.up.sql")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	sql := string(data)
	for _, want := range []string{"audit_logs_no_update", "audit_logs_no_delete"} {
		if !strings.Contains(sql, want) {
			t.Errorf("audit migration missing trigger %s", want)
		}
	}
	if strings.Contains(sql, "REFERENCES permission_requests") {
		t.Error("audit_logs must not reference permission_requests")
	}
}

func TestMigrations_AuditLogUpdateGuardCoversEveryColumn(t *testing.T) {
	data, err := fs.ReadFile(migrationsFS, "migrations/000003_create_audit_logs.up.sql")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	sql := string(data)
	if strings.Contains(sql, "BEFORE UPDATE OF") {
		t.Error("update trigger must fire on every column, not a column list")
	}
	for _, col := range []string{"id", "action", "details", "request_id", "created_at"} {
		guard := "NEW." + col + " IS DISTINCT FROM OLD." + col
		if !strings.Contains(sql, guard) {
			t.Errorf("update trigger does not guard %s", col)
		}
	}
	// actor_id may only be cleared by the users ON DELETE SET NULL cascade.
	if !strings.Contains(sql, "NEW.actor_id IS NOT NULL AND NEW.actor_id IS DISTINCT FROM OLD.actor_id") {
		t.Error("update trigger does not guard actor_id reassignment")
	}
}

func TestRunMigrations_InvalidDirection(t *testing.T) {
	if err := RunMigrations(nil, "sideways"); err == nil {
		t.Fatal("expected error for invalid direction")
	}
}
