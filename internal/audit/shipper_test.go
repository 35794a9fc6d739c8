package audit_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gdg-portal/permission-portal/internal/audit"
	"github.com/gdg-portal/permission-portal/internal/config"
	"github.com/gdg-portal/permission-portal/internal/db/models"
	"github.com/gdg-portal/permission-portal/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func sampleEntry() *audit.LogEntry {
	return &audit.LogEntry{
		ID:        "01HZX3Q7",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Action:    "APPROVED",
		Details:   "Use 3D printer",
		ActorID:   "admin-1",
		RequestID: "req-1",
	}
}

// ---------------------------------------------------------------------------
// EntryFromLog
// ---------------------------------------------------------------------------

func TestEntryFromLog(t *testing.T) {
	actor, req := "admin-1", "req-1"
	e := audit.EntryFromLog(&models.AuditLog{
		ID: "01A", Action: "REJECTED", Details: "Key card", ActorID: &actor, RequestID: &req,
	})
	if e.ActorID != "admin-1" || e.RequestID != "req-1" || e.Action != "REJECTED" {
		t.Errorf("entry = %+v", e)
	}

	e = audit.EntryFromLog(&models.AuditLog{ID: "01B", Action: "PENDING"})
	if e.ActorID != "" || e.RequestID != "" {
		t.Errorf("nil pointers should map to empty strings: %+v", e)
	}
}

// ---------------------------------------------------------------------------
// MultiShipper
// ---------------------------------------------------------------------------

func TestNewMultiShipper_Empty(t *testing.T) {
	ms, err := audit.NewMultiShipper(nil)
	if err != nil {
		t.Fatalf("NewMultiShipper(nil) error: %v", err)
	}
	if ms.Len() != 0 {
		t.Errorf("Len() = %d, want 0", ms.Len())
	}
	if err := ms.Ship(context.Background(), sampleEntry()); err != nil {
		t.Errorf("Ship() on empty multi-shipper = %v, want nil", err)
	}
	if err := ms.Close(); err != nil {
		t.Errorf("Close() on empty multi-shipper = %v, want nil", err)
	}
}

func TestNewMultiShipper_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AuditShipperConfig
	}{
		{"unknown type", config.AuditShipperConfig{Enabled: true, Type: "syslog"}},
		{"webhook nil config", config.AuditShipperConfig{Enabled: true, Type: "webhook"}},
		{"file nil config", config.AuditShipperConfig{Enabled: true, Type: "file"}},
		{"kafka nil config", config.AuditShipperConfig{Enabled: true, Type: "kafka"}},
		{"kafka no brokers", config.AuditShipperConfig{Enabled: true, Type: "kafka", Kafka: &config.AuditKafkaConfig{Topic: "audit"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := audit.NewMultiShipper([]config.AuditShipperConfig{tt.cfg}); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNewMultiShipper_DisabledSkipped(t *testing.T) {
	ms, err := audit.NewMultiShipper([]config.AuditShipperConfig{
		{Enabled: false, Type: "webhook", Webhook: &config.AuditWebhookConfig{URL: "http://example.com"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ms.Len() != 0 {
		t.Errorf("Len() = %d, want 0", ms.Len())
	}
}

type stubShipper struct {
	err     error
	shipped int
	closed  bool
}

func (s *stubShipper) Ship(context.Context, *audit.LogEntry) error {
	s.shipped++
	return s.err
}

func (s *stubShipper) Close() error {
	s.closed = true
	return nil
}

func TestMultiShipper_ContinuesAfterShipperError(t *testing.T) {
	ms, _ := audit.NewMultiShipper(nil)
	failing := &stubShipper{err: errors.New("broker down")}
	healthy := &stubShipper{}
	ms.Add("kafka", failing)
	ms.Add("file", healthy)

	before := testutil.ToFloat64(telemetry.AuditShipErrorsTotal.WithLabelValues("kafka"))

	err := ms.Ship(context.Background(), sampleEntry())
	if err == nil {
		t.Fatal("expected joined error from failing shipper")
	}
	if healthy.shipped != 1 {
		t.Errorf("healthy shipper shipped %d entries, want 1", healthy.shipped)
	}
	if got := testutil.ToFloat64(telemetry.AuditShipErrorsTotal.WithLabelValues("kafka")) - before; got != 1 {
		t.Errorf("audit_ship_errors_total{shipper=kafka} delta = %v, want 1", got)
	}

	if err := ms.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
	if !failing.closed || !healthy.closed {
		t.Error("Close() must close every shipper")
	}
}

// ---------------------------------------------------------------------------
// WebhookShipper
// ---------------------------------------------------------------------------

func TestWebhookShipper_ShipEntry(t *testing.T) {
	var got audit.LogEntry
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ws, err := audit.NewWebhookShipper(&config.AuditWebhookConfig{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer siem-token"},
	})
	if err != nil {
		t.Fatalf("NewWebhookShipper: %v", err)
	}
	defer ws.Close()

	if err := ws.Ship(context.Background(), sampleEntry()); err != nil {
		t.Fatalf("Ship() error: %v", err)
	}
	if got.Action != "APPROVED" || got.Details != "Use 3D printer" || got.RequestID != "req-1" {
		t.Errorf("received entry = %+v", got)
	}
	if auth != "Bearer siem-token" {
		t.Errorf("Authorization header = %q", auth)
	}
}

func TestWebhookShipper_ErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ws, _ := audit.NewWebhookShipper(&config.AuditWebhookConfig{URL: srv.URL})
	if err := ws.Ship(context.Background(), sampleEntry()); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestNewWebhookShipper_RequiresURL(t *testing.T) {
	if _, err := audit.NewWebhookShipper(&config.AuditWebhookConfig{}); err == nil {
		t.Error("expected error for empty URL")
	}
}

// ---------------------------------------------------------------------------
// FileShipper
// ---------------------------------------------------------------------------

func TestFileShipper_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	fs, err := audit.NewFileShipper(&config.AuditFileConfig{Path: path})
	if err != nil {
		t.Fatalf("NewFileShipper: %v", err)
	}

	first := sampleEntry()
	second := sampleEntry()
	second.Action = "PENDING"
	for _, e := range []*audit.LogEntry{first, second} {
		if err := fs.Ship(context.Background(), e); err != nil {
			t.Fatalf("Ship() error: %v", err)
		}
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var actions []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e audit.LogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line is not JSON: %v", err)
		}
		actions = append(actions, e.Action)
	}
	if len(actions) != 2 || actions[0] != "APPROVED" || actions[1] != "PENDING" {
		t.Errorf("actions = %v, want [APPROVED PENDING]", actions)
	}
}

func TestNewFileShipper_InvalidPath(t *testing.T) {
	_, err := audit.NewFileShipper(&config.AuditFileConfig{Path: filepath.Join(t.TempDir(), "missing", "dir", "audit.log")})
	if err == nil {
		t.Error("expected error for unwritable path")
	}
}
