// Package audit forwards permission request transitions to external sinks.
//
// The audit_logs table is the record of truth and is written in the same
// transaction as the status change. Shippers run afterwards and are best effort:
// a webhook outage or a down broker never blocks or undoes a transition.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gdg-portal/permission-portal/internal/config"
	"github.com/gdg-portal/permission-portal/internal/db/models"
	"github.com/gdg-portal/permission-portal/internal/telemetry"
)

// LogEntry is the shipped form of one audit_logs row
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	ActorID   string    `json:"actor_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// EntryFromLog converts a stored audit row into a LogEntry
func EntryFromLog(l *models.AuditLog) *LogEntry {
	e := &LogEntry{
		ID:        l.ID,
		Timestamp: l.CreatedAt,
		Action:    l.Action,
		Details:   l.Details,
	}
	if l.ActorID != nil {
		e.ActorID = *l.ActorID
	}
	if l.RequestID != nil {
		e.RequestID = *l.RequestID
	}
	return e
}

// encode marshals an entry with sonic
func encode(entry *LogEntry) ([]byte, error) {
	data, err := sonic.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit entry: %w", err)
	}
	return data, nil
}

// Shipper defines the interface for audit log shipping
type Shipper interface {
	// Ship sends an audit log entry to the destination
	Ship(ctx context.Context, entry *LogEntry) error
	// Close cleans up any resources
	Close() error
}

type namedShipper struct {
	kind string
	Shipper
}

// MultiShipper ships to multiple destinations
type MultiShipper struct {
	shippers []namedShipper
	mu       sync.RWMutex
}

// NewMultiShipper creates a multi-shipper from the enabled configs
func NewMultiShipper(configs []config.AuditShipperConfig) (*MultiShipper, error) {
	ms := &MultiShipper{}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var shipper Shipper
		var err error

		switch cfg.Type {
		case "webhook":
			if cfg.Webhook == nil {
				return nil, fmt.Errorf("webhook config is required for webhook shipper")
			}
			shipper, err = NewWebhookShipper(cfg.Webhook)
		case "file":
			if cfg.File == nil {
				return nil, fmt.Errorf("file config is required for file shipper")
			}
			shipper, err = NewFileShipper(cfg.File)
		case "kafka":
			if cfg.Kafka == nil {
				return nil, fmt.Errorf("kafka config is required for kafka shipper")
			}
			shipper, err = NewKafkaShipper(cfg.Kafka)
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}

		if err != nil {
			ms.Close() // nolint:errcheck
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}

		ms.Add(cfg.Type, shipper)
	}

	return ms, nil
}

// Add registers another destination under kind, which labels its error metric.
func (ms *MultiShipper) Add(kind string, s Shipper) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.shippers = append(ms.shippers, namedShipper{kind: kind, Shipper: s})
}

// Len returns the number of active destinations
func (ms *MultiShipper) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.shippers)
}

// Ship sends an entry to every destination. A failing destination does not stop
// the others; all failures are joined into the returned error.
func (ms *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var errs []error
	for _, s := range ms.shippers {
		if err := s.Ship(ctx, entry); err != nil {
			telemetry.AuditShipErrorsTotal.WithLabelValues(s.kind).Inc()
			slog.WarnContext(ctx, "audit shipper error",
				"shipper", s.kind,
				"audit_id", entry.ID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.kind, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes all shippers
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var errs []error
	for _, s := range ms.shippers {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
