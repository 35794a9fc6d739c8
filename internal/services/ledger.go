package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gdg-portal/permission-portal/internal/audit"
	"github.com/gdg-portal/permission-portal/internal/auth"
	"github.com/gdg-portal/permission-portal/internal/db/models"
	"github.com/gdg-portal/permission-portal/internal/db/repositories"
	"github.com/gdg-portal/permission-portal/internal/perrors"
	"github.com/gdg-portal/permission-portal/internal/safego"
	"github.com/gdg-portal/permission-portal/internal/telemetry"
	"github.com/google/uuid"
)

const (
	maxTitleLength  = 200
	maxReasonLength = 2000

	shipTimeout = 15 * time.Second
)

// Ledger owns the permission request lifecycle.
type Ledger struct {
	requests RequestStore
	shipper  AuditShipper
	inflight sync.WaitGroup
}

// NewLedger creates a ledger. shipper may be nil when no audit sinks are configured.
func NewLedger(requests RequestStore, shipper AuditShipper) *Ledger {
	return &Ledger{requests: requests, shipper: shipper}
}

// Submit files a new pending request owned by userID and returns its id.
func (l *Ledger) Submit(ctx context.Context, userID, title, reason string) (string, error) {
	title = strings.TrimSpace(title)
	reason = strings.TrimSpace(reason)

	if title == "" {
		return "", perrors.NewValidation("Title is required")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", perrors.NewValidation(fmt.Sprintf("Title must be at most %d characters", maxTitleLength))
	}
	if utf8.RuneCountInString(reason) > maxReasonLength {
		return "", perrors.NewValidation(fmt.Sprintf("Reason must be at most %d characters", maxReasonLength))
	}

	req := &models.PermissionRequest{UserID: userID, Title: title}
	if reason != "" {
		req.Reason = &reason
	}

	if err := l.requests.Create(ctx, req); err != nil {
		return "", perrors.NewInternal("failed to submit request", err)
	}
	telemetry.PermissionRequestsSubmittedTotal.Inc()

	slog.InfoContext(ctx, "permission request submitted", "request_id", req.ID, "user_id", userID)
	return req.ID, nil
}

// ListMine returns the user's own requests, newest first.
func (l *Ledger) ListMine(ctx context.Context, userID string) ([]models.PermissionRequest, error) {
	reqs, err := l.requests.ListByUser(ctx, userID)
	if err != nil {
		return nil, perrors.NewInternal("failed to list your requests", err)
	}
	return reqs, nil
}

// ListPending returns the approval queue, oldest first.
func (l *Ledger) ListPending(ctx context.Context) ([]models.PermissionRequestWithUser, error) {
	reqs, err := l.requests.ListPending(ctx)
	if err != nil {
		return nil, perrors.NewInternal("failed to list pending requests", err)
	}
	return reqs, nil
}

// ListRecent returns up to limit resolved requests, newest first.
func (l *Ledger) ListRecent(ctx context.Context, limit int) ([]models.PermissionRequestWithUser, error) {
	reqs, err := l.requests.ListRecentResolved(ctx, normalizeLimit(limit))
	if err != nil {
		return nil, perrors.NewInternal("failed to list recent requests", err)
	}
	return reqs, nil
}

// CountAll returns the number of requests ever submitted.
func (l *Ledger) CountAll(ctx context.Context) (int, error) {
	n, err := l.requests.Count(ctx)
	if err != nil {
		return 0, perrors.NewInternal("failed to count requests", err)
	}
	return n, nil
}

// Transition moves a request to newStatus and records the audit entry in the
// same transaction. Repeating a transition records it again.
func (l *Ledger) Transition(ctx context.Context, requestID, actorID string, actorRole models.Role, newStatus models.RequestStatus) error {
	if !auth.Authorize(actorRole, auth.ActionTransitionRequest) {
		return perrors.NewForbidden("you are not allowed to review requests",
			map[string]any{"actor_id": actorID, "role": string(actorRole)})
	}
	if !newStatus.IsValid() {
		return perrors.NewValidation(fmt.Sprintf("unknown status %q", newStatus))
	}
	parsed, err := uuid.Parse(requestID)
	if err != nil || !strings.EqualFold(parsed.String(), requestID) {
		return perrors.NewNotFound("request not found", map[string]any{"request_id": requestID})
	}
	requestID = parsed.String()

	entry, err := l.requests.Transition(ctx, requestID, newStatus, actorID)
	if errors.Is(err, repositories.ErrNotFound) {
		return perrors.NewNotFound("request not found", map[string]any{"request_id": requestID})
	}
	if err != nil {
		return perrors.NewInternal("failed to update request", err)
	}

	telemetry.PermissionRequestTransitionsTotal.WithLabelValues(string(newStatus)).Inc()
	slog.InfoContext(ctx, "permission request transitioned",
		"request_id", requestID, "status", newStatus, "actor_id", actorID, "audit_id", entry.ID)

	l.ship(entry)
	return nil
}

// ship forwards the committed entry in the background; failures are logged by
// the shipper and never reach the caller.
func (l *Ledger) ship(entry *models.AuditLog) {
	if l.shipper == nil || entry == nil {
		return
	}
	logEntry := audit.EntryFromLog(entry)
	l.inflight.Add(1)
	safego.Go("audit-ship", func() {
		defer l.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), shipTimeout)
		defer cancel()
		_ = l.shipper.Ship(ctx, logEntry)
	})
}

// WaitForShipments blocks until every in-flight shipment has finished or ctx
// is done. It reports whether all shipments finished.
func (l *Ledger) WaitForShipments(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
