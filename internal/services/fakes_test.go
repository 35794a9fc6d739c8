package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gdg-portal/permission-portal/internal/audit"
	"github.com/gdg-portal/permission-portal/internal/db/models"
	"github.com/gdg-portal/permission-portal/internal/db/repositories"
	"github.com/google/uuid"
)

var errStore = errors.New("store unavailable")

// memStore is an in-memory stand-in for the three repositories. It follows the
// same contracts: upsert refreshes profile fields only, Transition updates the
// status and appends one audit row together.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*models.User
	requests map[string]*models.PermissionRequest
	audit    []models.AuditLog
	clock    time.Time
	fail     bool
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[string]*models.User{},
		requests: map[string]*models.PermissionRequest{},
		clock:    time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

// --- UserStore

func (m *memStore) EnsureUser(_ context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errStore
	}
	now := m.tick()
	if existing, ok := m.users[u.ID]; ok {
		existing.Email, existing.FirstName, existing.LastName = u.Email, u.FirstName, u.LastName
		existing.UpdatedAt = now
		cp := *existing
		return &cp, nil
	}
	cp := *u
	cp.CreatedAt, cp.UpdatedAt = now, now
	m.users[u.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errStore
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) SetPosition(_ context.Context, id, position string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errStore
	}
	u, ok := m.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	u.Position = position
	return nil
}

func (m *memStore) setRole(id string, role models.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].Role = role
}

// countUsers and countRequests back the two Count methods via the adapters below.
func (m *memStore) countUsers() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, errStore
	}
	return len(m.users), nil
}

// --- RequestStore

func (m *memStore) Create(_ context.Context, req *models.PermissionRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errStore
	}
	now := m.tick()
	req.ID = uuid.New().String()
	req.Status = models.RequestStatusPending
	req.CreatedAt, req.UpdatedAt = now, now
	cp := *req
	m.requests[req.ID] = &cp
	return nil
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]models.PermissionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errStore
	}
	var out []models.PermissionRequest
	for _, r := range m.requests {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) withUser(r *models.PermissionRequest) models.PermissionRequestWithUser {
	out := models.PermissionRequestWithUser{PermissionRequest: *r}
	if u, ok := m.users[r.UserID]; ok {
		out.UserEmail, out.UserFirstName, out.UserLastName, out.UserPosition = u.Email, u.FirstName, u.LastName, u.Position
	}
	return out
}

func (m *memStore) ListPending(_ context.Context) ([]models.PermissionRequestWithUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errStore
	}
	var out []models.PermissionRequestWithUser
	for _, r := range m.requests {
		if r.Status == models.RequestStatusPending {
			out = append(out, m.withUser(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) ListRecentResolved(_ context.Context, limit int) ([]models.PermissionRequestWithUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errStore
	}
	var out []models.PermissionRequestWithUser
	for _, r := range m.requests {
		if r.Status != models.RequestStatusPending {
			out = append(out, m.withUser(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) Transition(_ context.Context, id string, status models.RequestStatus, actorID string) (*models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errStore
	}
	r, ok := m.requests[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	now := m.tick()
	r.Status = status
	r.UpdatedAt = now

	actor, reqID := actorID, id
	entry := models.AuditLog{
		ID:        fmt.Sprintf("audit-%03d", len(m.audit)+1),
		Action:    status.AuditAction(),
		Details:   r.Title,
		ActorID:   &actor,
		RequestID: &reqID,
		CreatedAt: now,
	}
	m.audit = append(m.audit, entry)
	return &entry, nil
}

func (m *memStore) countRequests() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return 0, errStore
	}
	return len(m.requests), nil
}

// --- AuditStore

func (m *memStore) ListRecent(_ context.Context, limit int) ([]models.AuditLogWithActor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return nil, errStore
	}
	var out []models.AuditLogWithActor
	for i := len(m.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := models.AuditLogWithActor{AuditLog: m.audit[i]}
		if e.ActorID != nil {
			if u, ok := m.users[*e.ActorID]; ok {
				e.ActorEmail, e.ActorFirstName, e.ActorLastName = &u.Email, &u.FirstName, &u.LastName
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// userStore and requestStore give each Count method its own receiver type.
type userStore struct{ *memStore }

func (u userStore) Count(context.Context) (int, error) { return u.countUsers() }

type requestStore struct{ *memStore }

func (r requestStore) Count(context.Context) (int, error) { return r.countRequests() }

// captureShipper records shipped entries on a channel.
type captureShipper struct {
	entries chan *audit.LogEntry
	err     error
}

func newCaptureShipper() *captureShipper {
	return &captureShipper{entries: make(chan *audit.LogEntry, 16)}
}

func (c *captureShipper) Ship(_ context.Context, e *audit.LogEntry) error {
	c.entries <- e
	return c.err
}

// fixture wires the three services over one memStore.
type fixture struct {
	store     *memStore
	shipper   *captureShipper
	directory *Directory
	ledger    *Ledger
	auditLog  *AuditLog
}

func newFixture() *fixture {
	store := newMemStore()
	shipper := newCaptureShipper()
	return &fixture{
		store:     store,
		shipper:   shipper,
		directory: NewDirectory(userStore{store}),
		ledger:    NewLedger(requestStore{store}, shipper),
		auditLog:  NewAuditLog(store),
	}
}
