// Package storage contains the in-memory persistence layer used when no
// DATABASE_URL is configured and by tests. It gives the same guarantees as
// the PostgreSQL repository: a unique (material, reporter) constraint, a
// conditional report transition and conditional ban writes, all applied under
// one write lock.
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dharsanguruparan/mindstash/internal/apperr"
	"github.com/dharsanguruparan/mindstash/internal/model"
)

type pairKey struct {
	material string
	reporter string
}

// MemoryStore is guarded by an RWMutex: reads share the lock, every write
// (including the conditional ones) holds it exclusively.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*model.User
	materials     map[string]*model.Material
	upvotes       map[string]map[string]struct{}
	reports       map[string]*model.Report
	reportPairs   map[pairKey]string
	notifications map[string]*model.Notification
	now           func() time.Time
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*model.User),
		materials:     make(map[string]*model.Material),
		upvotes:       make(map[string]map[string]struct{}),
		reports:       make(map[string]*model.Report),
		reportPairs:   make(map[pairKey]string),
		notifications: make(map[string]*model.Notification),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Close satisfies the same shape as the PostgreSQL repository.
func (m *MemoryStore) Close() {}

// ---- users ----

// UpsertUser inserts or replaces a user.
func (m *MemoryStore) UpsertUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = m.now()
	}
	m.users[u.ID] = &cp
	return nil
}

// GetUser returns a user copy.
func (m *MemoryStore) GetUser(_ context.Context, id string) (*model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// ListUsers returns every user ordered by creation.
func (m *MemoryStore) ListUsers(_ context.Context) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// BanUser flips the ban flag only if the user exists, is not banned and is
// not a moderator.
func (m *MemoryStore) BanUser(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperr.ErrNotFound
	}
	if u.IsBanned || u.Role == model.RoleModerator {
		return apperr.ErrStale
	}
	u.IsBanned = true
	u.BanReason = &reason
	return nil
}

// UnbanUser clears the ban flag only if it is set.
func (m *MemoryStore) UnbanUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperr.ErrNotFound
	}
	if !u.IsBanned {
		return apperr.ErrStale
	}
	u.IsBanned = false
	u.BanReason = nil
	return nil
}

// ---- materials ----

// CreateMaterial inserts a material. FileRef must be unique.
func (m *MemoryStore) CreateMaterial(_ context.Context, mat *model.Material) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.materials[mat.ID]; ok {
		return apperr.ErrDuplicate
	}
	for _, other := range m.materials {
		if other.FileRef == mat.FileRef {
			return apperr.ErrDuplicate
		}
	}
	if mat.CreatedAt.IsZero() {
		mat.CreatedAt = m.now()
	}
	cp := *mat
	cp.UpvoterIDs = nil
	m.materials[mat.ID] = &cp
	m.upvotes[mat.ID] = make(map[string]struct{})
	return nil
}

// GetMaterial returns a material copy with its upvoters.
func (m *MemoryStore) GetMaterial(_ context.Context, id string) (*model.Material, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mat, ok := m.materials[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *mat
	cp.UpvoterIDs = make([]string, 0, len(m.upvotes[id]))
	for uid := range m.upvotes[id] {
		cp.UpvoterIDs = append(cp.UpvoterIDs, uid)
	}
	sort.Strings(cp.UpvoterIDs)
	return &cp, nil
}

// DeleteMaterial removes the record, its upvotes, and detaches reports.
func (m *MemoryStore) DeleteMaterial(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.materials[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.materials, id)
	delete(m.upvotes, id)
	for _, r := range m.reports {
		if r.MaterialID != nil && *r.MaterialID == id {
			r.MaterialID = nil
		}
	}
	return nil
}

// ToggleUpvote adds or removes userID from the material's upvoters.
func (m *MemoryStore) ToggleUpvote(_ context.Context, materialID, userID string) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.upvotes[materialID]
	if !ok {
		return false, 0, apperr.ErrNotFound
	}
	if _, voted := set[userID]; voted {
		delete(set, userID)
		return false, len(set), nil
	}
	set[userID] = struct{}{}
	return true, len(set), nil
}

// ---- reports ----

// CreateReport inserts a report, enforcing uniqueness of (material, reporter)
// for the lifetime of the store. A non-zero since rejects the insert with
// apperr.ErrStale when the reporter filed anything after it.
func (m *MemoryStore) CreateReport(_ context.Context, r *model.Report, since time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{material: r.MaterialKey, reporter: r.ReporterID}
	if _, dup := m.reportPairs[key]; dup {
		return apperr.ErrDuplicate
	}
	if !since.IsZero() {
		for _, prev := range m.reports {
			if prev.ReporterID == r.ReporterID && prev.CreatedAt.After(since) {
				return apperr.ErrStale
			}
		}
	}
	now := m.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = r.CreatedAt
	m.reports[r.ID] = cloneReport(r)
	m.reportPairs[key] = r.ID
	return nil
}

// HasReport reports whether reporterID already reported materialKey.
func (m *MemoryStore) HasReport(_ context.Context, materialKey, reporterID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.reportPairs[pairKey{material: materialKey, reporter: reporterID}]
	return ok, nil
}

// LastReportAt returns the creation time of the reporter's newest report.
func (m *MemoryStore) LastReportAt(_ context.Context, reporterID string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		last  time.Time
		found bool
	)
	for _, r := range m.reports {
		if r.ReporterID == reporterID && (!found || r.CreatedAt.After(last)) {
			last, found = r.CreatedAt, true
		}
	}
	return last, found, nil
}

// GetReport returns a report copy.
func (m *MemoryStore) GetReport(_ context.Context, id string) (*model.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return cloneReport(r), nil
}

// ResolveReport moves a pending report to status. It fails with ErrStale if
// the report is no longer pending.
func (m *MemoryStore) ResolveReport(_ context.Context, id string, status model.ReportStatus, reviewerID string, comment *string) (*model.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if r.Status != model.ReportPending {
		return nil, apperr.ErrStale
	}
	r.Status = status
	r.ReviewerID = &reviewerID
	r.ModeratorComment = comment
	r.UpdatedAt = m.now()
	return cloneReport(r), nil
}

// ListReportsByReporter returns the reporter's reports, newest first.
func (m *MemoryStore) ListReportsByReporter(_ context.Context, reporterID string) ([]model.Report, error) {
	return m.filterReports(func(r *model.Report) bool { return r.ReporterID == reporterID }), nil
}

// ListReportsByStatus returns reports with the given status (nil means all),
// newest first. With excludeDeleted, reports whose material is gone are
// dropped.
func (m *MemoryStore) ListReportsByStatus(_ context.Context, status *model.ReportStatus, excludeDeleted bool) ([]model.Report, error) {
	return m.filterReports(func(r *model.Report) bool {
		if status != nil && r.Status != *status {
			return false
		}
		return !excludeDeleted || r.MaterialID != nil
	}), nil
}

func (m *MemoryStore) filterReports(keep func(*model.Report) bool) []model.Report {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Report, 0)
	for _, r := range m.reports {
		if keep(r) {
			out = append(out, *cloneReport(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func cloneReport(r *model.Report) *model.Report {
	cp := *r
	cp.BrokenRuleIDs = append([]string(nil), r.BrokenRuleIDs...)
	if r.MaterialID != nil {
		id := *r.MaterialID
		cp.MaterialID = &id
	}
	return &cp
}

// ---- notifications ----

// InsertNotification stores n unless a notification with the same ID exists.
func (m *MemoryStore) InsertNotification(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.notifications[n.ID]; exists {
		return nil
	}
	cp := *n
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = m.now()
	}
	m.notifications[n.ID] = &cp
	return nil
}

// ListNotifications returns the user's notifications, newest first.
func (m *MemoryStore) ListNotifications(_ context.Context, userID string) ([]model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Notification, 0)
	for _, n := range m.notifications {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// MarkNotificationsSeen flips seen on the user's unseen notifications.
func (m *MemoryStore) MarkNotificationsSeen(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, item := range m.notifications {
		if item.UserID == userID && !item.Seen {
			item.Seen = true
			n++
		}
	}
	return n, nil
}
