package storage

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/mindstash/internal/apperr"
	"github.com/dharsanguruparan/mindstash/internal/model"
)

func seedMaterial(t *testing.T, s *MemoryStore, id string) {
	t.Helper()
	require.NoError(t, s.CreateMaterial(context.Background(), &model.Material{
		ID: id, Title: "Notes", FileRef: "materials/" + id, FileKind: model.FileKindPDF, UploaderID: "uploader",
	}))
}

func TestCreateReportUniqueUnderConcurrency(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	seedMaterial(t, s, "m1")

	var (
		wg      sync.WaitGroup
		created atomic.Int32
		dups    atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "m1"
			err := s.CreateReport(ctx, &model.Report{
				ID: "r" + string(rune('a'+i)), MaterialKey: "m1", MaterialID: &id, ReporterID: "u1", Status: model.ReportPending,
			}, time.Time{})
			switch {
			case err == nil:
				created.Add(1)
			case err == apperr.ErrDuplicate:
				dups.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	assert.Equal(t, int32(15), dups.Load())
}

func TestResolveReportIsConditional(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	id := "m1"
	require.NoError(t, s.CreateReport(ctx, &model.Report{ID: "r1", MaterialKey: id, MaterialID: &id, ReporterID: "u1", Status: model.ReportPending}, time.Time{}))

	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		stale atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ResolveReport(ctx, "r1", model.ReportAccepted, "mod", nil)
			if err == nil {
				wins.Add(1)
			} else if err == apperr.ErrStale {
				stale.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(7), stale.Load())

	_, err := s.ResolveReport(ctx, "missing", model.ReportRejected, "mod", nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeleteMaterialDetachesReportsButKeepsUniqueness(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	seedMaterial(t, s, "m1")
	id := "m1"
	require.NoError(t, s.CreateReport(ctx, &model.Report{ID: "r1", MaterialKey: id, MaterialID: &id, ReporterID: "u1", Status: model.ReportPending}, time.Time{}))

	require.NoError(t, s.DeleteMaterial(ctx, "m1"))

	r, err := s.GetReport(ctx, "r1")
	require.NoError(t, err)
	assert.True(t, r.MaterialDeleted())

	pending := model.ReportPending
	queue, err := s.ListReportsByStatus(ctx, &pending, true)
	require.NoError(t, err)
	assert.Empty(t, queue)

	err = s.CreateReport(ctx, &model.Report{ID: "r2", MaterialKey: "m1", ReporterID: "u1", Status: model.ReportPending}, time.Time{})
	assert.ErrorIs(t, err, apperr.ErrDuplicate)
}

func TestBanUserConditions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.UpsertUser(ctx, &model.User{ID: "u1", Role: model.RoleUser}))
	require.NoError(t, s.UpsertUser(ctx, &model.User{ID: "mod", Role: model.RoleModerator}))

	require.NoError(t, s.BanUser(ctx, "u1", "repeated policy violations"))
	assert.ErrorIs(t, s.BanUser(ctx, "u1", "again and again"), apperr.ErrStale)
	assert.ErrorIs(t, s.BanUser(ctx, "mod", "not allowed at all"), apperr.ErrStale)
	assert.ErrorIs(t, s.BanUser(ctx, "ghost", "nobody home here"), apperr.ErrNotFound)

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.IsBanned)
	require.NotNil(t, u.BanReason)

	require.NoError(t, s.UnbanUser(ctx, "u1"))
	assert.ErrorIs(t, s.UnbanUser(ctx, "u1"), apperr.ErrStale)
	u, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, u.IsBanned)
	assert.Nil(t, u.BanReason)
}

func TestToggleUpvote(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	seedMaterial(t, s, "m1")

	up, total, err := s.ToggleUpvote(ctx, "m1", "u1")
	require.NoError(t, err)
	assert.True(t, up)
	assert.Equal(t, 1, total)

	up, total, err = s.ToggleUpvote(ctx, "m1", "u1")
	require.NoError(t, err)
	assert.False(t, up)
	assert.Equal(t, 0, total)

	_, _, err = s.ToggleUpvote(ctx, "nope", "u1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestNotificationsIdempotentInsertAndMarkSeen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	n := &model.Notification{ID: "n1", UserID: "u1", Message: "hello"}
	require.NoError(t, s.InsertNotification(ctx, n))
	require.NoError(t, s.InsertNotification(ctx, n))

	list, err := s.ListNotifications(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	changed, err := s.MarkNotificationsSeen(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)
	changed, err = s.MarkNotificationsSeen(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestMemoryBlobsDeleteIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	b := NewMemoryBlobs()
	require.NoError(t, b.Put(ctx, "k", strings.NewReader("abc"), 3, "text/plain"))
	assert.True(t, b.Has("k"))
	require.NoError(t, b.Delete(ctx, "k"))
	require.NoError(t, b.Delete(ctx, "k"))
	assert.Zero(t, b.Len())
}

func TestCreateReportCooldownWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStore()
	seedMaterial(t, s, "m1")
	seedMaterial(t, s, "m2")
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateReport(ctx, &model.Report{ID: "r1", MaterialKey: "m1", ReporterID: "u1", CreatedAt: at}, at.Add(-time.Minute)))

	err := s.CreateReport(ctx, &model.Report{ID: "r2", MaterialKey: "m2", ReporterID: "u1", CreatedAt: at.Add(time.Second)}, at.Add(-time.Minute))
	assert.ErrorIs(t, err, apperr.ErrStale)

	assert.NoError(t, s.CreateReport(ctx, &model.Report{ID: "r3", MaterialKey: "m2", ReporterID: "u2", CreatedAt: at}, at.Add(-time.Minute)))
	assert.NoError(t, s.CreateReport(ctx, &model.Report{ID: "r4", MaterialKey: "m2", ReporterID: "u1", CreatedAt: at.Add(2 * time.Minute)}, at))
}

func TestListUsersEmptyIsNotNil(t *testing.T) {
	t.Parallel()
	users, err := NewMemoryStore().ListUsers(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, users)
	assert.Empty(t, users)
}
