package material

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/mindstash/internal/access"
	"github.com/dharsanguruparan/mindstash/internal/apperr"
	"github.com/dharsanguruparan/mindstash/internal/model"
	"github.com/dharsanguruparan/mindstash/internal/storage"
)

type faultyStore struct {
	*storage.MemoryStore
	createErr error
}

func (f *faultyStore) CreateMaterial(ctx context.Context, m *model.Material) error {
	if f.createErr != nil {
		return f.createErr
	}
	return f.MemoryStore.CreateMaterial(ctx, m)
}

func (f *faultyStore) DeleteMaterial(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.MemoryStore.DeleteMaterial(ctx, id)
}

type faultyBlobs struct {
	*storage.MemoryBlobs
	putErr    error
	deleteErr error
	putDelay  time.Duration
	onDelete  func()
}

func (f *faultyBlobs) Put(ctx context.Context, key string, r io.Reader, size int64, ct string) error {
	if f.putDelay > 0 {
		select {
		case <-time.After(f.putDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.putErr != nil {
		return f.putErr
	}
	return f.MemoryBlobs.Put(ctx, key, r, size, ct)
}

func (f *faultyBlobs) Delete(ctx context.Context, key string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if f.onDelete != nil {
		defer f.onDelete()
	}
	return f.MemoryBlobs.Delete(ctx, key)
}

type sent struct {
	userID  string
	message string
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) Notify(_ context.Context, userID, message string, _ *string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{userID: userID, message: message})
}

type orphanQueue struct {
	refs []string
}

func (o *orphanQueue) EnqueueOrphan(_ context.Context, _ string, fileRef string) error {
	o.refs = append(o.refs, fileRef)
	return nil
}

type fixture struct {
	store   *faultyStore
	blobs   *faultyBlobs
	notes   *recorder
	orphans *orphanQueue
	mgr     *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   &faultyStore{MemoryStore: storage.NewMemoryStore()},
		blobs:   &faultyBlobs{MemoryBlobs: storage.NewMemoryBlobs()},
		notes:   &recorder{},
		orphans: &orphanQueue{},
	}
	f.mgr = NewManager(f.store, f.blobs, f.notes, Options{
		MaxFileSize: 1024,
		BlobTimeout: 200 * time.Millisecond,
		Cleanup:     f.orphans,
	})
	return f
}

func member(id string) access.Actor {
	return access.Actor{UserID: id, Role: model.RoleUser, ProfileCompleted: true, Program: "B.Tech", Branch: "CSE", Semester: 3}
}

func moderator(id string) access.Actor {
	a := member(id)
	a.Role = model.RoleModerator
	return a
}

func pngInput(title string) CreateInput {
	return CreateInput{Title: title, Description: "unit 1", Data: []byte("\x89PNG fake"), MIME: "image/png"}
}

func TestCreateStoresBlobAndRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	m, err := f.mgr.Create(ctx, member("alice"), pngInput("  Graphs  "))
	require.NoError(t, err)

	assert.Equal(t, "Graphs", m.Title)
	assert.Equal(t, model.FileKindImage, m.FileKind)
	assert.Equal(t, "B.Tech", m.Program)
	assert.Equal(t, "alice", m.UploaderID)
	assert.True(t, strings.HasSuffix(m.FileRef, ".png"))
	assert.True(t, f.blobs.Has(m.FileRef))

	got, err := f.store.GetMaterial(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.FileRef, got.FileRef)
}

func TestCreateValidatesBeforeUpload(t *testing.T) {
	cases := []struct {
		name  string
		actor access.Actor
		in    CreateInput
		code  string
	}{
		{"empty title", member("a"), pngInput("   "), "invalid_title"},
		{"long title", member("a"), pngInput(strings.Repeat("t", 101)), "invalid_title"},
		{"long description", member("a"), CreateInput{Title: "x", Description: strings.Repeat("d", 301), Data: []byte("x"), MIME: "image/png"}, "invalid_description"},
		{"no file", member("a"), CreateInput{Title: "x", MIME: "image/png"}, "file_required"},
		{"too large", member("a"), CreateInput{Title: "x", Data: make([]byte, 1025), MIME: "image/png"}, "file_too_large"},
		{"bad type", member("a"), CreateInput{Title: "x", Data: []byte("x"), MIME: "text/plain"}, "unsupported_file_type"},
		{"broken pdf", member("a"), CreateInput{Title: "x", Data: []byte("%PDF-1.4 truncated"), MIME: "application/pdf"}, "invalid_pdf"},
		{"bad semester", access.Actor{UserID: "a", ProfileCompleted: true, Program: "MBA", Branch: "General", Semester: 6}, pngInput("x"), "invalid_academic_profile"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.mgr.Create(context.Background(), tc.actor, tc.in)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
			assert.Equal(t, tc.code, apperr.CodeOf(err))
			assert.Zero(t, f.blobs.Len())
		})
	}
}

func TestCreateCompensatesWhenPersistFails(t *testing.T) {
	f := newFixture(t)
	f.store.createErr = errors.New("connection reset")

	_, err := f.mgr.Create(context.Background(), member("alice"), pngInput("Graphs"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	assert.Zero(t, f.blobs.Len())
	assert.Empty(t, f.orphans.refs)
}

func TestCreateCompensationFailureQueuesOrphan(t *testing.T) {
	f := newFixture(t)
	f.store.createErr = errors.New("connection reset")
	f.blobs.deleteErr = errors.New("s3 unreachable")

	_, err := f.mgr.Create(context.Background(), member("alice"), pngInput("Graphs"))
	require.Error(t, err)
	assert.Equal(t, "material_persist_failed", apperr.CodeOf(err))
	assert.ErrorContains(t, err, "connection reset")

	require.Len(t, f.orphans.refs, 1)
	assert.True(t, f.blobs.Has(f.orphans.refs[0]))
}

func TestCreateUploadTimeoutCreatesNothing(t *testing.T) {
	f := newFixture(t)
	f.blobs.putDelay = time.Second

	_, err := f.mgr.Create(context.Background(), member("alice"), pngInput("Graphs"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindExternal, apperr.KindOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, f.blobs.Len())
}

func TestDestroyKeepsRecordWhenBlobDeleteFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m, err := f.mgr.Create(ctx, member("alice"), pngInput("Graphs"))
	require.NoError(t, err)

	f.blobs.deleteErr = errors.New("s3 unreachable")
	err = f.mgr.Destroy(ctx, member("alice"), DestroyRequest{MaterialID: m.ID})
	require.Error(t, err)
	assert.Equal(t, apperr.KindExternal, apperr.KindOf(err))

	_, err = f.store.GetMaterial(ctx, m.ID)
	assert.NoError(t, err)
	assert.True(t, f.blobs.Has(m.FileRef))
}

func TestDestroyByOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m, err := f.mgr.Create(ctx, member("alice"), pngInput("Graphs"))
	require.NoError(t, err)

	err = f.mgr.Destroy(ctx, member("bob"), DestroyRequest{MaterialID: m.ID})
	assert.Equal(t, "not_owner", apperr.CodeOf(err))
	assert.Equal(t, apperr.KindAuthorization, apperr.KindOf(err))

	require.NoError(t, f.mgr.Destroy(ctx, member("alice"), DestroyRequest{MaterialID: m.ID}))
	_, err = f.store.GetMaterial(ctx, m.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.False(t, f.blobs.Has(m.FileRef))
	assert.Empty(t, f.notes.sent)

	err = f.mgr.Destroy(ctx, member("alice"), DestroyRequest{MaterialID: m.ID})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestDestroyFinishesAfterCallerCancels(t *testing.T) {
	f := newFixture(t)
	m, err := f.mgr.Create(context.Background(), member("alice"), pngInput("Graphs"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.blobs.onDelete = cancel

	require.NoError(t, f.mgr.Destroy(ctx, member("alice"), DestroyRequest{MaterialID: m.ID}))
	assert.False(t, f.blobs.Has(m.FileRef))
	_, err = f.store.GetMaterial(context.Background(), m.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestModeratorDestroyNotifiesUploader(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m, err := f.mgr.Create(ctx, member("alice"), pngInput("Graphs"))
	require.NoError(t, err)

	err = f.mgr.Destroy(ctx, member("bob"), DestroyRequest{MaterialID: m.ID, AsModerator: true})
	assert.ErrorIs(t, err, access.ErrRoleRequired)

	require.NoError(t, f.mgr.Destroy(ctx, moderator("mod"), DestroyRequest{
		MaterialID:  m.ID,
		AsModerator: true,
		RuleIDs:     []string{"no_nsfw"},
		Path:        PathDirect,
	}))
	require.Len(t, f.notes.sent, 1)
	assert.Equal(t, "alice", f.notes.sent[0].userID)
	assert.Contains(t, f.notes.sent[0].message, "no_nsfw")
	assert.Contains(t, f.notes.sent[0].message, "Graphs")
}

func TestBannedActorLosesWritePaths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m, err := f.mgr.Create(ctx, member("alice"), pngInput("Graphs"))
	require.NoError(t, err)
	_, err = f.mgr.ToggleUpvote(ctx, member("bob"), m.ID)
	require.NoError(t, err)

	banned := member("bob")
	banned.IsBanned = true

	_, err = f.mgr.Create(ctx, banned, pngInput("Trees"))
	assert.ErrorIs(t, err, access.ErrBanned)
	_, err = f.mgr.ToggleUpvote(ctx, banned, m.ID)
	assert.ErrorIs(t, err, access.ErrBanned)
	assert.Equal(t, 1, f.blobs.Len())
}

func TestToggleUpvote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m, err := f.mgr.Create(ctx, member("alice"), pngInput("Graphs"))
	require.NoError(t, err)

	res, err := f.mgr.ToggleUpvote(ctx, member("bob"), m.ID)
	require.NoError(t, err)
	assert.Equal(t, UpvoteResult{Upvoted: true, TotalUpvotes: 1}, res)

	res, err = f.mgr.ToggleUpvote(ctx, member("bob"), m.ID)
	require.NoError(t, err)
	assert.Equal(t, UpvoteResult{Upvoted: false, TotalUpvotes: 0}, res)

	_, err = f.mgr.ToggleUpvote(ctx, member("bob"), "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
