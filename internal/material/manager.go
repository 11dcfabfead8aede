// Package material is the Material Lifecycle Manager. It owns creation and
// destruction of material records and keeps each record and its blob in step:
// create uploads first and compensates on a failed persist, destroy deletes the
// blob first and only then the record.
package material

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/mindstash/internal/access"
	"github.com/dharsanguruparan/mindstash/internal/apperr"
	"github.com/dharsanguruparan/mindstash/internal/metrics"
	"github.com/dharsanguruparan/mindstash/internal/model"
	"github.com/dharsanguruparan/mindstash/internal/notify"
	pdfutil "github.com/dharsanguruparan/mindstash/internal/pdf"
	"github.com/dharsanguruparan/mindstash/internal/rules"
)

const (
	maxTitleLen       = 100
	maxDescriptionLen = 300

	defaultBlobTimeout = 15 * time.Second
	defaultMaxFileSize = 10 << 20
)

// Store is the datastore surface the manager needs.
type Store interface {
	CreateMaterial(ctx context.Context, m *model.Material) error
	GetMaterial(ctx context.Context, id string) (*model.Material, error)
	DeleteMaterial(ctx context.Context, id string) error
	ToggleUpvote(ctx context.Context, materialID, userID string) (bool, int, error)
}

// Blobs is the Blob Store Adapter. Delete must be idempotent.
type Blobs interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}

// OrphanEnqueuer schedules out-of-band deletion of a blob whose compensation
// failed.
type OrphanEnqueuer interface {
	EnqueueOrphan(ctx context.Context, materialID, fileRef string) error
}

// Options tune the manager. Zero values fall back to defaults.
type Options struct {
	MaxFileSize int64
	BlobTimeout time.Duration
	Cleanup     OrphanEnqueuer
}

// Manager orchestrates the material saga.
type Manager struct {
	store       Store
	blobs       Blobs
	notifier    notify.Dispatcher
	cleanup     OrphanEnqueuer
	maxFileSize int64
	blobTimeout time.Duration
}

// NewManager constructs a Manager.
func NewManager(store Store, blobs Blobs, notifier notify.Dispatcher, opts Options) *Manager {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaultMaxFileSize
	}
	if opts.BlobTimeout <= 0 {
		opts.BlobTimeout = defaultBlobTimeout
	}
	return &Manager{
		store:       store,
		blobs:       blobs,
		notifier:    notifier,
		cleanup:     opts.Cleanup,
		maxFileSize: opts.MaxFileSize,
		blobTimeout: opts.BlobTimeout,
	}
}

// CreateInput is an upload request. MIME must be the server-sniffed type.
// The academic placement comes from the uploader's profile.
type CreateInput struct {
	Title       string
	Description string
	Data        []byte
	MIME        string
}

// Create validates the upload, stores the blob, then persists the record.
// A persist failure triggers a compensating blob delete.
func (m *Manager) Create(ctx context.Context, actor access.Actor, in CreateInput) (*model.Material, error) {
	if err := access.Check(actor, access.Member); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	kind, err := m.validate(actor, title, description, in)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	mat := &model.Material{
		ID:          id,
		Title:       title,
		Description: description,
		FileRef:     fileRef(id, kind, in.MIME),
		FileKind:    kind,
		Program:     actor.Program,
		Branch:      actor.Branch,
		Semester:    actor.Semester,
		UploaderID:  actor.UserID,
		UpvoterIDs:  []string{},
		CreatedAt:   time.Now().UTC(),
	}
	fields := log.Fields{"material_id": id, "file_ref": mat.FileRef, "user_id": actor.UserID}

	if err := m.put(ctx, mat.FileRef, in.Data, in.MIME); err != nil {
		log.WithError(err).WithFields(fields).Error("blob upload failed")
		return nil, apperr.External("blob_upload_failed", "file upload failed").Wrap(err)
	}

	if err := m.store.CreateMaterial(ctx, mat); err != nil {
		log.WithError(err).WithFields(fields).Error("persist material failed, compensating")
		m.compensate(ctx, mat)
		return nil, apperr.Internal("material_persist_failed", "could not save material").Wrap(err)
	}

	log.WithFields(fields).Info("material created")
	return mat, nil
}

func (m *Manager) validate(actor access.Actor, title, description string, in CreateInput) (model.FileKind, error) {
	if title == "" || utf8.RuneCountInString(title) > maxTitleLen {
		return "", apperr.Validation("invalid_title", fmt.Sprintf("title must be 1-%d characters", maxTitleLen))
	}
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return "", apperr.Validation("invalid_description", fmt.Sprintf("description must be at most %d characters", maxDescriptionLen))
	}
	if len(in.Data) == 0 {
		return "", apperr.Validation("file_required", "a file is required")
	}
	if int64(len(in.Data)) > m.maxFileSize {
		return "", apperr.Validation("file_too_large", fmt.Sprintf("file exceeds %d bytes", m.maxFileSize))
	}
	kind, ok := model.FileKindForMIME(in.MIME)
	if !ok {
		return "", apperr.Validation("unsupported_file_type", "only PDF, PNG and JPEG files are allowed")
	}
	if kind == model.FileKindPDF {
		if _, err := pdfutil.PageCount(in.Data); err != nil {
			return "", apperr.Validation("invalid_pdf", "the PDF could not be read").Wrap(err)
		}
	}
	if err := model.ValidateAcademic(actor.Program, actor.Branch, actor.Semester); err != nil {
		return "", apperr.Validation("invalid_academic_profile", err.Error())
	}
	return kind, nil
}

func (m *Manager) put(ctx context.Context, key string, data []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, m.blobTimeout)
	defer cancel()
	err := m.blobs.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	metrics.BlobOperations.WithLabelValues("put", metrics.Result(err)).Inc()
	return err
}

func (m *Manager) remove(ctx context.Context, key, op string) error {
	ctx, cancel := context.WithTimeout(ctx, m.blobTimeout)
	defer cancel()
	err := m.blobs.Delete(ctx, key)
	metrics.BlobOperations.WithLabelValues(op, metrics.Result(err)).Inc()
	return err
}

// compensate deletes the blob of a material whose record was never written.
// It runs detached from the request's cancellation; its own failure is logged
// and handed to the cleanup queue, never retried inline.
func (m *Manager) compensate(ctx context.Context, mat *model.Material) {
	ctx = context.WithoutCancel(ctx)
	fields := log.Fields{"material_id": mat.ID, "file_ref": mat.FileRef}

	err := m.remove(ctx, mat.FileRef, "compensate")
	metrics.Compensations.WithLabelValues(metrics.Result(err)).Inc()
	if err == nil {
		log.WithFields(fields).Info("compensating blob delete succeeded")
		return
	}
	log.WithError(err).WithFields(fields).WithField("orphan", true).Error("compensating blob delete failed")
	if m.cleanup == nil {
		return
	}
	if err := m.cleanup.EnqueueOrphan(ctx, mat.ID, mat.FileRef); err != nil {
		log.WithError(err).WithFields(fields).WithField("orphan", true).Error("enqueue orphan cleanup failed")
	}
}

// Removal paths, used as the materials_removed_total label.
const (
	PathOwner  = "owner"
	PathReport = "report"
	PathDirect = "direct"
)

// DestroyRequest names a material to destroy. A non-moderator request must
// come from the uploader. RuleIDs are cited to the uploader on a moderator
// removal.
type DestroyRequest struct {
	MaterialID  string
	AsModerator bool
	RuleIDs     []string
	Path        string
}

// Destroy deletes the blob and then the record. When the blob delete fails the
// record is left untouched and an External error is returned.
func (m *Manager) Destroy(ctx context.Context, actor access.Actor, req DestroyRequest) error {
	gate := access.Member
	if req.AsModerator {
		gate = access.Moderator
	}
	if err := access.Check(actor, gate); err != nil {
		return err
	}

	mat, err := m.store.GetMaterial(ctx, req.MaterialID)
	if errors.Is(err, apperr.ErrNotFound) {
		return apperr.NotFound("material_not_found", "material not found").Wrap(err)
	}
	if err != nil {
		return fmt.Errorf("load material: %w", err)
	}
	if !req.AsModerator && mat.UploaderID != actor.UserID {
		return apperr.Authorization("not_owner", "you can only delete your own materials")
	}

	fields := log.Fields{"material_id": mat.ID, "file_ref": mat.FileRef, "user_id": actor.UserID}
	if err := m.remove(ctx, mat.FileRef, "delete"); err != nil {
		log.WithError(err).WithFields(fields).Error("blob delete failed, material kept")
		return apperr.External("blob_delete_failed", "could not delete the file; material was kept").Wrap(err)
	}

	// the blob is gone, so the record delete must not be abandoned with the request
	if err := m.store.DeleteMaterial(context.WithoutCancel(ctx), mat.ID); err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			log.WithError(err).WithFields(fields).Error("delete material record failed after blob delete")
			return apperr.Internal("material_delete_failed", "could not delete material").Wrap(err)
		}
		// a concurrent destroy removed the record first
		log.WithFields(fields).Info("material already deleted")
		return nil
	}

	path := req.Path
	if path == "" {
		path = PathOwner
	}
	metrics.MaterialsRemoved.WithLabelValues(path).Inc()
	log.WithFields(fields).WithField("path", path).Info("material destroyed")

	if req.AsModerator {
		m.notifier.Notify(ctx, mat.UploaderID, removalMessage(mat.Title, req.RuleIDs), &mat.ID)
	}
	return nil
}

func removalMessage(title string, ruleIDs []string) string {
	if len(ruleIDs) == 0 {
		return fmt.Sprintf("Your material %q was removed by a moderator.", title)
	}
	return fmt.Sprintf("Your material %q was removed by a moderator for violating: %s.", title, rules.Describe(ruleIDs))
}

// UpvoteResult is the state after a toggle.
type UpvoteResult struct {
	Upvoted      bool `json:"upvoted"`
	TotalUpvotes int  `json:"totalUpvotes"`
}

// ToggleUpvote adds the actor's upvote, or removes it if present.
func (m *Manager) ToggleUpvote(ctx context.Context, actor access.Actor, materialID string) (UpvoteResult, error) {
	if err := access.Check(actor, access.Member); err != nil {
		return UpvoteResult{}, err
	}
	upvoted, total, err := m.store.ToggleUpvote(ctx, materialID, actor.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		return UpvoteResult{}, apperr.NotFound("material_not_found", "material not found").Wrap(err)
	}
	if err != nil {
		return UpvoteResult{}, fmt.Errorf("toggle upvote: %w", err)
	}
	return UpvoteResult{Upvoted: upvoted, TotalUpvotes: total}, nil
}

func fileRef(id string, kind model.FileKind, mime string) string {
	ext := ".pdf"
	if kind == model.FileKindImage {
		ext = ".jpg"
		if mime == "image/png" {
			ext = ".png"
		}
	}
	return "materials/" + id + ext
}
