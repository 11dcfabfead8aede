// Package report is the Report Engine: it accepts reports against materials
// and serves the reporter and moderator read paths. Pair uniqueness is left to
// the datastore's unique constraint; the pre-insert probe only gives the
// common case a friendly error.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/mindstash/internal/access"
	"github.com/dharsanguruparan/mindstash/internal/apperr"
	"github.com/dharsanguruparan/mindstash/internal/metrics"
	"github.com/dharsanguruparan/mindstash/internal/model"
	"github.com/dharsanguruparan/mindstash/internal/rules"
)

const (
	maxReasonLen    = 200
	DefaultCooldown = 180 * time.Second
)

var errDuplicate = apperr.Conflict("duplicate_report", "you have already reported this material")

// Store is the datastore surface the engine needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetMaterial(ctx context.Context, id string) (*model.Material, error)
	CreateReport(ctx context.Context, r *model.Report, since time.Time) error
	HasReport(ctx context.Context, materialKey, reporterID string) (bool, error)
	LastReportAt(ctx context.Context, reporterID string) (time.Time, bool, error)
	ListReportsByReporter(ctx context.Context, reporterID string) ([]model.Report, error)
	ListReportsByStatus(ctx context.Context, status *model.ReportStatus, excludeDeleted bool) ([]model.Report, error)
}

// Engine accepts and lists reports.
type Engine struct {
	store    Store
	cooldown time.Duration
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithCooldown sets the minimum gap between two reports by the same user.
// Zero disables the limit.
func WithCooldown(d time.Duration) Option {
	return func(e *Engine) { e.cooldown = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine constructs an Engine.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		cooldown: DefaultCooldown,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SubmitInput is the report request body.
type SubmitInput struct {
	MaterialID    string   `json:"materialId"`
	Reason        string   `json:"reason"`
	BrokenRuleIDs []string `json:"brokenRuleIds"`
}

// Submit files a pending report. Checks run in a fixed order: material
// exists, not self-report, not a duplicate, cooldown elapsed, reason, rules.
func (e *Engine) Submit(ctx context.Context, actor access.Actor, in SubmitInput) (*model.Report, error) {
	if err := access.Check(actor, access.Member); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.MaterialID) == "" {
		return nil, apperr.Validation("material_required", "materialId is required")
	}

	mat, err := e.store.GetMaterial(ctx, in.MaterialID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("material_not_found", "material not found").Wrap(err)
	}
	if err != nil {
		return nil, fmt.Errorf("load material: %w", err)
	}
	if mat.UploaderID == actor.UserID {
		return nil, apperr.Validation("self_report", "you cannot report your own material")
	}

	exists, err := e.store.HasReport(ctx, mat.ID, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("probe report: %w", err)
	}
	if exists {
		return nil, errDuplicate
	}

	now := e.now()
	if err := e.checkCooldown(ctx, actor.UserID, now); err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(in.Reason)
	if reason == "" || utf8.RuneCountInString(reason) > maxReasonLen {
		return nil, apperr.Validation("invalid_reason", fmt.Sprintf("reason must be 1-%d characters", maxReasonLen))
	}
	ruleIDs, err := rules.Validate(in.BrokenRuleIDs)
	if err != nil {
		return nil, err
	}

	materialID := mat.ID
	r := &model.Report{
		ID:          uuid.NewString(),
		MaterialKey: mat.ID,
		MaterialID:  &materialID,
		Snapshot: model.MaterialSnapshot{
			Title:        mat.Title,
			Program:      mat.Program,
			Branch:       mat.Branch,
			Semester:     mat.Semester,
			UploaderID:   mat.UploaderID,
			UploaderName: e.uploaderName(ctx, mat.UploaderID),
		},
		ReporterID:    actor.UserID,
		Reason:        reason,
		BrokenRuleIDs: ruleIDs,
		Status:        model.ReportPending,
		CreatedAt:     now,
	}
	var since time.Time
	if e.cooldown > 0 {
		since = now.Add(-e.cooldown)
	}
	if err := e.store.CreateReport(ctx, r, since); err != nil {
		if errors.Is(err, apperr.ErrDuplicate) {
			return nil, errDuplicate.Wrap(err)
		}
		if errors.Is(err, apperr.ErrStale) {
			// a concurrent submit by the same reporter won
			if cerr := e.checkCooldown(ctx, actor.UserID, now); cerr != nil {
				return nil, cerr
			}
			return nil, apperr.RateLimit("report_cooldown", "please wait before submitting another report").After(e.cooldown).Wrap(err)
		}
		return nil, fmt.Errorf("create report: %w", err)
	}

	metrics.ReportsSubmitted.Inc()
	log.WithFields(log.Fields{
		"report_id":   r.ID,
		"material_id": mat.ID,
		"user_id":     actor.UserID,
	}).Info("report submitted")
	return r, nil
}

// checkCooldown returns a rate-limit error carrying the remaining wait when
// the reporter's last report is younger than the cooldown.
func (e *Engine) checkCooldown(ctx context.Context, reporterID string, now time.Time) error {
	if e.cooldown <= 0 {
		return nil
	}
	last, ok, err := e.store.LastReportAt(ctx, reporterID)
	if err != nil {
		return fmt.Errorf("last report: %w", err)
	}
	if !ok {
		return nil
	}
	wait := e.cooldown - now.Sub(last)
	if wait <= 0 {
		return nil
	}
	return apperr.RateLimit("report_cooldown",
		fmt.Sprintf("please wait %d seconds before submitting another report", int(wait.Round(time.Second).Seconds()))).After(wait)
}

func (e *Engine) uploaderName(ctx context.Context, id string) string {
	u, err := e.store.GetUser(ctx, id)
	if err != nil {
		log.WithError(err).WithField("user_id", id).Debug("uploader lookup failed for snapshot")
		return ""
	}
	return u.Name
}

// View is a report as returned by the read paths.
type View struct {
	model.Report
	IsMaterialDeleted bool `json:"isMaterialDeleted"`
}

func views(list []model.Report) []View {
	out := make([]View, 0, len(list))
	for _, r := range list {
		out = append(out, View{Report: r, IsMaterialDeleted: r.MaterialDeleted()})
	}
	return out
}

// MyReports lists the actor's reports, newest first.
func (e *Engine) MyReports(ctx context.Context, actor access.Actor) ([]View, error) {
	if err := access.Check(actor, access.Reader); err != nil {
		return nil, err
	}
	list, err := e.store.ListReportsByReporter(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return views(list), nil
}

// Queue lists reports for moderators. status is pending, accepted, rejected
// or all; empty means pending. Pending reports whose material is gone are
// not actionable and are left out.
func (e *Engine) Queue(ctx context.Context, actor access.Actor, status string) ([]View, error) {
	if err := access.Check(actor, access.Moderator); err != nil {
		return nil, err
	}
	var filter *model.ReportStatus
	switch model.ReportStatus(status) {
	case "", model.ReportPending:
		s := model.ReportPending
		filter = &s
	case model.ReportAccepted, model.ReportRejected:
		s := model.ReportStatus(status)
		filter = &s
	case "all":
	default:
		return nil, apperr.Validation("invalid_status", "status must be pending, accepted, rejected or all")
	}
	excludeDeleted := filter != nil && *filter == model.ReportPending
	list, err := e.store.ListReportsByStatus(ctx, filter, excludeDeleted)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return views(list), nil
}
