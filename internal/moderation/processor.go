// Package moderation is the Moderation Action Processor. A report moves from
// pending to accepted or rejected exactly once; the conditional datastore
// write is the linearization point, so a losing concurrent caller never
// reaches the deletion or notification side effects.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/mindstash/internal/access"
	"github.com/dharsanguruparan/mindstash/internal/apperr"
	"github.com/dharsanguruparan/mindstash/internal/material"
	"github.com/dharsanguruparan/mindstash/internal/metrics"
	"github.com/dharsanguruparan/mindstash/internal/model"
	"github.com/dharsanguruparan/mindstash/internal/notify"
	"github.com/dharsanguruparan/mindstash/internal/rules"
)

const maxCommentLen = 500

var errAlreadyResolved = apperr.Conflict("already_resolved", "this report has already been reviewed")

// Decision is a moderator's verdict on a report.
type Decision string

const (
	Accept Decision = "accept"
	Reject Decision = "reject"
)

func (d Decision) status() (model.ReportStatus, bool) {
	switch d {
	case Accept:
		return model.ReportAccepted, true
	case Reject:
		return model.ReportRejected, true
	default:
		return "", false
	}
}

// Store is the datastore surface the processor needs.
type Store interface {
	GetReport(ctx context.Context, id string) (*model.Report, error)
	ResolveReport(ctx context.Context, id string, status model.ReportStatus, reviewerID string, comment *string) (*model.Report, error)
}

// Destroyer is the Material Lifecycle Manager's destroy operation.
type Destroyer interface {
	Destroy(ctx context.Context, actor access.Actor, req material.DestroyRequest) error
}

// Processor executes moderator decisions.
type Processor struct {
	store     Store
	materials Destroyer
	notifier  notify.Dispatcher
}

// NewProcessor constructs a Processor.
func NewProcessor(store Store, materials Destroyer, notifier notify.Dispatcher) *Processor {
	return &Processor{store: store, materials: materials, notifier: notifier}
}

// ResolveInput is the review request body.
type ResolveInput struct {
	Action  Decision `json:"action"`
	Comment *string  `json:"comment,omitempty"`
}

// Resolve records the decision and then runs its side effects. On accept the
// material is destroyed if it still exists; a destroy failure is logged and
// leaves the decision in place. The reporter is notified either way.
func (p *Processor) Resolve(ctx context.Context, actor access.Actor, reportID string, in ResolveInput) (*model.Report, error) {
	if err := access.Check(actor, access.Moderator); err != nil {
		return nil, err
	}
	status, ok := in.Action.status()
	if !ok {
		return nil, apperr.Validation("invalid_action", "action must be accept or reject")
	}
	comment, err := normalizeComment(in.Comment)
	if err != nil {
		return nil, err
	}

	current, err := p.store.GetReport(ctx, reportID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.NotFound("report_not_found", "report not found").Wrap(err)
	}
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	if current.Status.Terminal() {
		return nil, errAlreadyResolved
	}

	resolved, err := p.store.ResolveReport(ctx, reportID, status, actor.UserID, comment)
	switch {
	case errors.Is(err, apperr.ErrStale):
		return nil, errAlreadyResolved.Wrap(err)
	case errors.Is(err, apperr.ErrNotFound):
		return nil, apperr.NotFound("report_not_found", "report not found").Wrap(err)
	case err != nil:
		return nil, fmt.Errorf("resolve report: %w", err)
	}

	fields := log.Fields{"report_id": resolved.ID, "material_id": resolved.MaterialKey, "user_id": actor.UserID}
	metrics.ReportsResolved.WithLabelValues(string(in.Action)).Inc()
	log.WithFields(fields).WithField("decision", in.Action).Info("report resolved")

	if in.Action == Accept {
		p.removeReported(ctx, actor, resolved, fields)
	}

	p.notifier.Notify(ctx, resolved.ReporterID, outcomeMessage(resolved), resolved.MaterialID)
	return resolved, nil
}

func (p *Processor) removeReported(ctx context.Context, actor access.Actor, r *model.Report, fields log.Fields) {
	if r.MaterialID == nil {
		log.WithFields(fields).Info("material already deleted, nothing to remove")
		return
	}
	err := p.materials.Destroy(ctx, actor, material.DestroyRequest{
		MaterialID:  *r.MaterialID,
		AsModerator: true,
		RuleIDs:     r.BrokenRuleIDs,
		Path:        material.PathReport,
	})
	switch {
	case err == nil:
	case apperr.Is(err, apperr.KindNotFound):
		log.WithFields(fields).Info("material already deleted, nothing to remove")
	default:
		log.WithError(err).WithFields(fields).Warn("removal after accepted report failed; decision kept")
	}
}

func outcomeMessage(r *model.Report) string {
	msg := fmt.Sprintf("Your report on %q was %s by a moderator.", r.Snapshot.Title, r.Status)
	if r.ModeratorComment != nil {
		msg += " Comment: " + *r.ModeratorComment
	}
	return msg
}

func normalizeComment(c *string) (*string, error) {
	if c == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*c)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > maxCommentLen {
		return nil, apperr.Validation("invalid_comment", fmt.Sprintf("comment must be at most %d characters", maxCommentLen))
	}
	return &trimmed, nil
}

// RemoveDirect destroys a material without a report, citing the broken
// rules to the uploader. No report record is created.
func (p *Processor) RemoveDirect(ctx context.Context, actor access.Actor, materialID string, ruleIDs []string) error {
	if err := access.Check(actor, access.Moderator); err != nil {
		return err
	}
	cited, err := rules.Validate(ruleIDs)
	if err != nil {
		return err
	}
	if err := p.materials.Destroy(ctx, actor, material.DestroyRequest{
		MaterialID:  materialID,
		AsModerator: true,
		RuleIDs:     cited,
		Path:        material.PathDirect,
	}); err != nil {
		return err
	}
	log.WithFields(log.Fields{"material_id": materialID, "user_id": actor.UserID, "rules": cited}).Info("material removed directly")
	return nil
}
