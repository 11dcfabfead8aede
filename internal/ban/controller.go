// Package ban is the Ban Cascade Controller. The user's is_banned flag is the
// only state it writes; the Access Gate reads that flag on every request, so a
// ban takes effect on the target's next request.
package ban

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/mindstash/internal/access"
	"github.com/dharsanguruparan/mindstash/internal/apperr"
	"github.com/dharsanguruparan/mindstash/internal/metrics"
	"github.com/dharsanguruparan/mindstash/internal/model"
	"github.com/dharsanguruparan/mindstash/internal/notify"
)

const (
	minReasonLen = 10
	maxReasonLen = 300
)

var (
	errUserNotFound  = apperr.NotFound("user_not_found", "user not found")
	errTargetIsMod   = apperr.Validation("target_is_moderator", "moderators cannot be banned")
	errAlreadyBanned = apperr.Conflict("already_banned", "user is already banned")
	errNotBanned     = apperr.Conflict("not_banned", "user is not banned")
)

// Store is the datastore surface the controller needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	BanUser(ctx context.Context, id, reason string) error
	UnbanUser(ctx context.Context, id string) error
}

// Controller bans and unbans users.
type Controller struct {
	store    Store
	notifier notify.Dispatcher
}

// NewController constructs a Controller.
func NewController(store Store, notifier notify.Dispatcher) *Controller {
	return &Controller{store: store, notifier: notifier}
}

// Ban flags target as banned with reason.
func (c *Controller) Ban(ctx context.Context, actor access.Actor, targetID, reason string) error {
	if err := access.Check(actor, access.Moderator); err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)
	if n := utf8.RuneCountInString(reason); n < minReasonLen || n > maxReasonLen {
		return apperr.Validation("invalid_ban_reason",
			fmt.Sprintf("ban reason must be %d-%d characters", minReasonLen, maxReasonLen))
	}

	target, err := c.load(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Role == model.RoleModerator {
		return errTargetIsMod
	}
	if target.IsBanned {
		return errAlreadyBanned
	}

	if err := c.store.BanUser(ctx, targetID, reason); err != nil {
		return c.classify(ctx, targetID, err, true)
	}

	metrics.Bans.WithLabelValues("ban").Inc()
	log.WithFields(log.Fields{"user_id": targetID, "moderator_id": actor.UserID}).Info("user banned")
	c.notifier.Notify(ctx, targetID, "Your account has been banned. Reason: "+reason, nil)
	return nil
}

// Unban clears the ban flag.
func (c *Controller) Unban(ctx context.Context, actor access.Actor, targetID string) error {
	if err := access.Check(actor, access.Moderator); err != nil {
		return err
	}
	target, err := c.load(ctx, targetID)
	if err != nil {
		return err
	}
	if !target.IsBanned {
		return errNotBanned
	}

	if err := c.store.UnbanUser(ctx, targetID); err != nil {
		return c.classify(ctx, targetID, err, false)
	}

	metrics.Bans.WithLabelValues("unban").Inc()
	log.WithFields(log.Fields{"user_id": targetID, "moderator_id": actor.UserID}).Info("user unbanned")
	c.notifier.Notify(ctx, targetID, "Your account has been restored. You can upload, report and vote again.", nil)
	return nil
}

// ListUsers returns every user with role and ban state for the moderator
// dashboard.
func (c *Controller) ListUsers(ctx context.Context, actor access.Actor) ([]model.User, error) {
	if err := access.Check(actor, access.Moderator); err != nil {
		return nil, err
	}
	return c.store.ListUsers(ctx)
}

func (c *Controller) load(ctx context.Context, id string) (*model.User, error) {
	u, err := c.store.GetUser(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, errUserNotFound.Wrap(err)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

// classify turns a failed conditional write into the error the caller would
// have seen had it observed the concurrent change first.
func (c *Controller) classify(ctx context.Context, id string, err error, banning bool) error {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return errUserNotFound.Wrap(err)
	case !errors.Is(err, apperr.ErrStale):
		return fmt.Errorf("update user: %w", err)
	case !banning:
		return errNotBanned.Wrap(err)
	}
	if u, lookupErr := c.store.GetUser(ctx, id); lookupErr == nil && u.Role == model.RoleModerator {
		return errTargetIsMod.Wrap(err)
	}
	return errAlreadyBanned.Wrap(err)
}
