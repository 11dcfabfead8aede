// Package access implements the Access Gate: the per-request capability check
// every mutating component runs before doing anything else.
package access

import (
	"github.com/dharsanguruparan/mindstash/internal/apperr"
	"github.com/dharsanguruparan/mindstash/internal/model"
)

// Actor is the acting user as resolved for a single request. It is built
// fresh from the datastore for each request and passed explicitly into every
// component call; nothing caches it.
type Actor struct {
	UserID           string
	Name             string
	Role             model.Role
	IsBanned         bool
	ProfileCompleted bool
	Program          string
	Branch           string
	Semester         int
}

// FromUser builds an Actor from a freshly loaded user record.
func FromUser(u *model.User) Actor {
	return Actor{
		UserID:           u.ID,
		Name:             u.Name,
		Role:             u.Role,
		IsBanned:         u.IsBanned,
		ProfileCompleted: u.ProfileCompleted,
		Program:          u.Program,
		Branch:           u.Branch,
		Semester:         u.Semester,
	}
}

// Authenticated reports whether the actor carries an identity.
func (a Actor) Authenticated() bool { return a.UserID != "" }

// IsModerator reports whether the actor holds the moderator role.
func (a Actor) IsModerator() bool { return a.Role == model.RoleModerator }

// Requirement is a set of capabilities an operation needs.
type Requirement struct {
	CompletedProfile bool
	Moderator        bool
	NotBanned        bool
}

var (
	// Member is what ordinary write paths (report, upload, upvote) need.
	Member = Requirement{CompletedProfile: true, NotBanned: true}
	// Moderator is what moderation actions need.
	Moderator = Requirement{CompletedProfile: true, Moderator: true, NotBanned: true}
	// Reader only needs an identity.
	Reader = Requirement{}
)

var (
	ErrUnauthenticated   = apperr.Unauthenticated("unauthenticated", "log in first")
	ErrProfileIncomplete = apperr.Authorization("profile_incomplete", "complete academic profile first")
	ErrRoleRequired      = apperr.Authorization("role_required", "only moderators can access this route")
	ErrBanned            = apperr.Authorization("banned", "access denied: your account has been banned")
)

// Check evaluates req against the actor. The order is fixed: authentication,
// profile completeness, role, ban status. Each failure has its own code.
func Check(a Actor, req Requirement) error {
	if !a.Authenticated() {
		return ErrUnauthenticated
	}
	if req.CompletedProfile && !a.ProfileCompleted {
		return ErrProfileIncomplete
	}
	if req.Moderator && !a.IsModerator() {
		return ErrRoleRequired
	}
	if req.NotBanned && a.IsBanned {
		return ErrBanned
	}
	return nil
}
