// Package model contains the domain records shared across packages. A type
// declared as "type X string" keeps enumerations such as FileKind or
// ReportStatus distinct from arbitrary strings.
package model

import (
	"time"
)

// FileKind is the whitelisted upload category.
type FileKind string

const (
	FileKindPDF   FileKind = "pdf"
	FileKindImage FileKind = "image"
)

// FileKindForMIME maps a sniffed MIME type onto the whitelist. The second
// return value is false for anything not accepted.
func FileKindForMIME(mime string) (FileKind, bool) {
	switch mime {
	case "application/pdf":
		return FileKindPDF, true
	case "image/png", "image/jpeg":
		return FileKindImage, true
	default:
		return "", false
	}
}

// Material is one uploaded piece of study content. FileRef names exactly one
// blob-store object for as long as the record exists.
type Material struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	FileRef     string    `json:"fileRef"`
	FileKind    FileKind  `json:"fileKind"`
	Program     string    `json:"program"`
	Branch      string    `json:"branch"`
	Semester    int       `json:"semester"`
	UploaderID  string    `json:"uploaderId"`
	UpvoterIDs  []string  `json:"upvoterIds"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ReportStatus describes the report lifecycle. Accepted and rejected are
// terminal.
type ReportStatus string

const (
	ReportPending  ReportStatus = "pending"
	ReportAccepted ReportStatus = "accepted"
	ReportRejected ReportStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s ReportStatus) Terminal() bool {
	return s == ReportAccepted || s == ReportRejected
}

// MaterialSnapshot is captured when a report is created so the report stays
// readable after the material is gone.
type MaterialSnapshot struct {
	Title        string `json:"title"`
	Program      string `json:"program"`
	Branch       string `json:"branch"`
	Semester     int    `json:"semester"`
	UploaderID   string `json:"uploaderId"`
	UploaderName string `json:"uploaderName"`
}

// Report is a user flag against a material.
type Report struct {
	ID               string           `json:"id"`
	MaterialKey      string           `json:"-"`
	MaterialID       *string          `json:"materialId"`
	Snapshot         MaterialSnapshot `json:"materialSnapshot"`
	ReporterID       string           `json:"reporterId"`
	Reason           string           `json:"reason"`
	BrokenRuleIDs    []string         `json:"brokenRuleIds"`
	Status           ReportStatus     `json:"status"`
	ReviewerID       *string          `json:"reviewerId,omitempty"`
	ModeratorComment *string          `json:"moderatorComment,omitempty"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// MaterialDeleted reports whether the referenced material no longer exists.
func (r *Report) MaterialDeleted() bool {
	return r.MaterialID == nil
}

// Role is the platform role of a user.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
)

// User carries the fields the moderation engine needs.
type User struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Role             Role      `json:"role"`
	Program          string    `json:"program,omitempty"`
	Branch           string    `json:"branch,omitempty"`
	Semester         int       `json:"semester,omitempty"`
	ProfileCompleted bool      `json:"profileCompleted"`
	IsBanned         bool      `json:"isBanned"`
	BanReason        *string   `json:"banReason,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Notification is a user-facing message. Only Seen ever changes.
type Notification struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Message           string    `json:"message"`
	RelatedMaterialID *string   `json:"relatedMaterialId,omitempty"`
	Seen              bool      `json:"seen"`
	CreatedAt         time.Time `json:"createdAt"`
}
