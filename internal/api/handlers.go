package api

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/mindstash/internal/apperr"
	"github.com/dharsanguruparan/mindstash/internal/material"
	"github.com/dharsanguruparan/mindstash/internal/moderation"
	"github.com/dharsanguruparan/mindstash/internal/report"
	"github.com/dharsanguruparan/mindstash/internal/rules"
)

// multipart framing allowance on top of the file limit
const formOverhead = 64 << 10

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleRules(c *gin.Context) {
	c.JSON(http.StatusOK, rules.All())
}

func (s *Server) handleUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxFileSize+formOverhead)
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, apperr.Validation("file_too_large", fmt.Sprintf("file exceeds %d bytes", s.cfg.MaxFileSize)))
			return
		}
		respondError(c, apperr.Validation("file_required", "a file is required").Wrap(err))
		return
	}
	defer file.Close()

	// one byte over the limit is enough for the manager to reject it
	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxFileSize+1))
	if err != nil {
		respondError(c, apperr.Validation("file_unreadable", "could not read the uploaded file").Wrap(err))
		return
	}
	sniff := data
	if len(sniff) > 512 {
		sniff = sniff[:512]
	}

	m, err := s.deps.Materials.Create(c.Request.Context(), actorFrom(c), material.CreateInput{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Data:        data,
		MIME:        http.DetectContentType(sniff),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (s *Server) handleDeleteMaterial(c *gin.Context) {
	err := s.deps.Materials.Destroy(c.Request.Context(), actorFrom(c), material.DestroyRequest{
		MaterialID: c.Param("id"),
		Path:       material.PathOwner,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "material deleted"})
}

func (s *Server) handleUpvote(c *gin.Context) {
	res, err := s.deps.Materials.ToggleUpvote(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSubmitReport(c *gin.Context) {
	var in report.SubmitInput
	if !bindJSON(c, &in) {
		return
	}
	r, err := s.deps.Reports.Submit(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (s *Server) handleMyReports(c *gin.Context) {
	list, err := s.deps.Reports.MyReports(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleQueue(c *gin.Context) {
	list, err := s.deps.Reports.Queue(c.Request.Context(), actorFrom(c), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleResolve(c *gin.Context) {
	var in moderation.ResolveInput
	if !bindJSON(c, &in) {
		return
	}
	r, err := s.deps.Moderation.Resolve(c.Request.Context(), actorFrom(c), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

type removeRequest struct {
	BrokenRuleIDs []string `json:"brokenRuleIds"`
}

func (s *Server) handleRemoveDirect(c *gin.Context) {
	var in removeRequest
	if !bindJSON(c, &in) {
		return
	}
	if err := s.deps.Moderation.RemoveDirect(c.Request.Context(), actorFrom(c), c.Param("id"), in.BrokenRuleIDs); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "material removed"})
}

type banRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleBan(c *gin.Context) {
	var in banRequest
	if !bindJSON(c, &in) {
		return
	}
	if err := s.deps.Bans.Ban(c.Request.Context(), actorFrom(c), c.Param("id"), in.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user banned"})
}

func (s *Server) handleUnban(c *gin.Context) {
	if err := s.deps.Bans.Unban(c.Request.Context(), actorFrom(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user unbanned"})
}

func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.deps.Bans.ListUsers(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (s *Server) handleNotifications(c *gin.Context) {
	list, err := s.deps.Notifications.List(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleMarkSeen(c *gin.Context) {
	n, err := s.deps.Notifications.MarkSeen(c.Request.Context(), actorFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, apperr.Validation("invalid_body", "request body is not valid JSON").Wrap(err))
		return false
	}
	return true
}

// respondError writes {"error", "code"} with the status for the error's kind.
func respondError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	var appErr *apperr.Error
	msg, code := "internal server error", "internal"
	if errors.As(err, &appErr) {
		msg, code = appErr.Message, appErr.Code
		if appErr.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(appErr.RetryAfter.Seconds()))))
		}
	}
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}
