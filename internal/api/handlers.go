package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"xpost/internal/content"
	"xpost/internal/publish"
	"xpost/pkg/logx"
)

type draftResponse struct {
	ID        string              `json:"id"`
	Unit      content.ContentUnit `json:"unit"`
	CreatedAt time.Time           `json:"created_at"`
}

type scheduledResponse struct {
	ID             string              `json:"id"`
	Unit           content.ContentUnit `json:"unit"`
	DueAt          time.Time           `json:"due_at"`
	CreatedAt      time.Time           `json:"created_at"`
	PublishedCount int                 `json:"published_count,omitempty"`
	Status         string              `json:"status"`
}

type failedResponse struct {
	ID             string              `json:"id"`
	Unit           content.ContentUnit `json:"unit"`
	DueAt          time.Time           `json:"due_at"`
	PublishedCount int                 `json:"published_count,omitempty"`
	FailedAt       time.Time           `json:"failed_at"`
	Reason         string              `json:"reason"`
}

func (s *Server) createDraft(c *gin.Context) {
	var unit content.ContentUnit
	if err := c.ShouldBindJSON(&unit); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := unit.ValidateDraft(); err != nil {
		s.fail(c, err)
		return
	}

	id, err := s.st.CreateDraft(c.Request.Context(), unit)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.log.Info("draft created", logx.String("id", id), logx.String("kind", string(unit.Kind)))
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) listDrafts(c *gin.Context) {
	drafts, err := s.st.ListDrafts(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]draftResponse, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, draftResponse{ID: d.ID, Unit: d.Unit, CreatedAt: d.CreatedAt})
	}
	c.JSON(http.StatusOK, gin.H{"drafts": out})
}

func (s *Server) publishDraft(c *gin.Context) {
	id := c.Param("id")
	d, err := s.st.GetDraft(c.Request.Context(), id)
	if err != nil {
		s.fail(c, err)
		return
	}

	res, removed, err := s.engine.PublishDraft(c.Request.Context(), d)
	if err != nil {
		var perr *publish.PublisherError
		if errors.As(err, &perr) {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":         perr.Error(),
				"published_ids": perr.Published,
				"draft_removed": removed,
			})
			return
		}
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"post_ids":      res.PostIDs,
		"draft_removed": removed,
	})
}

func (s *Server) deleteDraft(c *gin.Context) {
	if err := s.st.DeleteDraft(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type createScheduledRequest struct {
	When string              `json:"when"`
	Unit content.ContentUnit `json:"unit"`
}

func (s *Server) createScheduled(c *gin.Context) {
	var req createScheduledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dueAt, err := content.ParseWhen(req.When, time.Now())
	if err != nil {
		s.fail(c, err)
		return
	}

	id, err := s.st.CreateScheduled(c.Request.Context(), req.Unit, dueAt)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.log.Info("scheduled item created",
		logx.String("id", id),
		logx.String("kind", string(req.Unit.Kind)),
		logx.Time("due_at", dueAt))

	// First scheduled item may start the loop.
	s.sched.AutoStart()

	c.JSON(http.StatusCreated, gin.H{
		"id":     id,
		"due_at": dueAt,
		"status": content.DeriveStatus(dueAt, time.Now()),
	})
}

func (s *Server) listScheduled(c *gin.Context) {
	items, err := s.st.ListScheduled(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	now := time.Now()
	out := make([]scheduledResponse, 0, len(items))
	for _, it := range items {
		out = append(out, scheduledResponse{
			ID:             it.ID,
			Unit:           it.Unit,
			DueAt:          it.DueAt,
			CreatedAt:      it.CreatedAt,
			PublishedCount: it.PublishedCount,
			Status:         content.DeriveStatus(it.DueAt, now),
		})
	}
	c.JSON(http.StatusOK, gin.H{"scheduled": out})
}

func (s *Server) listFailed(c *gin.Context) {
	items, err := s.st.ListFailed(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]failedResponse, 0, len(items))
	for _, it := range items {
		out = append(out, failedResponse{
			ID:             it.ID,
			Unit:           it.Unit,
			DueAt:          it.DueAt,
			PublishedCount: it.PublishedCount,
			FailedAt:       it.FailedAt,
			Reason:         it.Reason,
		})
	}
	c.JSON(http.StatusOK, gin.H{"failed": out})
}

func (s *Server) cancelScheduled(c *gin.Context) {
	it, err := s.st.CancelScheduled(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":       it.ID,
		"unit":     it.Unit,
		"due_at":   it.DueAt,
		"canceled": true,
	})
}

func (s *Server) startScheduler(c *gin.Context) {
	s.sched.Start()
	c.JSON(http.StatusOK, gin.H{"running": true})
}

func (s *Server) stopScheduler(c *gin.Context) {
	s.sched.Stop(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"running": false})
}

func (s *Server) schedulerStatus(c *gin.Context) {
	st, err := s.sched.Status(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"running":     st.Running,
		"loop_exists": st.LoopExists,
		"live_items":  st.LiveItems,
		"due_items":   st.DueItems,
	})
}

type policyRequest struct {
	AutoDelete *bool `json:"auto_delete"`
}

func (s *Server) getPolicy(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"auto_delete": s.policy.AutoDelete()})
}

func (s *Server) setPolicy(c *gin.Context) {
	var req policyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AutoDelete == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must carry auto_delete"})
		return
	}
	s.policy.SetAutoDelete(*req.AutoDelete)
	s.log.Info("auto-delete policy updated", logx.Bool("auto_delete", *req.AutoDelete))
	c.JSON(http.StatusOK, gin.H{"auto_delete": *req.AutoDelete})
}
