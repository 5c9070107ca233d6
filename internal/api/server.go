// Package api exposes the draft, schedule, scheduler and policy operations
// over HTTP.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"xpost/internal/content"
	"xpost/internal/publish"
	"xpost/internal/scheduler"
	"xpost/internal/store"
	"xpost/pkg/logx"
)

type Server struct {
	st     *store.Store
	engine *publish.Engine
	sched  *scheduler.Service
	policy *publish.Policy
	log    logx.Logger
}

func New(st *store.Store, engine *publish.Engine, sched *scheduler.Service, policy *publish.Policy, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{st: st, engine: engine, sched: sched, policy: policy, log: log}
}

// Handler builds the router. Recovery only; request logging stays with the
// structured logger inside handlers.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/v1")
	{
		v1.POST("/drafts", s.createDraft)
		v1.GET("/drafts", s.listDrafts)
		v1.POST("/drafts/:id/publish", s.publishDraft)
		v1.DELETE("/drafts/:id", s.deleteDraft)

		v1.POST("/scheduled", s.createScheduled)
		v1.GET("/scheduled", s.listScheduled)
		v1.GET("/scheduled/failed", s.listFailed)
		v1.DELETE("/scheduled/:id", s.cancelScheduled)

		v1.POST("/scheduler/start", s.startScheduler)
		v1.POST("/scheduler/stop", s.stopScheduler)
		v1.GET("/scheduler/status", s.schedulerStatus)

		v1.GET("/policy/auto-delete", s.getPolicy)
		v1.PUT("/policy/auto-delete", s.setPolicy)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

// fail maps domain errors onto status codes. Publisher failures surface the
// ids already published so a partial thread is never reported as all-or-
// nothing.
func (s *Server) fail(c *gin.Context, err error) {
	var perr *publish.PublisherError
	switch {
	case errors.Is(err, content.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &perr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":         perr.Error(),
			"published_ids": perr.Published,
		})
	default:
		s.log.Error("request failed", logx.String("path", c.FullPath()), logx.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
