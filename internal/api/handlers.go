package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vk/flowgridgo/internal/ctxlog"
	"github.com/vk/flowgridgo/internal/dispatch"
	"github.com/vk/flowgridgo/internal/store"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	tasks, err := req.toTasks()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	opts, err := req.toOptions()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	ctx := ctxlog.WithLogger(c.Request.Context(), s.logger)
	id, err := s.dispatcher.Submit(ctx, tasks, opts)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, submitResponse{DispatchID: id})
}

func (s *Server) handleList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"dispatches": s.dispatcher.List()})
}

func (s *Server) handleStatus(c *gin.Context) {
	rs, err := s.dispatcher.Status(c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDispatchStatus(rs))
}

func (s *Server) handleTaskStatus(c *gin.Context) {
	snap, err := s.dispatcher.TaskStatus(c.Param("id"), c.Param("taskID"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTaskStatus(snap))
}

// handleResult returns a task's result. With ?wait=true the request blocks
// until the result exists or the optional ?timeout elapses.
func (s *Server) handleResult(c *gin.Context) {
	id, taskID := c.Param("id"), c.Param("taskID")

	if c.Query("wait") == "true" {
		var timeout time.Duration
		if raw := c.Query("timeout"); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid timeout: " + err.Error()})
				return
			}
			timeout = d
		}
		res, err := s.dispatcher.AwaitResult(c.Request.Context(), id, taskID, timeout)
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toResult(res))
		return
	}

	res, err := s.dispatcher.Result(id, taskID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toResult(res))
}

func (s *Server) handleCancel(c *gin.Context) {
	if err := s.dispatcher.Cancel(c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"dispatch_id": c.Param("id"), "cancelled": true})
}

func (s *Server) handlePurge(c *gin.Context) {
	if err := s.dispatcher.Purge(c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dispatch.ErrNotFound), errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrNotReady), errors.Is(err, dispatch.ErrNotTerminal):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrTimeout):
		c.JSON(http.StatusRequestTimeout, errorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}
