package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/paisley/internal/engine"
	"github.com/kode4food/paisley/pkg/api"
)

var (
	ErrListStates = errors.New("failed to list states")
	ErrGetState   = errors.New("failed to get state")
)

func (s *Server) initializeState(c *gin.Context) {
	var req api.InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error: fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Code:  api.ErrCodeConfiguration,
		})
		return
	}

	res, err := s.engine.InitializeState(c.Request.Context(), &req)
	if err != nil {
		s.stateError(c, "", err)
		return
	}
	if res.Success {
		c.JSON(http.StatusCreated, res)
		return
	}
	c.JSON(resultStatus(res), res)
}

func (s *Server) listStates(c *gin.Context) {
	res, err := s.engine.ListStates(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error: fmt.Sprintf("%s: %v", ErrListStates, err),
			Code:  api.ErrCodePersistence,
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getState(c *gin.Context) {
	stateID := api.StateID(c.Param("stateID"))

	st, err := s.engine.GetState(c.Request.Context(), stateID)
	if err != nil {
		s.stateError(c, stateID, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) transitionState(c *gin.Context) {
	stateID := api.StateID(c.Param("stateID"))

	var req api.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error: fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Code:  api.ErrCodeConfiguration,
		})
		return
	}

	res, err := s.engine.TransitionState(c.Request.Context(), stateID, &req)
	if err != nil {
		s.stateError(c, stateID, err)
		return
	}
	c.JSON(resultStatus(res), res)
}

func (s *Server) updateVariables(c *gin.Context) {
	stateID := api.StateID(c.Param("stateID"))

	var req api.UpdateVariablesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error: fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Code:  api.ErrCodeConfiguration,
		})
		return
	}

	res, err := s.engine.UpdateVariables(c.Request.Context(), stateID, &req)
	if err != nil {
		s.stateError(c, stateID, err)
		return
	}
	c.JSON(resultStatus(res), res)
}

func (s *Server) getVariable(c *gin.Context) {
	stateID := api.StateID(c.Param("stateID"))
	name := api.Name(c.Param("name"))

	val, ok, err := s.engine.GetVariable(c.Request.Context(), stateID, name)
	if err != nil {
		s.stateError(c, stateID, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error: fmt.Sprintf("variable not bound: %s", name),
			Code:  api.ErrCodeNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "value": val})
}

func (s *Server) mergeVariables(c *gin.Context) {
	stateID := api.StateID(c.Param("stateID"))

	var req api.MergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error: fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Code:  api.ErrCodeConfiguration,
		})
		return
	}

	res, err := s.engine.MergeVariables(c.Request.Context(), stateID, &req)
	if err != nil {
		s.stateError(c, stateID, err)
		return
	}
	c.JSON(resultStatus(res), res)
}

func (s *Server) createSnapshot(c *gin.Context) {
	stateID := api.StateID(c.Param("stateID"))

	req := api.SnapshotRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{
				Error: fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
				Code:  api.ErrCodeConfiguration,
			})
			return
		}
	}

	res, err := s.engine.CreateSnapshot(c.Request.Context(), stateID, &req)
	if err != nil {
		s.stateError(c, stateID, err)
		return
	}
	if res.Success {
		c.JSON(http.StatusCreated, res)
		return
	}
	c.JSON(resultStatus(res), res)
}

func (s *Server) restoreSnapshot(c *gin.Context) {
	stateID := api.StateID(c.Param("stateID"))

	var req api.RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error: fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Code:  api.ErrCodeConfiguration,
		})
		return
	}

	res, err := s.engine.RestoreSnapshot(c.Request.Context(), stateID, &req)
	if err != nil {
		s.stateError(c, stateID, err)
		return
	}
	c.JSON(resultStatus(res), res)
}

func (s *Server) rollbackState(c *gin.Context) {
	stateID := api.StateID(c.Param("stateID"))

	req := api.RollbackRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{
				Error: fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
				Code:  api.ErrCodeConfiguration,
			})
			return
		}
	}

	res, err := s.engine.RollbackState(c.Request.Context(), stateID, &req)
	if err != nil {
		s.stateError(c, stateID, err)
		return
	}
	c.JSON(resultStatus(res), res)
}

func (s *Server) getHistory(c *gin.Context) {
	stateID := api.StateID(c.Param("stateID"))

	recs, err := s.engine.GetHistory(c.Request.Context(), stateID)
	if err != nil {
		s.stateError(c, stateID, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state_id": stateID,
		"history":  recs,
		"count":    len(recs),
	})
}

func (s *Server) compactHistory(c *gin.Context) {
	stateID := api.StateID(c.Param("stateID"))

	req := api.CompactRequest{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, api.ErrorResponse{
				Error: fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
				Code:  api.ErrCodeConfiguration,
			})
			return
		}
	}

	res, err := s.engine.CompactHistory(c.Request.Context(), stateID, &req)
	if err != nil {
		s.stateError(c, stateID, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) archiveState(c *gin.Context) {
	stateID := api.StateID(c.Param("stateID"))

	err := s.engine.ArchiveState(c.Request.Context(), stateID)
	if err == nil {
		c.JSON(http.StatusAccepted, gin.H{"state_id": stateID})
		return
	}

	if errors.Is(err, engine.ErrStateNotTerminal) {
		c.JSON(http.StatusConflict, api.ErrorResponse{
			Error: err.Error(),
			Code:  api.ErrCodeConflict,
		})
		return
	}
	s.stateError(c, stateID, err)
}

// stateError maps engine errors to the uniform HTTP error body
func (s *Server) stateError(c *gin.Context, id api.StateID, err error) {
	switch {
	case errors.Is(err, engine.ErrStateNotFound),
		errors.Is(err, engine.ErrMachineNotFound),
		errors.Is(err, engine.ErrSnapshotNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error: err.Error(),
			Code:  api.ErrCodeNotFound,
		})
	default:
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error: fmt.Sprintf("%s: %v", ErrGetState, err),
			Code:  api.ErrCodePersistence,
		})
	}
}
