package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/paisley/internal/engine"
	"github.com/kode4food/paisley/pkg/api"
)

var ErrListLoops = errors.New("failed to list loops")

func (s *Server) executeLoop(c *gin.Context) {
	var req api.LoopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error: fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Code:  api.ErrCodeConfiguration,
		})
		return
	}

	res, err := s.engine.ExecuteLoop(c.Request.Context(), &req)
	if err == nil {
		c.JSON(loopStatus(res), res)
		return
	}

	switch {
	case errors.Is(err, engine.ErrStateNotFound):
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error: err.Error(),
			Code:  api.ErrCodeNotFound,
		})
	case errors.Is(err, engine.ErrLoopExists):
		c.JSON(http.StatusConflict, api.ErrorResponse{
			Error: err.Error(),
			Code:  api.ErrCodeConflict,
		})
	default:
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error: err.Error(),
			Code:  api.ErrCodePersistence,
		})
	}
}

func (s *Server) listLoops(c *gin.Context) {
	res, err := s.engine.ListLoops(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error: fmt.Sprintf("%s: %v", ErrListLoops, err),
			Code:  api.ErrCodePersistence,
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) getLoop(c *gin.Context) {
	loopID := api.LoopID(c.Param("loopID"))

	st, err := s.engine.GetLoopState(c.Request.Context(), loopID)
	if err == nil {
		c.JSON(http.StatusOK, st)
		return
	}
	s.loopError(c, err)
}

func (s *Server) getLoopResult(c *gin.Context) {
	loopID := api.LoopID(c.Param("loopID"))

	res, err := s.engine.GetLoopResult(c.Request.Context(), loopID)
	if err == nil {
		c.JSON(http.StatusOK, res)
		return
	}
	s.loopError(c, err)
}

func (s *Server) loopError(c *gin.Context, err error) {
	if errors.Is(err, engine.ErrLoopNotFound) {
		c.JSON(http.StatusNotFound, api.ErrorResponse{
			Error: err.Error(),
			Code:  api.ErrCodeNotFound,
		})
		return
	}
	c.JSON(http.StatusInternalServerError, api.ErrorResponse{
		Error: err.Error(),
		Code:  api.ErrCodePersistence,
	})
}

// loopStatus maps a loop execution result to its HTTP status. Validation
// failures carry field errors; everything that actually ran reports OK with
// the outcome in the body
func loopStatus(res *api.LoopExecutionResult) int {
	if len(res.Errors) > 0 {
		return http.StatusBadRequest
	}
	return http.StatusOK
}
