package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kode4food/paisley/internal/engine"
	"github.com/kode4food/paisley/pkg/api"
)

var ErrListMachines = errors.New("failed to list machines")

func (s *Server) listMachines(c *gin.Context) {
	machines, err := s.engine.ListMachines(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error: fmt.Sprintf("%s: %v", ErrListMachines, err),
			Code:  api.ErrCodePersistence,
		})
		return
	}

	c.JSON(http.StatusOK, api.MachinesListResponse{
		Machines: machines,
		Count:    len(machines),
	})
}

func (s *Server) registerMachine(c *gin.Context) {
	var m api.StateMachineConfig
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error: fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Code:  api.ErrCodeConfiguration,
		})
		return
	}

	errs, err := s.engine.RegisterMachine(c.Request.Context(), &m)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error: err.Error(),
			Code:  api.ErrCodePersistence,
		})
		return
	}
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, api.Invalid(errs))
		return
	}
	c.JSON(http.StatusCreated, &m)
}

func (s *Server) getMachine(c *gin.Context) {
	machineID := api.MachineID(c.Param("machineID"))

	m, err := s.engine.GetMachine(c.Request.Context(), machineID)
	if err == nil {
		c.JSON(http.StatusOK, m)
		return
	}

	if errors.Is(err, engine.ErrMachineNotFound) {
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

func (s *Server) updateMachine(c *gin.Context) {
	machineID := api.MachineID(c.Param("machineID"))

	var m api.StateMachineConfig
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error: fmt.Sprintf("%s: %v", ErrInvalidJSON, err),
			Code:  api.ErrCodeConfiguration,
		})
		return
	}

	if m.ID == "" {
		m.ID = machineID
	}
	if m.ID != machineID {
		c.JSON(http.StatusBadRequest, api.ErrorResponse{
			Error: "machine ID does not match URL",
			Code:  api.ErrCodeConfiguration,
		})
		return
	}

	errs, err := s.engine.RegisterMachine(c.Request.Context(), &m)
	if err != nil {
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{
			Error: err.Error(),
			Code:  api.ErrCodePersistence,
		})
		return
	}
	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, api.Invalid(errs))
		return
	}
	c.JSON(http.StatusOK, &m)
}

func (s *Server) removeMachine(c *gin.Context) {
	machineID := api.MachineID(c.Param("machineID"))

	err := s.engine.RemoveMachine(c.Request.Context(), machineID)
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"machine_id": machineID})
		return
	}

	if errors.Is(err, engine.ErrMachineNotFound) {
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
