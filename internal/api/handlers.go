package api

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/extsim/extsim/internal/codelens"
	"github.com/extsim/extsim/internal/common/logger"
	"github.com/extsim/extsim/internal/simulator"
	"github.com/extsim/extsim/internal/simulator/bridge"
	"github.com/extsim/extsim/internal/simulator/history"
)

// Handler exposes the simulator over HTTP.
type Handler struct {
	bridge *bridge.Bridge
	lenses *codelens.Provider
	logger *logger.Logger
}

// NewHandler builds the simulator HTTP handler.
func NewHandler(b *bridge.Bridge, lenses *codelens.Provider, log *logger.Logger) *Handler {
	return &Handler{bridge: b, lenses: lenses, logger: log}
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.bridge.Snapshot())
}

func (h *Handler) check(c *gin.Context) {
	// An empty body checks the mandatory requirements only.
	var cfg *simulator.SimulationConfig
	if c.Request.ContentLength > 0 {
		var req SimulationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		built, err := req.toConfig(h.bridge)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
		cfg = built
	}
	c.JSON(http.StatusOK, h.bridge.CheckReady(c.Request.Context(), cfg))
}

func (h *Handler) start(c *gin.Context) {
	var req SimulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	cfg, err := req.toConfig(h.bridge)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	runID, err := h.bridge.Start(c.Request.Context(), cfg)
	switch {
	case errors.Is(err, simulator.ErrSimulationRunning):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	case errors.Is(err, simulator.ErrNotReady):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusAccepted, StartResponse{RunID: runID})
	}
}

func (h *Handler) stop(c *gin.Context) {
	if err := h.bridge.Stop(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.bridge.Snapshot())
}

func (h *Handler) log(c *gin.Context) {
	logPath := h.bridge.LogPath()
	if logPath == "" {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no simulation log available"})
		return
	}
	f, err := os.Open(logPath)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	defer f.Close()
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, f); err != nil {
		h.logger.WithError(err).Warn("failed to stream simulation log")
	}
}

func (h *Handler) listTargets(c *gin.Context) {
	targets, err := h.bridge.Targets()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if targets == nil {
		targets = []simulator.RemoteTarget{}
	}
	c.JSON(http.StatusOK, targets)
}

func (h *Handler) registerTarget(c *gin.Context) {
	var req TargetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	target, err := req.toTarget()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := h.bridge.RegisterTarget(target); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusCreated, target)
}

func (h *Handler) deleteTarget(c *gin.Context) {
	if err := h.bridge.DeleteTarget(c.Param("name")); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) codeLenses(c *gin.Context) {
	lenses, err := h.lenses.Lenses(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if lenses == nil {
		lenses = []codelens.Lens{}
	}
	c.JSON(http.StatusOK, lenses)
}

func (h *Handler) history(c *gin.Context) {
	executions, err := h.bridge.History()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if executions == nil {
		executions = []history.ExecutionSummary{}
	}
	c.JSON(http.StatusOK, executions)
}
