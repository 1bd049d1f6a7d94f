// Package api wires the simulator's HTTP command surface.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/extsim/extsim/internal/common/httpmw"
	"github.com/extsim/extsim/internal/common/logger"
	"github.com/extsim/extsim/internal/uistream"
)

// NewRouter assembles the gin engine serving the command API and the
// WebSocket stream.
func NewRouter(h *Handler, hub *uistream.Hub, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpmw.OtelTracing("extsim"))
	router.Use(httpmw.RequestLogger(log, "extsim"))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1/simulator")
	{
		v1.GET("/status", h.status)
		v1.POST("/check", h.check)
		v1.POST("/start", h.start)
		v1.POST("/stop", h.stop)
		v1.GET("/log", h.log)
		v1.GET("/targets", h.listTargets)
		v1.POST("/targets", h.registerTarget)
		v1.DELETE("/targets/:name", h.deleteTarget)
		v1.GET("/history", h.history)
		v1.GET("/lenses", h.codeLenses)
	}

	router.GET("/stream", hub.HandleWS)
	return router
}
