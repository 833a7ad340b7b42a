package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/partyline/voice/internal/app"
	"github.com/partyline/voice/internal/config"
	"github.com/partyline/voice/internal/domain"
)

type muteRequest struct {
	Muted bool `json:"muted"`
}

type volumeRequest struct {
	Room   string  `json:"room" binding:"required"`
	Peer   string  `json:"peer" binding:"required"`
	Volume float64 `json:"volume"`
}

type joinRequest struct {
	Code string `json:"code" binding:"required"`
}

// SetupRouter builds the local diagnostics and control API. It only
// ever binds to loopback in practice; there is no auth layer.
func SetupRouter(cfg *config.Config, coord *app.Coordinator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	log.Info().Str("module", "adapters.http").Int("port", cfg.DiagPort).Msg("router setup")

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	api.GET("/state", func(c *gin.Context) {
		c.JSON(http.StatusOK, coord.Snapshot())
	})

	api.GET("/rooms", func(c *gin.Context) {
		v := coord.Snapshot()
		rooms := make([]string, 0, 2)
		if v.Auto != nil {
			rooms = append(rooms, v.Auto.Room)
		}
		if v.Manual != nil {
			rooms = append(rooms, v.Manual.Room)
		}
		c.JSON(http.StatusOK, gin.H{"rooms": rooms})
	})

	api.GET("/stats", func(c *gin.Context) {
		v := coord.Snapshot()
		stats := gin.H{}
		if v.Auto != nil {
			stats[v.Auto.Room] = v.Auto.Stats
		}
		if v.Manual != nil {
			stats[v.Manual.Room] = v.Manual.Stats
		}
		c.JSON(http.StatusOK, stats)
	})

	api.POST("/mute", func(c *gin.Context) {
		var req muteRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		coord.Mute(req.Muted)
		c.JSON(http.StatusOK, gin.H{"muted": req.Muted})
	})

	api.POST("/volume", func(c *gin.Context) {
		var req volumeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		coord.SetVolume(domain.RoomID(req.Room), domain.PeerID(req.Peer), req.Volume)
		c.JSON(http.StatusOK, gin.H{
			"volume": coord.Volume(domain.RoomID(req.Room), domain.PeerID(req.Peer)),
		})
	})

	api.POST("/call", func(c *gin.Context) {
		code, err := coord.CreateCall()
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": code})
	})

	api.POST("/call/join", func(c *gin.Context) {
		var req joinRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := coord.JoinCallCode(req.Code); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": req.Code})
	})

	api.POST("/call/leave", func(c *gin.Context) {
		coord.LeaveCall()
		c.JSON(http.StatusOK, gin.H{"left": true})
	})

	return r
}
