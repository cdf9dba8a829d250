package http

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/WatchSync/internal/adapters/signal"
	"github.com/dkeye/WatchSync/internal/app/orch"
	"github.com/dkeye/WatchSync/internal/config"
	"github.com/dkeye/WatchSync/internal/domain"
)

const (
	sessionName     = "WatchSyncSessions"
	sessionKeyToken = "client_token"
	sessionKeyName  = "display_name"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware keeps a stable per-browser token and display name
// in the cookie session. Member identity itself is per connection.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(sessionKeyToken).(string)
		if token == "" {
			token = genClientToken()
			s.Set(sessionKeyToken, token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(sessionKeyToken, token)
		if name, ok := s.Get(sessionKeyName).(string); ok {
			c.Set(sessionKeyName, name)
		}
		c.Next()
	}
}

type nameRequest struct {
	Name string `json:"name" binding:"required,max=36"`
}

func getSession(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"token": c.GetString(sessionKeyToken),
		"name":  c.GetString(sessionKeyName),
	})
}

func setSessionName(c *gin.Context) {
	var req nameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_name"})
		return
	}
	if _, err := domain.NewMember("", req.Name); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_name"})
		return
	}
	s := sessions.Default(c)
	s.Set(sessionKeyName, req.Name)
	if err := s.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": req.Name})
}

// adminOnly guards destructive endpoints; an empty token disables them.
func adminOnly(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func roomCode(c *gin.Context) domain.RoomCode {
	return domain.NormalizeRoomCode(c.Param("code"))
}

// Deps groups what the router wires into handlers.
type Deps struct {
	Orch     *orch.Orchestrator
	Limiter  *signal.RoomRateLimiter
	Gatherer prometheus.Gatherer
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"rooms":       deps.Orch.Rooms.Len(),
			"connections": deps.Orch.Sessions.Count(),
		})
	})
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctrl := signal.NewSignalWSController(deps.Orch, deps.Limiter, signal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	})

	api := r.Group("/api")
	api.GET("/session", getSession)
	api.POST("/session", setSessionName)
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": deps.Orch.Rooms.List()})
	})
	api.GET("/rooms/:code", func(c *gin.Context) {
		info, members, ok := deps.Orch.Members(roomCode(c))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"room": info, "members": members})
	})
	api.DELETE("/rooms/:code", adminOnly(cfg.AdminToken), func(c *gin.Context) {
		code := roomCode(c)
		if !deps.Orch.EvictRoom(code) {
			c.JSON(http.StatusNotFound, gin.H{"error": "room_not_found"})
			return
		}
		log.Info().Str("module", "adapters.http").Str("code", string(code)).Msg("room evicted by admin")
		c.Status(http.StatusNoContent)
	})
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString(sessionKeyToken)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
