package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/Chat/internal/adapters/signal"
	"github.com/dkeye/Chat/internal/app/orch"
	"github.com/dkeye/Chat/internal/config"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "ct"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware keeps a per-browser token in the signed session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		token, _ := session.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			session.Set(clientTokenKey, token)
			if err := session.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func corsMiddleware(origin string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if origin == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = []string{origin}
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg.AllowedOrigin))

	secret := cfg.Secret
	if secret == "" {
		log.Warn().Str("module", "adapters.http").Msg("no session secret configured, using a random one")
		secret = uuid.NewString()
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("ChatSessions", store))
	r.Use(ClientTokenMiddleware())

	limiter := NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	go pruneLoop(ctx, limiter, cfg.RateLimit.Window)

	ctrl := signal.NewSignalWSController(o, signal.SettingsFrom(cfg))
	api := r.Group("/api")
	// The websocket is not rate limited; it carries its own traffic.
	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	r.GET("/healthz", func(c *gin.Context) {
		st := o.Stats()
		c.JSON(http.StatusOK, gin.H{"status": "ok", "rooms": st.Rooms, "connections": st.Connections})
	})

	if cfg.Mode == "debug" {
		r.GET("/debug/rooms", func(c *gin.Context) {
			c.JSON(http.StatusOK, o.Rooms.List())
		})
	}

	web := r.Group("/", RateLimitMiddleware(limiter))
	web.Static("/static", cfg.StaticPath)
	web.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.NoRoute(RateLimitMiddleware(limiter), func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}

func pruneLoop(ctx context.Context, rl *RateLimiter, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.Prune()
		}
	}
}
