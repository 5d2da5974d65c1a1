package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"kahve-ruleti-server/internal/adapters/signal"
	"kahve-ruleti-server/internal/app"
	"kahve-ruleti-server/internal/config"
	"kahve-ruleti-server/internal/domain"
)

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type createRoomRequest struct {
	OwnerName string `json:"ownerName" binding:"required,displayname"`
}

// displayname mirrors the domain constraint so bad input is rejected at the
// binding layer with the same rules the lifecycle enforces.
func displayName(fl validator.FieldLevel) bool {
	_, err := domain.NormalizeDisplayName(fl.Field().String())
	return err == nil
}

func SetupRouter(ctx context.Context, cfg *config.Config, lifecycle *app.Lifecycle, ws *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("displayname", displayName)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RuletiSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	// The join link is a client-side route; serve the app shell for it.
	r.GET("/rulet/:roomId", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.POST("/rooms", func(c *gin.Context) {
		var req createRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "ownerName is required"})
			return
		}
		id, err := lifecycle.CreateRoom(req.OwnerName)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"roomId": id})
	})

	api.GET("/rooms/:roomId", func(c *gin.Context) {
		summary, err := lifecycle.RoomSummary(domain.RoomID(c.Param("roomId")))
		if err != nil {
			if errors.Is(err, domain.ErrRoomNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})

	api.GET("/ws", func(c *gin.Context) {
		ws.HandleWS(ctx, c)
	})

	return r
}
