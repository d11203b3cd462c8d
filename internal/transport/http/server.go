package http

import (
	"github.com/gin-gonic/gin"

	"pagewise/internal/bootstrap"
	"pagewise/internal/transport/http/handler"
	"pagewise/internal/transport/http/middleware"
)

// Handlers are the route targets mounted under /api/v1.
type Handlers struct {
	Auth     *handler.AuthHandler
	Profile  *handler.ProfileHandler
	Sessions *handler.SessionHandler
	Chat     *handler.ChatHandler
}

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(app.Log), middleware.Recovery(app.Log))

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	Mount(router, app.Config.Auth.JWTSecret, Handlers{
		Auth:     handler.NewAuthHandler(app.Services.Auth),
		Profile:  handler.NewProfileHandler(app.Services.Profiles),
		Sessions: handler.NewSessionHandler(app.Services.Ingestion, app.Services.Sessions, app.Config.Ingestion.MaxUploadMB),
		Chat:     handler.NewChatHandler(app.Services.Chat),
	})
	return router
}

// Mount registers the API routes on router.
func Mount(router gin.IRouter, jwtSecret string, h Handlers) {
	auth := middleware.AuthJWT(jwtSecret)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", h.Auth.Register)
	authGroup.POST("/login", h.Auth.Login)
	authGroup.GET("/me", auth, h.Auth.Me)

	profileGroup := v1.Group("/profile", auth)
	profileGroup.GET("", h.Profile.Get)
	profileGroup.PUT("", h.Profile.Update)

	sessionGroup := v1.Group("/sessions", auth)
	sessionGroup.POST("", h.Sessions.Create)
	sessionGroup.POST("/upload", h.Sessions.Upload)
	sessionGroup.GET("", h.Sessions.List)
	sessionGroup.GET("/:id", h.Sessions.Get)
	sessionGroup.PUT("/:id", h.Sessions.Update)
	sessionGroup.DELETE("/:id", h.Sessions.Delete)
	sessionGroup.GET("/:id/chat", h.Chat.ListTurns)
	sessionGroup.POST("/:id/chat", h.Chat.SendMessage)
	sessionGroup.POST("/:id/chat/stream", h.Chat.StreamMessage)
}

