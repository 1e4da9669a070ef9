package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"echotree/infrastructure/realtime"
	httpHandler "echotree/interfaces/http"
	"echotree/interfaces/middleware"
)

type Handlers struct {
	Post    httpHandler.IPostHandler
	Account httpHandler.IAccountHandler
	Article httpHandler.IArticleHandler
	Health  httpHandler.IHealthHandler
	Hub     *realtime.Hub
}

func InitiateRouter(h Handlers, secretKey string, corsOrigins []string) *gin.Engine {
	allowed := make(map[string]struct{}, len(corsOrigins))
	for _, o := range corsOrigins {
		allowed[o] = struct{}{}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		AllowOriginFunc: func(origin string) bool {
			_, ok := allowed[origin]
			return ok
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/healthz", h.Health.Healthz)

	api := router.Group("api")
	api.Use(middleware.Auth(secretKey))

	posts := api.Group("/posts")
	{
		posts.GET("/submit-token", h.Post.SubmitToken)
		posts.POST("", h.Post.Submit)
		posts.GET("/scheduled", h.Post.ListScheduled)
		posts.GET("/:id", h.Post.Details)
		posts.PUT("/:id", h.Post.Edit)
		posts.POST("/:id/cancel", h.Post.Cancel)
		posts.POST("/:id/publish", h.Post.PublishNow)
	}
	api.POST("/publish/due", h.Post.PublishDue)

	api.GET("/accounts", h.Account.List)
	api.POST("/accounts", h.Account.Create)
	api.POST("/accounts/:id/toggle", h.Account.Toggle)
	api.GET("/platforms", h.Account.Platforms)

	api.POST("/articles", h.Article.Create)
	api.GET("/articles/:id", h.Article.Get)

	if h.Hub != nil {
		api.GET("/deliveries/stream", h.Hub.Serve)
	}

	return router
}
