package http

import (
	"github.com/gin-gonic/gin"

	"docrag/internal/bootstrap"
	"docrag/internal/transport/http/handler"
	"docrag/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestLogger(), gin.Recovery())
	router.MaxMultipartMemory = 8 << 20

	healthHandler := handler.NewHealthHandler(handler.HealthDeps{
		AppName:   app.Config.App.Name,
		Env:       app.Config.App.Env,
		StartedAt: app.StartedAt,
		MySQL:     app.MySQL,
		Redis:     app.Redis,
		MQConn:    app.MQConn,
		Qdrant:    app.Qdrant,
		Pool:      app.Pool,
	})
	router.GET("/healthz", healthHandler.Check)

	documentHandler := handler.NewDocumentHandler(app.Documents)
	queryHandler := handler.NewQueryHandler(app.Queries)

	v1 := router.Group("/api/v1")
	documents := v1.Group("/documents")
	documents.POST("", documentHandler.Upload)
	documents.GET("", documentHandler.List)
	documents.GET("/:id", documentHandler.Get)
	documents.DELETE("/:id", documentHandler.Delete)

	v1.POST("/query", queryHandler.Query)
	v1.GET("/query/history", queryHandler.History)

	return router
}
