// internal/routes/routes.go
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerfiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"v850-service/internal/config"
	"v850-service/internal/database"
	"v850-service/internal/handler"
	"v850-service/internal/middleware"
	"v850-service/internal/service"
	"v850-service/internal/utils"
)

// OpenAPIPath is where the API description is served.
const OpenAPIPath = "/openapi.yaml"

// Router holds all dependencies for routing
type Router struct {
	config           *config.Config
	logger           *zap.Logger
	db               *database.DB
	targetService    *service.TargetService
	discoveryService *service.DiscoveryService
	wsHandler        *handler.WebSocketHandler
}

// NewRouter creates a new router instance. db is nil when sessions are
// kept in memory.
func NewRouter(
	config *config.Config,
	logger *zap.Logger,
	db *database.DB,
	targetService *service.TargetService,
	discoveryService *service.DiscoveryService,
	wsHandler *handler.WebSocketHandler,
) *Router {
	return &Router{
		config:           config,
		logger:           logger,
		db:               db,
		targetService:    targetService,
		discoveryService: discoveryService,
		wsHandler:        wsHandler,
	}
}

// SetupRouter creates and configures the Gin router
func (r *Router) SetupRouter() *gin.Engine {
	if r.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	r.addMiddleware(router)
	r.addRoutes(router)
	return router
}

// addMiddleware adds middleware to the router
func (r *Router) addMiddleware(router *gin.Engine) {
	router.Use(middleware.RecoveryMiddleware(r.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware(utils.NewServiceLogger(r.logger, "http-server")))
	router.Use(middleware.CORSMiddleware(r.config.Server.AllowedOrigins))
}

// addRoutes sets up all application routes
func (r *Router) addRoutes(router *gin.Engine) {
	var scanners func() []string
	if r.discoveryService != nil {
		scanners = r.discoveryService.AvailableScanners
	}
	handler.NewHealthHandler(r.db, r.config, scanners, r.logger).RegisterRoutes(router)

	apiV1 := router.Group("/api/v1")
	handler.NewTargetHandler(r.targetService, r.logger).RegisterRoutes(apiV1)
	handler.NewSessionHandler(r.targetService, r.logger).RegisterRoutes(apiV1)
	if r.discoveryService != nil {
		handler.NewDiscoveryHandler(r.discoveryService, r.logger).RegisterRoutes(apiV1)
	}

	if r.wsHandler != nil {
		ws := router.Group("/ws")
		r.wsHandler.RegisterRoutes(ws)
		ws.GET("/stats", r.wsHandler.ConnectionStatsHandler)
	}

	r.addDocumentationRoutes(router)
	r.logger.Info("All routes configured successfully")
}

// addDocumentationRoutes serves the OpenAPI file and a Swagger UI for it.
func (r *Router) addDocumentationRoutes(router *gin.Engine) {
	router.StaticFile(OpenAPIPath, r.config.Server.OpenAPIFile)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerfiles.Handler, ginSwagger.URL(OpenAPIPath)))
	router.GET("/docs", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
}
