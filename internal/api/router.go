package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/veritrail/veritrail/internal/app"
	iauth "github.com/veritrail/veritrail/internal/auth"
	"github.com/veritrail/veritrail/internal/handlers"
	"github.com/veritrail/veritrail/internal/middleware"
	"github.com/veritrail/veritrail/internal/permissions"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())

	r.NoRoute(middleware.NotFoundHandler)

	if cfg.Monitoring.Health.Enabled {
		r.GET("/health", handlers.Health())
	}
	if cfg.Monitoring.Prometheus.Enabled {
		endpoint := cfg.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	authHandler, err := handlers.NewAuthHandler(db, jwt)
	if err != nil {
		return nil, err
	}

	// Public auth routes. Login is rate limited per IP.
	auth := r.Group("/api/auth")
	{
		auth.POST("/login", middleware.RateLimit(10, time.Minute), authHandler.Login)
	}

	resolver, err := permissions.NewResolver(db)
	if err != nil {
		return nil, err
	}

	api := r.Group("/api")
	api.Use(middleware.Auth(jwt))

	api.GET("/auth/me", authHandler.Me)

	if err := registerRegisterRoutes(api, db, resolver); err != nil {
		return nil, err
	}
	if err := registerUserRoutes(api, db, resolver); err != nil {
		return nil, err
	}
	if err := registerAccessRoutes(api, db, resolver); err != nil {
		return nil, err
	}
	if err := registerAuditRoutes(api, db, resolver); err != nil {
		return nil, err
	}

	systemHandler := handlers.NewSystemHandler(db, jwt)
	api.GET("/system/posture", middleware.RequirePermission(resolver, permissions.ManageUsers), systemHandler.Posture)

	return r, nil
}
