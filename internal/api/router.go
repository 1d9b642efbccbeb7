package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"queuetrack-backend/config"
	"queuetrack-backend/internal/mw"
	"queuetrack-backend/internal/store"
	"queuetrack-backend/internal/trend"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, s store.Store, projector trend.Projector, webpushOptions *webpush.Options, log *zap.Logger) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, projector, webpushOptions, log)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	caching := mw.Cache(cache.New(cacheTTL, 2*cacheTTL), cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/users", caching, handler.GetUsers)
		api.GET("/users/:user_id/rooms", caching, handler.GetRooms)
		api.GET("/users/:user_id/report", caching, handler.GetReport)
		api.GET("/rooms/:room_id/history", caching, handler.GetRoomHistory)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
