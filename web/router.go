package web

import (
	"fmt"
	"log"

	"github.com/aurabloom/aurabloom/db"
	"github.com/aurabloom/aurabloom/util"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// NewRouter wires up all federation endpoints. Split from Router so tests
// can drive the engine with httptest.
func NewRouter(database *db.DB, conf *util.AppConfig) *gin.Engine {
	g := gin.Default()
	g.Use(gzip.Gzip(gzip.DefaultCompression))

	// Global rate limiter: 10 requests per second per IP, burst of 20
	globalLimiter := NewRateLimiter(rate.Limit(10), 20)
	g.Use(RateLimitMiddleware(globalLimiter))

	g.GET("/.well-known/webfinger", func(c *gin.Context) {
		HandleWebfinger(c, database, conf)
	})

	// Stricter rate limit for federation endpoints: 5 req/sec per IP
	apLimiter := RateLimitMiddleware(NewRateLimiter(rate.Limit(5), 10))

	// Max 1MB request body size for inbound activities
	maxBodySize := MaxBytesMiddleware(1 * 1024 * 1024)

	ap := g.Group("/ap")
	{
		ap.GET("/users/:username", func(c *gin.Context) {
			HandleUserActor(c, database, conf)
		})
		ap.GET("/users/:username/outbox", func(c *gin.Context) {
			HandleUserOutbox(c, database, conf)
		})
		ap.POST("/users/:username/inbox", apLimiter, maxBodySize, func(c *gin.Context) {
			HandleUserInbox(c, database, conf)
		})

		ap.GET("/communities/:id", func(c *gin.Context) {
			HandleCommunityActor(c, database, conf)
		})
		ap.GET("/communities/:id/outbox", func(c *gin.Context) {
			HandleCommunityOutbox(c, database, conf)
		})
		ap.POST("/communities/:id/inbox", apLimiter, maxBodySize, func(c *gin.Context) {
			HandleCommunityInbox(c, database, conf)
		})

		ap.POST("/shared/inbox", apLimiter, maxBodySize, func(c *gin.Context) {
			HandleSharedInbox(c, database, conf)
		})
	}

	return g
}

// Router runs the federation HTTP server until it fails.
func Router(database *db.DB, conf *util.AppConfig) error {
	log.Printf("Starting federation server on %s:%d", conf.Conf.Host, conf.Conf.HttpPort)
	g := NewRouter(database, conf)
	return g.Run(fmt.Sprintf("%s:%d", conf.Conf.Host, conf.Conf.HttpPort))
}

// requestBaseURL derives the public base URL from the request itself so a
// single process can serve any host a proxy routes to it.
func requestBaseURL(c *gin.Context, conf *util.AppConfig) string {
	host := c.Request.Host
	if host == "" {
		return conf.BaseURL()
	}

	scheme := "http"
	if conf.Conf.Secure {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return fmt.Sprintf("%s://%s", scheme, host)
}
