// Package server exposes the HTTP surface: Connect services, the REST routes used by
// the web client, the payment notifier's callback, health and metrics.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mmynk/ubupresent/internal/auth"
	"github.com/mmynk/ubupresent/internal/middleware"
	"github.com/mmynk/ubupresent/internal/registry"
)

// ConnectRoute is a mounted Connect service, as returned by the apiconnect constructors.
type ConnectRoute struct {
	Path    string
	Handler http.Handler
}

// RouterDependencies collects handler dependencies.
type RouterDependencies struct {
	Health   HealthService
	Registry *registry.Registry
	Verifier auth.TokenVerifier
	Connect  []ConnectRoute

	// Metrics serves the Prometheus exposition; nil disables /metrics.
	Metrics http.Handler

	AllowedOrigins []string

	// CallbackSecret, when set, requires signed payment callbacks.
	CallbackSecret string
}

// NewRouter wires the HTTP routes exposed by the backend.
func NewRouter(logger *slog.Logger, deps RouterDependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	if len(deps.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     deps.AllowedOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Connect-Protocol-Version", "Connect-Timeout-Ms", middleware.CallbackSignatureHeader},
			ExposeHeaders:    []string{"Connect-Protocol-Version", "Connect-Timeout-Ms"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "UbuPresent API is running."})
	})

	r.GET("/healthz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if deps.Health != nil {
			if err := deps.Health.Probe(ctx); err != nil {
				logger.Error("Health probe failed", "error", err)
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	if deps.Registry != nil {
		h := &handlers{
			registry:       deps.Registry,
			callbackSecret: deps.CallbackSecret,
			logger:         logger,
		}

		api := r.Group("/api")
		api.GET("/events/:id", h.getEvent)
		api.POST("/payments/initiate", optionalAuth(deps.Verifier), h.initiatePayment)
		api.POST("/payments/callback", h.paymentCallback)

		hosts := api.Group("")
		hosts.Use(requireAuth(deps.Verifier))
		{
			hosts.GET("/protected", h.protected)
			hosts.POST("/events", h.createEvent)
			hosts.GET("/events", h.listHostEvents)
		}
	}

	for _, route := range deps.Connect {
		r.Any(route.Path+"*procedure", gin.WrapH(route.Handler))
	}

	return r
}

// requestLogger records one line per request once the response is written.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("Request completed", attrs...)
			return
		}
		logger.Info("Request completed", attrs...)
	}
}

// requireAuth rejects requests without a valid bearer token.
func requireAuth(verifier auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			abortWithError(c, http.StatusUnauthorized, "Authentication failed", "authentication is not configured")
			return
		}
		token, err := auth.BearerToken(c.GetHeader("Authorization"))
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "Authentication failed", err.Error())
			return
		}
		principal, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "Authentication failed", err.Error())
			return
		}
		c.Request = c.Request.WithContext(middleware.WithPrincipal(c.Request.Context(), principal))
		c.Next()
	}
}

// optionalAuth attaches the principal when a valid token is present.
func optionalAuth(verifier auth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier != nil {
			if token, err := auth.BearerToken(c.GetHeader("Authorization")); err == nil {
				if principal, err := verifier.Verify(c.Request.Context(), token); err == nil {
					c.Request = c.Request.WithContext(middleware.WithPrincipal(c.Request.Context(), principal))
				}
			}
		}
		c.Next()
	}
}

func abortWithError(c *gin.Context, status int, message, details string) {
	body := gin.H{"message": message}
	if details = strings.TrimSpace(details); details != "" {
		body["details"] = details
	}
	c.AbortWithStatusJSON(status, body)
}
