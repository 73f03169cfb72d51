// Package server assembles the HTTP API around a ConnectionManager.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/docsync/internal/config"
	"github.com/gogotex/docsync/internal/events"
	"github.com/gogotex/docsync/internal/odm"
	"github.com/gogotex/docsync/internal/people"
	"github.com/gogotex/docsync/pkg/logger"
	"github.com/gogotex/docsync/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the router serves. Only Conn and People are required.
type Deps struct {
	Conn   *odm.ConnectionManager
	People *people.Collection
	// Verifier protects /api when set.
	Verifier middleware.Verifier
	Limiter  middleware.Limiter
	Events   *events.Publisher
	Gatherer prometheus.Gatherer
}

var startTime = time.Now()

// NewRouter builds the gin engine.
func NewRouter(d Deps) *gin.Engine {
	log := logger.Named("server")
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness: the store must answer a ping through the current handle set
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		deps := gin.H{"store": true}
		status, code := "ready", http.StatusOK
		if err := d.Conn.Ping(ctx); err != nil {
			log.Warnf("readiness ping failed: %v", err)
			deps["store"] = false
			status, code = "not_ready", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":     status,
			"deps":       deps,
			"generation": d.Conn.Generation(),
			"uptime":     time.Since(startTime).String(),
		})
	})

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/")
	if d.Verifier != nil {
		api.Use(middleware.AuthMiddleware(d.Verifier))
	} else {
		log.Warnf("no token verifier configured; /api is unauthenticated")
	}
	if d.Limiter != nil {
		api.Use(middleware.RateLimit(d.Limiter))
	}
	people.RegisterRoutes(api, d.People)

	if d.Events != nil {
		api.GET("/api/events", func(c *gin.Context) {
			n, err := strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			list, err := d.Events.Recent(c.Request.Context(), n)
			if err != nil {
				log.Errorf("recent events: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "events unavailable"})
				return
			}
			if list == nil {
				list = []events.Message{}
			}
			c.JSON(http.StatusOK, list)
		})
	}
	return r
}

// Run serves h on cfg.Addr() until ctx is cancelled, then shuts down
// gracefully.
func Run(ctx context.Context, cfg config.ServerConfig, h http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
