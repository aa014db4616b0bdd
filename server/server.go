package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/EPecherkin/sloth-chat/api"
	"github.com/EPecherkin/sloth-chat/logger"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

const shutdownTimeout = 10 * time.Second

func NewRouter(a *api.Api, lgr *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(lgr), gin.Recovery())
	a.Register(router)
	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, router *gin.Engine, port string, lgr *slog.Logger) error {
	lgr = lgr.With(logger.CALLER, "server")

	srv := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		<-ctx.Done()
		lgr.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			lgr.With(logger.ERROR, errors.WithStack(err)).Error("graceful shutdown failed")
		}
	}()

	lgr.With("port", port).Info("listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", errors.WithStack(err))
	}
	return nil
}

func requestLogger(lgr *slog.Logger) gin.HandlerFunc {
	lgr = lgr.With(logger.CALLER, "http")
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()
		lgr.With(
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(startedAt).Milliseconds(),
		).Info("request")
	}
}
