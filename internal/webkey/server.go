package webkey

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RunServer exposes the key exchange over HTTP and blocks until ctx is
// cancelled; run in a goroutine. A failure to serve is logged, never
// fatal to the process.
func RunServer(ctx context.Context, svc *Service, addr string) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/keygen/:token", func(c *gin.Context) {
		key, already, err := svc.Exchange(c.Param("token"))
		switch {
		case errors.Is(err, ErrUnknownToken):
			c.String(http.StatusNotFound, "Couldn't find token")
			return
		case errors.Is(err, ErrTokenExpired):
			c.String(http.StatusForbidden, "URL is expired, please generate a new one")
			return
		case err != nil:
			log.Error().Err(err).Msg("key exchange failed")
			c.String(http.StatusInternalServerError, "Key exchange failed")
			return
		}

		if already {
			c.String(http.StatusOK, "You already have a key, forwarding to dashboard")
			return
		}

		c.SetCookie("key", key, int(keyTTL.Seconds()), "/", "", false, true)
		c.String(http.StatusOK, "Key generated and saved in your cookies, forwarding to dashboard")
	})

	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", addr).Msg("web key server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("web key server exited")
	}
}
