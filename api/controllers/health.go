package controllers

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/smm-storefront/api/responses"
	"github.com/angelmondragon/smm-storefront/pkg/config"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is anything readiness checks can probe.
type Pinger interface {
	Ping(context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SMM-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the database and Redis concurrently.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbPinger, redisPinger Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-SMM-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]Pinger{"database": dbPinger, "redis": redisPinger}
		g, gctx := errgroup.WithContext(ctx)
		for name, pinger := range checks {
			if pinger == nil {
				continue
			}
			g.Go(func() error {
				if err := pinger.Ping(gctx); err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable").
						WithDetails(map[string]any{"check": name})
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
