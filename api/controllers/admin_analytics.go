package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/smm-storefront/api/responses"
	"github.com/angelmondragon/smm-storefront/internal/analytics"
	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/logger"
)

const (
	dayLayout           = "2006-01-02"
	defaultAnalyticsLag = 30 * 24 * time.Hour
)

// EventCounter reads per-day order event counts from the warehouse.
type EventCounter interface {
	EventCounts(ctx context.Context, from, to time.Time) ([]analytics.DailyEventCount, error)
}

type eventCountsResponse struct {
	From   string                      `json:"from"`
	To     string                      `json:"to"`
	Counts []analytics.DailyEventCount `json:"counts"`
}

// AdminOrderEventCounts handles GET /admin/analytics/events. from and to are
// inclusive UTC dates; both default to the last 30 days.
func AdminOrderEventCounts(svc EventCounter, logg *logger.Logger, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeConfiguration, "analytics warehouse not configured"))
			return
		}

		today := now().UTC().Truncate(24 * time.Hour)
		from, err := parseDay(r.URL.Query().Get("from"), today.Add(-defaultAnalyticsLag))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid from"))
			return
		}
		to, err := parseDay(r.URL.Query().Get("to"), today)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid to"))
			return
		}

		counts, err := svc.EventCounts(r.Context(), from, to.AddDate(0, 0, 1))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, eventCountsResponse{
			From:   from.Format(dayLayout),
			To:     to.Format(dayLayout),
			Counts: counts,
		})
	}
}

func parseDay(raw string, fallback time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return time.Parse(dayLayout, raw)
}

var _ EventCounter = (*analytics.QueryService)(nil)
