package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	cloudbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
)

// MaxRange bounds a single event count query.
const MaxRange = 366 * 24 * time.Hour

const eventCountsSQL = `
SELECT
  FORMAT_DATE('%%F', DATE(occurred_at)) AS day,
  event_type,
  SUM(order_count) AS orders
FROM %s
WHERE occurred_at >= @start AND occurred_at < @end
GROUP BY day, event_type
ORDER BY day ASC, event_type ASC
`

type querier interface {
	Query(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (*cloudbigquery.RowIterator, error)
	TableRef() string
}

// DailyEventCount is the number of orders touched by one event type on one
// UTC day.
type DailyEventCount struct {
	Day       string `bigquery:"day" json:"day"`
	EventType string `bigquery:"event_type" json:"event_type"`
	Orders    int64  `bigquery:"orders" json:"orders"`
}

// QueryService answers admin dashboard questions from the warehouse.
type QueryService struct {
	client querier
}

func NewQueryService(client querier) (*QueryService, error) {
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	return &QueryService{client: client}, nil
}

// EventCounts returns per-day, per-event order counts for [from, to).
func (s *QueryService) EventCounts(ctx context.Context, from, to time.Time) ([]DailyEventCount, error) {
	if err := ValidateRange(from, to); err != nil {
		return nil, err
	}
	iter, err := s.client.Query(ctx, fmt.Sprintf(eventCountsSQL, s.client.TableRef()), []cloudbigquery.QueryParameter{
		{Name: "start", Value: from.UTC()},
		{Name: "end", Value: to.UTC()},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "query order events")
	}
	out := []DailyEventCount{}
	for {
		var row DailyEventCount
		if err := iter.Next(&row); err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read order events")
		}
		out = append(out, row)
	}
	return out, nil
}

// ValidateRange rejects empty, inverted, or oversized windows.
func ValidateRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "from and to are required")
	}
	if !to.After(from) {
		return pkgerrors.New(pkgerrors.CodeValidation, "to must be after from")
	}
	if to.Sub(from) > MaxRange {
		return pkgerrors.New(pkgerrors.CodeValidation, "range must not exceed 366 days")
	}
	return nil
}
