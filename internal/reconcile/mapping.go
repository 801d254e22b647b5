package reconcile

import (
	"strings"

	"github.com/angelmondragon/smm-storefront/pkg/enums"
)

var providerStatuses = map[string]enums.OrderStatus{
	"pending":     enums.OrderStatusPending,
	"processing":  enums.OrderStatusProcessing,
	"in progress": enums.OrderStatusInProgress,
	"inprogress":  enums.OrderStatusInProgress,
	"in_progress": enums.OrderStatusInProgress,
	"completed":   enums.OrderStatusCompleted,
	"complete":    enums.OrderStatusCompleted,
	"partial":     enums.OrderStatusPartial,
	"canceled":    enums.OrderStatusCanceled,
	"cancelled":   enums.OrderStatusCanceled,
	"refunded":    enums.OrderStatusRefunded,
}

// MapStatus translates a provider status string. Matching ignores case and
// surrounding space; ok is false for anything outside the table.
func MapStatus(raw string) (enums.OrderStatus, bool) {
	status, ok := providerStatuses[strings.ToLower(strings.TrimSpace(raw))]
	return status, ok
}
