package delivery

import "context"

// Repository persists `status_tranlog_delivery` / `status_terminallog_delivery`
// — shared across tenants on a commons database.
type Repository interface {
	Create(ctx context.Context, d *DeliveryStatus) error
	Get(ctx context.Context, eventID string) (*DeliveryStatus, error)
	Update(ctx context.Context, d *DeliveryStatus) error
	// ListNotDelivered returns every row whose overall status is not yet
	// `delivered`, within the sweep's UNDELIVERED_CHECK_PERIOD_IN_HOURS
	// lookback window.
	ListNotDelivered(ctx context.Context, createdAfterUnix int64) ([]DeliveryStatus, error)
}
