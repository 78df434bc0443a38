package database

import (
	"context"
	"fmt"

	"github.com/kugelpos/transactional-core/domain/delivery"
)

// DeliveryRepository is the Postgres-backed domain/delivery.Repository.
// Each producer service owns its own table (status_tranlog_delivery for
// the cart service, status_terminallog_delivery for the terminal service),
// shared across tenants on the commons database, so rows are keyed
// by event_id alone — consumer ACK callbacks carry no tenant context.
type DeliveryRepository struct {
	repo  *Repository
	table string
}

func NewDeliveryRepository(repo *Repository, table string) *DeliveryRepository {
	return &DeliveryRepository{repo: repo, table: table}
}

func (r *DeliveryRepository) Create(ctx context.Context, d *delivery.DeliveryStatus) error {
	return GenericCreate(ctx, r.repo, r.table, d.TenantID, d.EventID, d, nil)
}

func (r *DeliveryRepository) Get(ctx context.Context, eventID string) (*delivery.DeliveryStatus, error) {
	query := fmt.Sprintf(`SELECT data FROM %s WHERE id = $1`, r.table)
	var data []byte
	err := r.repo.db.QueryRowxContext(ctx, query, eventID).Scan(&data)
	if scanNoRows(err) {
		return nil, NewNotFoundError(r.table, eventID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get delivery status: %v", ErrDatabaseError, err)
	}
	var ds delivery.DeliveryStatus
	if err := unmarshalDoc(data, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}

func (r *DeliveryRepository) Update(ctx context.Context, d *delivery.DeliveryStatus) error {
	data, err := marshalDoc(d)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET data = $1, updated_at = now() WHERE id = $2`, r.table)
	res, err := r.repo.db.ExecContext(ctx, query, data, d.EventID)
	if err != nil {
		return fmt.Errorf("%w: update delivery status: %v", ErrDatabaseError, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NewNotFoundError(r.table, d.EventID)
	}
	return nil
}

func (r *DeliveryRepository) ListNotDelivered(ctx context.Context, createdAfterUnix int64) ([]delivery.DeliveryStatus, error) {
	query := fmt.Sprintf(`
		SELECT data FROM %s
		WHERE data->>'overall_status' != 'delivered'
		  AND created_at >= to_timestamp($1)
		ORDER BY created_at`, r.table)
	return scanDocRows[delivery.DeliveryStatus](ctx, r.repo.db, query, createdAfterUnix)
}
