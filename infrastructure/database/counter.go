package database

import (
	"context"
	"fmt"
)

// NextCounterValue atomically increments and returns the named counter for
// (tenantID, store_code, terminal_no), creating it at 1 on first use. Backs
// the per-terminal receipt/transaction counters, where two
// concurrent sales on the same terminal must never observe the same number.
func (r *Repository) NextCounterValue(ctx context.Context, tenantID, counterName, storeCode string, terminalNo int) (int64, error) {
	query := `
		INSERT INTO transaction_counters (tenant_id, counter_name, store_code, terminal_no, value)
		VALUES ($1, $2, $3, $4, 1)
		ON CONFLICT (tenant_id, counter_name, store_code, terminal_no)
		DO UPDATE SET value = transaction_counters.value + 1
		RETURNING value`

	var value int64
	if err := r.db.QueryRowxContext(ctx, query, tenantID, counterName, storeCode, terminalNo).Scan(&value); err != nil {
		return 0, fmt.Errorf("%w: next counter value for %s: %v", ErrDatabaseError, counterName, err)
	}
	return value, nil
}

// ResetCounter zeroes a counter, creating it at 0 if absent. Nothing in this
// module calls it: the terminal service keeps each business day's open
// counter under a date-suffixed counter name instead.
func (r *Repository) ResetCounter(ctx context.Context, tenantID, counterName, storeCode string, terminalNo int) error {
	query := `
		INSERT INTO transaction_counters (tenant_id, counter_name, store_code, terminal_no, value)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (tenant_id, counter_name, store_code, terminal_no)
		DO UPDATE SET value = 0`

	_, err := r.db.ExecContext(ctx, query, tenantID, counterName, storeCode, terminalNo)
	if err != nil {
		return fmt.Errorf("%w: reset counter %s: %v", ErrDatabaseError, counterName, err)
	}
	return nil
}
