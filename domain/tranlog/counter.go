package tranlog

import "context"

// CounterType distinguishes the two per-terminal monotonic counters.
type CounterType string

const (
	CounterTransaction CounterType = "transaction"
	CounterReceipt     CounterType = "receipt"
)

// CounterRepository provides the atomic find-and-modify increment every
// bill/void/return allocates a number from; no lock is needed beyond this
// atomic operation.
type CounterRepository interface {
	NextValue(ctx context.Context, tenantID string, counterType CounterType, storeCode string, terminalNo int) (int64, error)
}

// AllocateTransactionNo returns the next strictly-increasing transaction
// number for the terminal. Gaps after an aborted bill are acceptable;
// contiguity is not guaranteed.
func AllocateTransactionNo(ctx context.Context, counters CounterRepository, tenantID, storeCode string, terminalNo int) (int64, error) {
	return counters.NextValue(ctx, tenantID, CounterTransaction, storeCode, terminalNo)
}

// AllocateReceiptNo returns the next receipt number, wrapped within
// [startValue, endValue].
// The underlying counter keeps incrementing without bound; only the
// receipt number presented on paper wraps.
func AllocateReceiptNo(ctx context.Context, counters CounterRepository, tenantID, storeCode string, terminalNo int, startValue, endValue int64) (int64, error) {
	raw, err := counters.NextValue(ctx, tenantID, CounterReceipt, storeCode, terminalNo)
	if err != nil {
		return 0, err
	}
	if endValue <= startValue {
		return raw, nil
	}
	span := endValue - startValue + 1
	return startValue + ((raw - 1) % span), nil
}
