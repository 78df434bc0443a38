package tranlog

import "context"

// Repository persists the immutable `log_tran` collection. Once
// written, a row is never updated.
type Repository interface {
	Create(ctx context.Context, t *TransactionLog) error
	Get(ctx context.Context, tenantID, storeCode string, terminalNo int, transactionNo int64) (*TransactionLog, error)
	List(ctx context.Context, filter ListFilter) ([]TransactionLog, error)
	CountAndLastNo(ctx context.Context, tenantID, storeCode string, terminalNo int, businessDate string, openCounter int) (count int, lastNo int64, err error)
}

// ListFilter scopes a tranlog query (used by the cart service's
// transaction listing endpoints).
type ListFilter struct {
	TenantID     string
	StoreCode    string
	TerminalNo   *int
	BusinessDate string
	FromDate     string
	ToDate       string
	OpenCounter  *int
	ExcludeCancelled bool
}

// StatusRepository persists the mutable `status_transaction` collection.
type StatusRepository interface {
	Get(ctx context.Context, tenantID, storeCode string, terminalNo int, transactionNo int64) (*TransactionStatus, error)
	Upsert(ctx context.Context, status *TransactionStatus) error
}

// GetOrDefault returns the stored status, or a zero-value TransactionStatus
// (nothing voided/refunded yet) when none exists.
func GetOrDefault(ctx context.Context, repo StatusRepository, tenantID, storeCode string, terminalNo int, transactionNo int64) (*TransactionStatus, error) {
	status, err := repo.Get(ctx, tenantID, storeCode, terminalNo, transactionNo)
	if err == nil {
		return status, nil
	}
	return &TransactionStatus{
		TenantID:      tenantID,
		StoreCode:     storeCode,
		TerminalNo:    terminalNo,
		TransactionNo: transactionNo,
	}, nil
}
