package cart

// PaymentRequest is one incoming payment to apply against a cart's
// balance.
type PaymentRequest struct {
	PaymentCode   string
	Amount        int64
	DepositAmount *int64
	Detail        string
}
