package payment

import "github.com/kugelpos/transactional-core/infrastructure/errors"

// CashStrategy handles cash-like payment codes: the tendered amount may
// exceed the balance, with the excess returned as change:
// change_amount == sum(deposit_amount) - sum(amount) over cash-like
// payments.
type CashStrategy struct{}

func (CashStrategy) Pay(method MethodCapabilities, balance int64, req Request) (Result, error) {
	if balance == 0 {
		return Result{}, errors.BalanceZero()
	}

	deposit := req.Amount
	if req.DepositAmount != nil {
		deposit = *req.DepositAmount
	}
	if deposit < 0 {
		return Result{}, errors.Validation("deposit amount cannot be negative")
	}

	credited := deposit
	if deposit > balance {
		if !method.CanChange {
			return Result{}, errors.DepositOver()
		}
		credited = balance
	}
	if credited > balance {
		return Result{}, errors.BalanceMinus()
	}

	depositCopy := deposit
	return Result{
		Amount:        credited,
		DepositAmount: &depositCopy,
		ChangeAmount:  deposit - credited,
		Description:   method.Description,
	}, nil
}
