package payment

import "github.com/kugelpos/transactional-core/infrastructure/errors"

// CashlessStrategy handles card/e-money style codes: no change is ever
// returned, so an amount above the balance is only allowed when the
// method explicitly permits an over-deposit, and never credits more than
// the outstanding balance.
type CashlessStrategy struct{}

func (CashlessStrategy) Pay(method MethodCapabilities, balance int64, req Request) (Result, error) {
	if balance == 0 {
		return Result{}, errors.BalanceZero()
	}
	if req.Amount < 0 {
		return Result{}, errors.Validation("amount cannot be negative")
	}

	credited := req.Amount
	if req.Amount > balance {
		if !method.CanDepositOver {
			return Result{}, errors.DepositOver()
		}
		credited = balance
	}
	if credited > balance {
		return Result{}, errors.BalanceMinus()
	}

	return Result{Amount: credited, Description: method.Description}, nil
}
