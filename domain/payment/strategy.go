// Package payment implements the polymorphic payment handlers: a
// static, string-keyed registry of Strategy implementations, each taking
// the running cart balance and producing one payment row (plus, for
// cash-like methods, a change computation). The package is deliberately
// cart-agnostic — it only sees the balance and method capability flags —
// so domain/cart can depend on it without a import cycle.
package payment

import (
	"github.com/kugelpos/transactional-core/infrastructure/errors"
)

// MethodCapabilities is the payment-master capability view a strategy
// needs: can_refund, can_deposit_over, can_change.
type MethodCapabilities struct {
	PaymentCode    string
	Description    string
	HandlerType    string
	CanRefund      bool
	CanDepositOver bool
	CanChange      bool
}

// Request is one incoming payment to apply against a cart's balance.
type Request struct {
	PaymentCode   string
	Amount        int64  // deposited/tendered amount
	DepositAmount *int64 // cash-like only; pre-change tender, defaults to Amount
	Detail        string
}

// Result is the realised payment, ready to become a cart.Payment row, plus
// the change produced (if any) and the balance-credited amount.
type Result struct {
	Amount        int64
	DepositAmount *int64
	ChangeAmount  int64
	Description   string
}

// Strategy is the single operation every payment handler implements.
// balance is the cart's balance before this payment is applied.
type Strategy interface {
	Pay(method MethodCapabilities, balance int64, req Request) (Result, error)
}

// Registry is the static {handler_type -> Strategy} map populated at
// process start; no dynamic code loading, just a registry of concrete
// implementations.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry builds the default registry: cash (with change) and
// cashless (no change; deposit-over only where the method allows it).
func NewRegistry() *Registry {
	return &Registry{
		strategies: map[string]Strategy{
			"cash":     CashStrategy{},
			"cashless": CashlessStrategy{},
		},
	}
}

// Register adds or replaces a handler type, letting cmd/cartservice wire
// additional payment handlers (e.g. store credit, gift card) without
// touching this package.
func (r *Registry) Register(handlerType string, s Strategy) {
	r.strategies[handlerType] = s
}

// Resolve returns the Strategy for method.HandlerType.
func (r *Registry) Resolve(method MethodCapabilities) (Strategy, error) {
	s, ok := r.strategies[method.HandlerType]
	if !ok {
		return nil, errors.Validation("no payment handler registered for type: " + method.HandlerType)
	}
	return s, nil
}

// Pay resolves the handler for method and applies req against balance.
func (r *Registry) Pay(method MethodCapabilities, balance int64, req Request) (Result, error) {
	strategy, err := r.Resolve(method)
	if err != nil {
		return Result{}, err
	}
	return strategy.Pay(method, balance, req)
}
