package payment

import (
	"testing"

	"github.com/kugelpos/transactional-core/infrastructure/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	cashMethod     = MethodCapabilities{PaymentCode: "01", Description: "Cash", HandlerType: "cash", CanChange: true}
	strictCash     = MethodCapabilities{PaymentCode: "03", Description: "Voucher", HandlerType: "cash", CanChange: false}
	creditMethod   = MethodCapabilities{PaymentCode: "02", Description: "Credit", HandlerType: "cashless"}
	flexibleCredit = MethodCapabilities{PaymentCode: "04", Description: "Prepaid", HandlerType: "cashless", CanDepositOver: true}
)

func errorCode(t *testing.T, err error) errors.ErrorCode {
	t.Helper()
	se := errors.GetServiceError(err)
	require.NotNil(t, se)
	return se.Code
}

func TestCashStrategy_ChangeComputation(t *testing.T) {
	result, err := CashStrategy{}.Pay(cashMethod, 220, Request{PaymentCode: "01", Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(220), result.Amount)
	assert.Equal(t, int64(780), result.ChangeAmount)
	require.NotNil(t, result.DepositAmount)
	assert.Equal(t, int64(1000), *result.DepositAmount)
}

func TestCashStrategy_ExactTenderNoChange(t *testing.T) {
	result, err := CashStrategy{}.Pay(cashMethod, 500, Request{PaymentCode: "01", Amount: 500})
	require.NoError(t, err)
	assert.Equal(t, int64(500), result.Amount)
	assert.Equal(t, int64(0), result.ChangeAmount)
}

func TestCashStrategy_BalanceZeroRejected(t *testing.T) {
	_, err := CashStrategy{}.Pay(cashMethod, 0, Request{PaymentCode: "01", Amount: 100})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeBalanceZero, errorCode(t, err))
}

func TestCashStrategy_NoChangeMethodRejectsOverdeposit(t *testing.T) {
	_, err := CashStrategy{}.Pay(strictCash, 300, Request{PaymentCode: "03", Amount: 500})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDepositOver, errorCode(t, err))
}

func TestCashStrategy_ExplicitDepositAmountWins(t *testing.T) {
	deposit := int64(1000)
	result, err := CashStrategy{}.Pay(cashMethod, 220, Request{PaymentCode: "01", Amount: 220, DepositAmount: &deposit})
	require.NoError(t, err)
	assert.Equal(t, int64(220), result.Amount)
	assert.Equal(t, int64(780), result.ChangeAmount)
}

func TestCashlessStrategy_NeverReturnsChange(t *testing.T) {
	result, err := CashlessStrategy{}.Pay(creditMethod, 500, Request{PaymentCode: "02", Amount: 300})
	require.NoError(t, err)
	assert.Equal(t, int64(300), result.Amount)
	assert.Equal(t, int64(0), result.ChangeAmount)
	assert.Nil(t, result.DepositAmount)
}

func TestCashlessStrategy_OverdepositRejectedUnlessPermitted(t *testing.T) {
	_, err := CashlessStrategy{}.Pay(creditMethod, 100, Request{PaymentCode: "02", Amount: 200})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDepositOver, errorCode(t, err))

	result, err := CashlessStrategy{}.Pay(flexibleCredit, 100, Request{PaymentCode: "04", Amount: 200})
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.Amount, "credits cap at the outstanding balance")
}

func TestCashlessStrategy_BalanceZeroRejected(t *testing.T) {
	_, err := CashlessStrategy{}.Pay(creditMethod, 0, Request{PaymentCode: "02", Amount: 100})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeBalanceZero, errorCode(t, err))
}

func TestRegistry_DispatchesByHandlerType(t *testing.T) {
	registry := NewRegistry()

	result, err := registry.Pay(cashMethod, 100, Request{PaymentCode: "01", Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.Amount)

	_, err = registry.Pay(MethodCapabilities{PaymentCode: "99", HandlerType: "crypto"}, 100, Request{PaymentCode: "99", Amount: 100})
	require.Error(t, err)
}

func TestRegistry_RegisterCustomHandler(t *testing.T) {
	registry := NewRegistry()
	registry.Register("gift", CashlessStrategy{})

	result, err := registry.Pay(MethodCapabilities{PaymentCode: "G1", HandlerType: "gift"}, 50, Request{PaymentCode: "G1", Amount: 50})
	require.NoError(t, err)
	assert.Equal(t, int64(50), result.Amount)
}
