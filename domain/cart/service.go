package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kugelpos/transactional-core/domain/master"
	"github.com/kugelpos/transactional-core/domain/money"
	"github.com/kugelpos/transactional-core/domain/payment"
	"github.com/kugelpos/transactional-core/infrastructure/errors"
)

// Service implements the cart operations, enforcing
// the FSM on every mutation and re-running the pricing engine afterwards.
type Service struct {
	repo       Repository
	masters    *master.Cache
	terminals  TerminalLookup
	payments   *payment.Registry
	roundMode  money.Mode
}

func NewService(repo Repository, masters *master.Cache, terminals TerminalLookup, payments *payment.Registry, roundMode money.Mode) *Service {
	if roundMode == "" {
		roundMode = money.ModeBankers
	}
	return &Service{repo: repo, masters: masters, terminals: terminals, payments: payments, roundMode: roundMode}
}

// Create opens a new cart on a terminal. Preconditions: the terminal is
// Opened and a staff member is signed in; there is no existing cart state
// to check.
func (s *Service) Create(ctx context.Context, tenantID, storeCode string, terminalNo int, transactionType TransactionType) (*Cart, error) {
	info, err := s.terminals.GetTerminalInfo(ctx, tenantID, storeCode, terminalNo)
	if err != nil {
		return nil, err
	}
	if info.Status != "Opened" {
		return nil, errors.TerminalStatusError("terminal must be opened to create a cart")
	}
	if !info.SignedIn() {
		return nil, errors.TerminalNotSignedIn()
	}

	c := &Cart{
		CartID:          uuid.NewString(),
		TenantID:        tenantID,
		StoreCode:       storeCode,
		TerminalNo:      terminalNo,
		Status:          StatusIdle,
		TransactionType: transactionType,
		Staff:           info.Staff,
		BusinessDate:    info.BusinessDate,
		OpenCounter:     info.OpenCounter,
		BusinessCounter: info.BusinessCounter,
		Masters:         Masters{Items: map[string]master.Item{}, Taxes: map[string]master.Tax{}, Payments: map[string]master.PaymentMethod{}},
		CreatedAt:       time.Now().UTC(),
	}
	if transactionType == "" {
		c.TransactionType = TransactionNormalSales
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Get fetches a cart, verifying it has left Initial/never-existed state
// (any non-terminal status is acceptable).
func (s *Service) Get(ctx context.Context, tenantID, cartID string) (*Cart, error) {
	c, err := s.repo.Get(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if err := CheckEventSequence(c.Status, EventGet); err != nil {
		return nil, err
	}
	return c, nil
}

// Cancel terminates the cart without billing it.
func (s *Service) Cancel(ctx context.Context, tenantID, cartID string) (*Cart, error) {
	c, err := s.repo.Get(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if err := CheckEventSequence(c.Status, EventCancel); err != nil {
		return nil, err
	}
	c.Status = NextStatus(c.Status, EventCancel)
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ItemInput is the caller-supplied AddItem payload.
type ItemInput struct {
	ItemCode          string
	Quantity          float64
	UnitPriceOverride *int64
}

// AddItem appends a line item, freezing the item-master row into the
// cart's own Masters snapshot.
func (s *Service) AddItem(ctx context.Context, tenantID, cartID string, in ItemInput) (*Cart, error) {
	c, err := s.repo.Get(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if err := CheckEventSequence(c.Status, EventAddItem); err != nil {
		return nil, err
	}
	if in.Quantity <= 0 {
		return nil, errors.Validation("quantity must be positive")
	}

	item, err := s.masters.Item(ctx, tenantID, in.ItemCode)
	if err != nil {
		return nil, err
	}
	s.freezeItem(c, item)

	tax, err := s.masters.Tax(ctx, tenantID, item.TaxCode)
	if err == nil {
		s.freezeTax(c, tax)
	}

	line := LineItem{
		LineNo:               c.NextLineNo(),
		ItemCode:             item.ItemCode,
		CategoryCode:         item.CategoryCode,
		Description:          item.Description,
		UnitPrice:            item.UnitPrice,
		Quantity:             in.Quantity,
		TaxCode:              item.TaxCode,
		IsDiscountRestricted: item.IsDiscountRestricted,
	}
	if in.UnitPriceOverride != nil && *in.UnitPriceOverride != item.UnitPrice {
		orig := item.UnitPrice
		line.UnitPriceOriginal = &orig
		line.UnitPrice = *in.UnitPriceOverride
		line.IsUnitPriceChanged = true
	}
	c.LineItems = append(c.LineItems, line)

	if err := s.reprice(ctx, c); err != nil {
		return nil, err
	}
	c.Status = NextStatus(c.Status, EventAddItem)
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) freezeItem(c *Cart, item master.Item) {
	if c.Masters.Items == nil {
		c.Masters.Items = map[string]master.Item{}
	}
	c.Masters.Items[item.ItemCode] = item
}

func (s *Service) freezeTax(c *Cart, tax master.Tax) {
	if c.Masters.Taxes == nil {
		c.Masters.Taxes = map[string]master.Tax{}
	}
	c.Masters.Taxes[tax.TaxCode] = tax
}

// findLine locates a non-cancelled line by its 1-based line number.
func findLine(c *Cart, lineNo int) (*LineItem, error) {
	for i := range c.LineItems {
		if c.LineItems[i].LineNo == lineNo {
			if c.LineItems[i].IsCancelled {
				return nil, errors.InvalidOperation(fmt.Sprintf("line %d is already cancelled", lineNo))
			}
			return &c.LineItems[i], nil
		}
	}
	return nil, errors.NotFound("line item", fmt.Sprintf("%d", lineNo))
}

// CancelLineItem marks a line cancelled; the cart state is unchanged.
func (s *Service) CancelLineItem(ctx context.Context, tenantID, cartID string, lineNo int) (*Cart, error) {
	c, err := s.repo.Get(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if err := CheckEventSequence(c.Status, EventCancelLineItem); err != nil {
		return nil, err
	}
	line, err := findLine(c, lineNo)
	if err != nil {
		return nil, err
	}
	line.IsCancelled = true

	if err := s.reprice(ctx, c); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdateQuantity changes a line's quantity.
func (s *Service) UpdateQuantity(ctx context.Context, tenantID, cartID string, lineNo int, quantity float64) (*Cart, error) {
	if quantity <= 0 {
		return nil, errors.Validation("quantity must be positive")
	}
	c, err := s.repo.Get(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if err := CheckEventSequence(c.Status, EventUpdateQuantity); err != nil {
		return nil, err
	}
	line, err := findLine(c, lineNo)
	if err != nil {
		return nil, err
	}
	line.Quantity = quantity

	if err := s.reprice(ctx, c); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// UpdatePrice overrides a line's unit price.
func (s *Service) UpdatePrice(ctx context.Context, tenantID, cartID string, lineNo int, unitPrice int64) (*Cart, error) {
	if unitPrice < 0 {
		return nil, errors.Validation("unit price cannot be negative")
	}
	c, err := s.repo.Get(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if err := CheckEventSequence(c.Status, EventUpdatePrice); err != nil {
		return nil, err
	}
	line, err := findLine(c, lineNo)
	if err != nil {
		return nil, err
	}
	if !line.IsUnitPriceChanged {
		orig := line.UnitPrice
		line.UnitPriceOriginal = &orig
	}
	line.UnitPrice = unitPrice
	line.IsUnitPriceChanged = true

	if err := s.reprice(ctx, c); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddLineDiscount appends a discount to one line.
func (s *Service) AddLineDiscount(ctx context.Context, tenantID, cartID string, lineNo int, d Discount) (*Cart, error) {
	c, err := s.repo.Get(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if err := CheckEventSequence(c.Status, EventAddLineDiscount); err != nil {
		return nil, err
	}
	line, err := findLine(c, lineNo)
	if err != nil {
		return nil, err
	}
	if line.IsDiscountRestricted {
		return nil, errors.InvalidOperation("line item does not permit discounts")
	}
	line.Discounts = append(line.Discounts, d)

	if err := s.reprice(ctx, c); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddCartDiscount appends a subtotal-level discount.
func (s *Service) AddCartDiscount(ctx context.Context, tenantID, cartID string, d Discount) (*Cart, error) {
	c, err := s.repo.Get(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if err := CheckEventSequence(c.Status, EventAddCartDiscount); err != nil {
		return nil, err
	}
	c.SubtotalDiscounts = append(c.SubtotalDiscounts, d)

	if err := s.reprice(ctx, c); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Subtotal transitions EnteringItem -> Paying, freezing totals for payment.
func (s *Service) Subtotal(ctx context.Context, tenantID, cartID string) (*Cart, error) {
	c, err := s.repo.Get(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if err := CheckEventSequence(c.Status, EventSubtotal); err != nil {
		return nil, err
	}
	if len(c.nonCancelledLines()) == 0 {
		return nil, errors.Validation("cart has no items to subtotal")
	}

	if err := s.reprice(ctx, c); err != nil {
		return nil, err
	}
	c.Status = NextStatus(c.Status, EventSubtotal)
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddPayment applies a sequential list of payments against the running
// balance: each applied in turn; first failure aborts the whole
// list without partial commit — the caller re-reads the persisted cart,
// which still reflects the state before this call, to see what happened.
func (s *Service) AddPayment(ctx context.Context, tenantID, cartID string, requests []PaymentRequest) (*Cart, error) {
	c, err := s.repo.Get(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if err := CheckEventSequence(c.Status, EventAddPayment); err != nil {
		return nil, err
	}

	working := *c
	working.Payments = append([]Payment(nil), c.Payments...)
	working.LineItems = append([]LineItem(nil), c.LineItems...)
	working.Taxes = append([]Tax(nil), c.Taxes...)

	for _, req := range requests {
		method, err := s.masters.PaymentMethod(ctx, tenantID, req.PaymentCode)
		if err != nil {
			return nil, err
		}
		s.freezePaymentMethod(&working, method)

		result, err := s.payments.Pay(payment.MethodCapabilities{
			PaymentCode:    method.PaymentCode,
			Description:    method.Description,
			HandlerType:    method.HandlerType,
			CanRefund:      method.CanRefund,
			CanDepositOver: method.CanDepositOver,
			CanChange:      method.CanChange,
		}, working.Sales.BalanceAmount, payment.Request{
			PaymentCode:   req.PaymentCode,
			Amount:        req.Amount,
			DepositAmount: req.DepositAmount,
			Detail:        req.Detail,
		})
		if err != nil {
			return nil, err
		}

		working.Payments = append(working.Payments, Payment{
			PaymentNo:     working.NextPaymentNo(),
			PaymentCode:   req.PaymentCode,
			Description:   result.Description,
			Amount:        result.Amount,
			DepositAmount: result.DepositAmount,
			Detail:        req.Detail,
		})
		working.Sales.ChangeAmount += result.ChangeAmount

		if err := s.reprice(ctx, &working); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Save(ctx, &working); err != nil {
		return nil, err
	}
	return &working, nil
}

func (s *Service) freezePaymentMethod(c *Cart, method master.PaymentMethod) {
	if c.Masters.Payments == nil {
		c.Masters.Payments = map[string]master.PaymentMethod{}
	}
	c.Masters.Payments[method.PaymentCode] = method
}

// ResumeItemEntry drops payments and returns to item entry.
func (s *Service) ResumeItemEntry(ctx context.Context, tenantID, cartID string) (*Cart, error) {
	c, err := s.repo.Get(ctx, tenantID, cartID)
	if err != nil {
		return nil, err
	}
	if err := CheckEventSequence(c.Status, EventResumeItemEntry); err != nil {
		return nil, err
	}
	c.Payments = nil
	c.Sales.ChangeAmount = 0

	if err := s.reprice(ctx, c); err != nil {
		return nil, err
	}
	c.Status = NextStatus(c.Status, EventResumeItemEntry)
	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// reprice re-runs the deterministic pricing engine against the cart's own
// frozen tax-master snapshot.
func (s *Service) reprice(ctx context.Context, c *Cart) error {
	return Subtotal(ctx, c, func(ctx context.Context, taxCode string) (master.Tax, error) {
		if tax, ok := c.Masters.Taxes[taxCode]; ok {
			return tax, nil
		}
		tax, err := s.masters.Tax(ctx, c.TenantID, taxCode)
		if err != nil {
			return master.Tax{}, err
		}
		s.freezeTax(c, tax)
		return tax, nil
	}, s.roundMode)
}
