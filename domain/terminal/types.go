// Package terminal implements the Terminal Service: registry,
// open/close lifecycle, cash in/out, and session counters.
package terminal

import (
	"fmt"
	"time"

	"github.com/kugelpos/transactional-core/domain/master"
)

// Status is one of the terminal lifecycle states.
type Status string

const (
	StatusIdle   Status = "Idle"
	StatusOpened Status = "Opened"
	StatusClosed Status = "Closed"
)

// FunctionMode is the terminal's current UI mode — tracked here
// because the cart/terminal precondition checks key off it, even though
// the UI itself is out of scope.
type FunctionMode string

const (
	ModeMainMenu      FunctionMode = "MainMenu"
	ModeOpenTerminal   FunctionMode = "OpenTerminal"
	ModeSales          FunctionMode = "Sales"
	ModeReturns        FunctionMode = "Returns"
	ModeVoid           FunctionMode = "Void"
	ModeCashInOut      FunctionMode = "CashInOut"
	ModeCloseTerminal  FunctionMode = "CloseTerminal"
)

// Terminal is the per-terminal registry entry and lifecycle state.
type Terminal struct {
	TenantID       string       `json:"tenant_id"`
	StoreCode      string       `json:"store_code"`
	TerminalNo     int          `json:"terminal_no"`
	Description    string       `json:"description"`
	Status         Status       `json:"status"`
	FunctionMode   FunctionMode `json:"function_mode"`
	BusinessDate   string       `json:"business_date"`
	OpenCounter    int          `json:"open_counter"`
	BusinessCounter int         `json:"business_counter"`
	InitialAmount  *int64       `json:"initial_amount,omitempty"`
	PhysicalAmount *int64       `json:"physical_amount,omitempty"`
	Staff          master.Staff `json:"staff"`
	APIKey         string       `json:"api_key"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// ID is the derived string identifier "{tenant}-{store}-{no}".
func (t Terminal) ID() string {
	return fmt.Sprintf("%s-%s-%d", t.TenantID, t.StoreCode, t.TerminalNo)
}

// SignedIn reports whether a staff member is currently signed in.
func (t Terminal) SignedIn() bool { return t.Staff.ID != "" }

// CashInOutLog is the immutable cash-movement record.
type CashInOutLog struct {
	TenantID         string    `json:"tenant_id"`
	StoreCode        string    `json:"store_code"`
	TerminalNo       int       `json:"terminal_no"`
	BusinessDate     string    `json:"business_date"`
	OpenCounter      int       `json:"open_counter"`
	GenerateDateTime time.Time `json:"generate_date_time"`
	Amount           int64     `json:"amount"` // signed: positive = in, negative = out
	Description      string    `json:"description"`
	Staff            master.Staff `json:"staff"`
}

// OpenCloseOperation distinguishes an open row from a close row.
type OpenCloseOperation string

const (
	OperationOpen  OpenCloseOperation = "open"
	OperationClose OpenCloseOperation = "close"
)

// OpenCloseLog is the immutable open/close record. Close rows embed
// the reconciliation snapshot the Report Service's gate checks against.
type OpenCloseLog struct {
	TenantID         string             `json:"tenant_id"`
	StoreCode        string             `json:"store_code"`
	TerminalNo       int                `json:"terminal_no"`
	BusinessDate     string             `json:"business_date"`
	OpenCounter      int                `json:"open_counter"`
	Operation        OpenCloseOperation `json:"operation"`
	GenerateDateTime time.Time          `json:"generate_date_time"`
	Staff            master.Staff       `json:"staff"`

	InitialAmount  *int64 `json:"initial_amount,omitempty"`
	PhysicalAmount *int64 `json:"physical_amount,omitempty"`

	CartTransactionCount     int       `json:"cart_transaction_count,omitempty"`
	CartTransactionLastNo    int64     `json:"cart_transaction_last_no,omitempty"`
	CashInOutCount           int       `json:"cash_in_out_count,omitempty"`
	CashInOutLastDateTime    time.Time `json:"cash_in_out_last_datetime,omitempty"`
}
