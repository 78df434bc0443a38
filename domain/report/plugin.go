package report

import (
	"context"
	"time"

	"github.com/kugelpos/transactional-core/infrastructure/errors"
	"github.com/kugelpos/transactional-core/infrastructure/jsonquery"
)

// Plugin generates one ReportDocument for a Scope. Implementations fold
// already-materialised TranlogRows;
// "sales" is fully specified; "payment", "item" and "category" run the
// same fold over the same rows (see bucketPlugin) and do not regroup by
// item_code or category_code.
type Plugin interface {
	Generate(ctx context.Context, scope Scope) (ReportDocument, error)
}

// Registry dispatches report_type -> Plugin, mirroring the static
// dispatch-by-string-key pattern domain/payment.Registry already uses for
// handler_type.
type Registry struct {
	plugins map[string]Plugin
}

func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

func (r *Registry) Register(reportType string, p Plugin) {
	r.plugins[reportType] = p
}

func (r *Registry) Resolve(reportType string) (Plugin, error) {
	p, ok := r.plugins[reportType]
	if !ok {
		return nil, errors.Validation("unknown report_type: " + reportType)
	}
	return p, nil
}

func (r *Registry) Generate(ctx context.Context, scope Scope) (ReportDocument, error) {
	p, err := r.Resolve(scope.ReportType)
	if err != nil {
		return ReportDocument{}, err
	}
	return p.Generate(ctx, scope)
}

// SalesPlugin implements the fully-specified "sales" report_type:
// fold tranlog rows into gross/net/returns/discount/tax/payment buckets
// and join the cash block from the terminal's log sums.
type SalesPlugin struct {
	tranlogs TranlogSource
	cash     CashSource
	gate     *ReconciliationGate
	cashCodes map[string]bool
}

func NewSalesPlugin(tranlogs TranlogSource, cash CashSource, gate *ReconciliationGate, cashPaymentCodes map[string]bool) *SalesPlugin {
	return &SalesPlugin{tranlogs: tranlogs, cash: cash, gate: gate, cashCodes: cashPaymentCodes}
}

func (p *SalesPlugin) Generate(ctx context.Context, scope Scope) (ReportDocument, error) {
	if scope.TerminalNo != nil {
		gateCounter := -1 // no open_counter: the gate resolves the most recent close
		if scope.OpenCounter != nil {
			gateCounter = *scope.OpenCounter
		}
		if err := p.gate.Check(ctx, scope, *scope.TerminalNo, gateCounter); err != nil {
			return ReportDocument{}, err
		}
	} else if scope.TerminalNo == nil {
		if err := p.gate.CheckStore(ctx, scope); err != nil {
			return ReportDocument{}, err
		}
	}

	rows, err := p.tranlogs.ListRows(ctx, scope)
	if err != nil {
		return ReportDocument{}, err
	}
	if scope.Filter != "" {
		rows, err = filterRows(rows, scope.Filter)
		if err != nil {
			return ReportDocument{}, err
		}
	}

	var cashIn, cashOut, physical int64
	if scope.TerminalNo != nil {
		terminalNo := *scope.TerminalNo
		openCounter := 0
		if scope.OpenCounter != nil {
			openCounter = *scope.OpenCounter
		}
		cashIn, cashOut, err = p.cash.SumCashInOut(ctx, scope.TenantID, scope.StoreCode, terminalNo, scope.BusinessDate, openCounter)
		if err != nil {
			return ReportDocument{}, err
		}
		// A flash report on an open session has no close row yet; the
		// physical amount simply stays zero in that case.
		snap, err := p.cash.LatestCloseSnapshot(ctx, scope.TenantID, scope.StoreCode, terminalNo, openCounter, scope.BusinessDate)
		if err != nil {
			return ReportDocument{}, err
		}
		if snap != nil {
			physical = snap.PhysicalAmount
		}
	}

	doc := Summarize(rows, CashInputs{CashInAmount: cashIn, CashOutAmount: cashOut, PhysicalAmount: physical}, p.cashCodes)
	doc.TenantID = scope.TenantID
	doc.StoreCode = scope.StoreCode
	doc.TerminalNo = scope.TerminalNo
	doc.BusinessDate = scope.BusinessDate
	doc.ReportScope = scope.ReportScope
	doc.ReportType = "sales"
	doc.GenerateDateTime = time.Now().UTC()
	if scope.OpenCounter != nil {
		doc.OpenCounter = *scope.OpenCounter
	}
	return doc, nil
}

// bucketPlugin implements the "payment"/"item"/"category" report_types:
// it runs the same Summarize fold as the sales report, with an empty cash
// block and no cash payment codes, and labels the document with its
// report_type. The document carries the same tax and payment buckets as
// the sales report; there is no per-item or per-category grouping.
type bucketPlugin struct {
	tranlogs TranlogSource
	gate     *ReconciliationGate
	kind     string
}

func NewPaymentPlugin(tranlogs TranlogSource, gate *ReconciliationGate) Plugin {
	return &bucketPlugin{tranlogs: tranlogs, gate: gate, kind: "payment"}
}

func NewCategoryPlugin(tranlogs TranlogSource, gate *ReconciliationGate) Plugin {
	return &bucketPlugin{tranlogs: tranlogs, gate: gate, kind: "category"}
}

func NewItemPlugin(tranlogs TranlogSource, gate *ReconciliationGate) Plugin {
	return &bucketPlugin{tranlogs: tranlogs, gate: gate, kind: "item"}
}

func (p *bucketPlugin) Generate(ctx context.Context, scope Scope) (ReportDocument, error) {
	if scope.TerminalNo != nil {
		gateCounter := -1 // no open_counter: the gate resolves the most recent close
		if scope.OpenCounter != nil {
			gateCounter = *scope.OpenCounter
		}
		if err := p.gate.Check(ctx, scope, *scope.TerminalNo, gateCounter); err != nil {
			return ReportDocument{}, err
		}
	} else if scope.TerminalNo == nil {
		if err := p.gate.CheckStore(ctx, scope); err != nil {
			return ReportDocument{}, err
		}
	}

	rows, err := p.tranlogs.ListRows(ctx, scope)
	if err != nil {
		return ReportDocument{}, err
	}
	if scope.Filter != "" {
		rows, err = filterRows(rows, scope.Filter)
		if err != nil {
			return ReportDocument{}, err
		}
	}

	doc := Summarize(rows, CashInputs{}, nil)
	doc.TenantID = scope.TenantID
	doc.StoreCode = scope.StoreCode
	doc.TerminalNo = scope.TerminalNo
	doc.BusinessDate = scope.BusinessDate
	doc.ReportScope = scope.ReportScope
	doc.ReportType = p.kind
	doc.GenerateDateTime = time.Now().UTC()
	return doc, nil
}

// filterRows applies the optional jsonpath row filter ahead of the
// fold, letting callers scope a report to e.g. one category_code without
// a dedicated report_type.
func filterRows(rows []TranlogRow, filter string) ([]TranlogRow, error) {
	out := make([]TranlogRow, 0, len(rows))
	for _, row := range rows {
		ok, err := jsonquery.Filter(row, filter)
		if err != nil {
			return nil, errors.Validation("invalid report filter: " + err.Error())
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}
