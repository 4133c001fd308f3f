// Package metrics computes derived underwriting figures from rendered spreads
// and extracted facts. Every metric resolves through an ordered source chain,
// and the chosen source is always carried in the result so a caller can
// explain why a number has a given value.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/store"
)

// SourcePending marks a metric none of whose sources produced a value.
const SourcePending = "pending"

// Args scope one resolution to a case and optional reporting period.
type Args struct {
	TenantID  string
	CaseID    string
	PeriodEnd *time.Time // exact period when set, else latest available
}

// Result is one resolved metric. Value is nil when the metric is pending.
type Result struct {
	Name      string
	Value     *float64
	Source    string // provenance: which chain link (or computation) produced the value
	UpdatedAt time.Time
}

// source is one link in a metric's fallback chain.
type source struct {
	spreadType model.SpreadType // spread-derived when set
	rowKey     string
	factType   model.FactType // direct fact when set
	factKey    string
}

type compositeOp string

const (
	opAdd      compositeOp = "+"
	opSubtract compositeOp = "-"
	opDivide   compositeOp = "/"
)

// metricDef is either a fallback chain or a composite over two other metrics.
type metricDef struct {
	chain       []source
	op          compositeOp
	left, right string
}

// registry defines the metric catalog. Chain order is the fallback order.
var registry = map[string]metricDef{
	"net_operating_income": {chain: []source{
		{spreadType: model.SpreadTypeIncomeStatement, rowKey: "NET_OPERATING_INCOME"},
		{factType: model.FactTypeIncomeStatement, factKey: "NET_OPERATING_INCOME"},
		{factType: model.FactTypeTaxReturn, factKey: "TAXABLE_INCOME"},
	}},
	"annual_debt_service": {chain: []source{
		{factType: model.FactTypeDebtSchedule, factKey: "TOTAL_ANNUAL_DEBT_SERVICE"},
	}},
	"loan_amount": {chain: []source{
		{factType: model.FactTypeDebtSchedule, factKey: "TOTAL_DEBT_OUTSTANDING"},
	}},
	"collateral_value": {chain: []source{
		{spreadType: model.SpreadTypeBalanceSheet, rowKey: "NET_FIXED_ASSETS"},
		{factType: model.FactTypeBalanceSheet, factKey: "NET_FIXED_ASSETS"},
	}},
	"guarantor_cash_flow": {chain: []source{
		{factType: model.FactTypePersonalFinancial, factKey: "PERSONAL_ANNUAL_INCOME"},
	}},

	"debt_service_coverage": {op: opDivide, left: "net_operating_income", right: "annual_debt_service"},
	"loan_to_value":         {op: opDivide, left: "loan_amount", right: "collateral_value"},
	"global_cash_flow":      {op: opAdd, left: "net_operating_income", right: "guarantor_cash_flow"},
	"excess_cash_flow":      {op: opSubtract, left: "global_cash_flow", right: "annual_debt_service"},
}

// Resolver resolves metrics against the fact and spread stores.
type Resolver struct {
	store store.Store
}

func NewResolver(st store.Store) *Resolver {
	return &Resolver{store: st}
}

// Names lists the registered metric names in no particular order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	return out
}

// Resolve computes one metric. An unregistered name is an error; a registered
// metric with no available source resolves to a pending result, not an error.
func (r *Resolver) Resolve(ctx context.Context, name string, args Args) (Result, error) {
	def, ok := registry[name]
	if !ok {
		return Result{}, eris.Errorf("metrics: unknown metric %q", name)
	}
	if def.op != "" {
		return r.resolveComposite(ctx, name, def, args)
	}
	return r.resolveChain(ctx, name, def.chain, args)
}

func (r *Resolver) resolveChain(ctx context.Context, name string, chain []source, args Args) (Result, error) {
	for _, src := range chain {
		if src.spreadType != "" {
			res, found, err := r.fromSpread(ctx, src, args)
			if err != nil {
				return Result{}, err
			}
			if found {
				res.Name = name
				return res, nil
			}
			continue
		}
		fact, err := r.store.LatestFact(ctx, args.TenantID, args.CaseID, src.factType, src.factKey, args.PeriodEnd)
		if err != nil {
			return Result{}, eris.Wrapf(err, "metrics: resolve %s from facts", name)
		}
		if fact != nil && fact.ValueNum != nil {
			return Result{
				Name:      name,
				Value:     fact.ValueNum,
				Source:    fmt.Sprintf("fact:%s/%s", src.factType, src.factKey),
				UpdatedAt: fact.UpdatedAt,
			}, nil
		}
	}
	return Result{Name: name, Source: SourcePending}, nil
}

func (r *Resolver) fromSpread(ctx context.Context, src source, args Args) (Result, bool, error) {
	spread, err := r.store.GetSpread(ctx, args.TenantID, args.CaseID, src.spreadType)
	if err != nil {
		return Result{}, false, eris.Wrapf(err, "metrics: load %s spread", src.spreadType)
	}
	if spread == nil {
		return Result{}, false, nil
	}
	col, ok := pickColumn(spread.Columns, args.PeriodEnd)
	if !ok {
		return Result{}, false, nil
	}
	for _, row := range spread.Rows {
		if row.Key != src.rowKey {
			continue
		}
		cell, ok := row.Cells[col.Key]
		if !ok || cell.Value == nil {
			return Result{}, false, nil
		}
		return Result{
			Value:     cell.Value,
			Source:    fmt.Sprintf("spread:%s/%s@%s", src.spreadType, src.rowKey, col.Key),
			UpdatedAt: spread.GeneratedAt,
		}, true, nil
	}
	return Result{}, false, nil
}

// pickColumn selects the exact period column when requested, else the column
// with the latest period end, else the sole column.
func pickColumn(cols []model.SpreadColumn, periodEnd *time.Time) (model.SpreadColumn, bool) {
	if len(cols) == 0 {
		return model.SpreadColumn{}, false
	}
	if periodEnd != nil {
		for _, c := range cols {
			if c.PeriodEnd != nil && c.PeriodEnd.Equal(*periodEnd) {
				return c, true
			}
		}
		return model.SpreadColumn{}, false
	}
	best := cols[0]
	for _, c := range cols[1:] {
		if c.PeriodEnd != nil && (best.PeriodEnd == nil || c.PeriodEnd.After(*best.PeriodEnd)) {
			best = c
		}
	}
	return best, true
}

// resolveComposite combines two metrics. A nil input makes the whole result
// nil; the provenance is synthetic and the timestamp is the max of the inputs.
func (r *Resolver) resolveComposite(ctx context.Context, name string, def metricDef, args Args) (Result, error) {
	left, err := r.Resolve(ctx, def.left, args)
	if err != nil {
		return Result{}, err
	}
	right, err := r.Resolve(ctx, def.right, args)
	if err != nil {
		return Result{}, err
	}

	out := Result{
		Name:      name,
		Source:    fmt.Sprintf("computed:%s %s %s (%s; %s)", def.left, def.op, def.right, left.Source, right.Source),
		UpdatedAt: maxTime(left.UpdatedAt, right.UpdatedAt),
	}
	if left.Value == nil || right.Value == nil {
		return out, nil
	}

	var v float64
	switch def.op {
	case opAdd:
		v = *left.Value + *right.Value
	case opSubtract:
		v = *left.Value - *right.Value
	case opDivide:
		if *right.Value == 0 {
			return out, nil
		}
		v = *left.Value / *right.Value
	default:
		return Result{}, eris.Errorf("metrics: unknown composite op %q", def.op)
	}
	out.Value = &v
	return out, nil
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
