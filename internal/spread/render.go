package spread

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lakeside-credit/spread-cli/internal/metrics"
	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/store"
)

// SchemaVersion is bumped whenever the rendered layout changes shape.
const SchemaVersion = 2

const (
	StatusComplete = "complete"
	StatusPartial  = "partial"
)

// balanceTolerance is the absolute drift allowed before the balance check
// raises a warning. Statement rounding makes exact equality unrealistic.
const balanceTolerance = 0.01

// Renderer builds spreads from stored facts and resolved metrics.
type Renderer struct {
	store    store.Store
	resolver *metrics.Resolver
	now      func() time.Time
}

func NewRenderer(st store.Store, resolver *metrics.Resolver) *Renderer {
	return &Renderer{
		store:    st,
		resolver: resolver,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Render rebuilds one spread wholesale. Validation problems surface as inline
// warnings on the spread, never as errors; only infrastructure failures error.
func (r *Renderer) Render(ctx context.Context, tenantID, caseID string, spreadType model.SpreadType) (*model.RenderedSpread, error) {
	defs := Rows(spreadType)
	if len(defs) == 0 {
		return nil, eris.Errorf("spread: no rows registered for type %s", spreadType)
	}

	var facts []model.Fact
	for _, ft := range factSources[spreadType] {
		got, err := r.store.ListFacts(ctx, tenantID, caseID, ft)
		if err != nil {
			return nil, eris.Wrapf(err, "spread: load %s facts", ft)
		}
		facts = append(facts, got...)
	}

	out := &model.RenderedSpread{
		SchemaVersion: SchemaVersion,
		SpreadType:    spreadType,
		Status:        StatusComplete,
		TenantID:      tenantID,
		CaseID:        caseID,
		GeneratedAt:   r.now(),
		Columns:       detectColumns(facts),
		Totals:        map[string]any{},
	}

	rows := make([]model.SpreadRow, len(defs))
	for i, def := range defs {
		rows[i] = model.SpreadRow{
			Key:     def.Key,
			Label:   def.Label,
			Section: def.Section,
			Formula: def.Formula,
			Cells:   make(map[string]model.SpreadCell, len(out.Columns)),
		}
	}

	for _, col := range out.Columns {
		base, conflicts := columnFacts(facts, col)
		for _, key := range conflicts {
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("conflicting values for %s in column %s; kept the highest-confidence fact", key, col.Key))
		}

		// Copy-on-write value snapshot: rows resolved earlier in registry
		// order become operands for rows resolved later.
		values := make(map[string]*float64, len(base)+len(defs))
		for key, fact := range base {
			values[key] = fact.ValueNum
		}

		for i, def := range defs {
			cell := r.resolveCell(ctx, def, col, base, values, out, tenantID, caseID)
			values[def.Key] = cell.Value
			rows[i].Cells[col.Key] = cell
			if cell.Value == nil {
				out.Status = StatusPartial
			}
		}

		r.checkBalance(spreadType, col, values, out)
		out.Totals[col.Key] = totalsFor(defs, values)
	}

	out.Rows = rows
	if len(out.Warnings) > 0 {
		zap.L().Warn("spread: rendered with warnings",
			zap.String("case_id", caseID),
			zap.String("spread_type", string(spreadType)),
			zap.Strings("warnings", out.Warnings))
	}
	return out, nil
}

// RenderAndSave renders and persists in one step, for the render job handler.
func (r *Renderer) RenderAndSave(ctx context.Context, tenantID, caseID string, spreadType model.SpreadType) (*model.RenderedSpread, error) {
	spread, err := r.Render(ctx, tenantID, caseID, spreadType)
	if err != nil {
		return nil, err
	}
	if err := r.store.SaveSpread(ctx, spread); err != nil {
		return nil, eris.Wrapf(err, "spread: save %s spread for case %s", spreadType, caseID)
	}
	return spread, nil
}

func (r *Renderer) resolveCell(ctx context.Context, def RowDef, col model.SpreadColumn, base map[string]model.Fact, values map[string]*float64, out *model.RenderedSpread, tenantID, caseID string) model.SpreadCell {
	var cell model.SpreadCell

	switch {
	case def.Formula == "":
		if fact, ok := base[def.Key]; ok {
			cell.Value = fact.ValueNum
			cell.Provenance = fmt.Sprintf("fact:%s/%s", fact.FactType, fact.FactKey)
		}

	case metricName(def.Formula) != "":
		res, err := r.resolver.Resolve(ctx, metricName(def.Formula), metrics.Args{
			TenantID: tenantID, CaseID: caseID, PeriodEnd: col.PeriodEnd,
		})
		if err != nil {
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("metric %s failed for column %s: %v", metricName(def.Formula), col.Key, err))
			break
		}
		cell.Value = res.Value
		cell.Provenance = res.Source

	default:
		v, err := evalStructural(def.Formula, values)
		if err != nil {
			out.Warnings = append(out.Warnings,
				fmt.Sprintf("formula for %s failed in column %s: %v", def.Key, col.Key, err))
			break
		}
		cell.Value = v
		cell.Provenance = "formula:" + def.Formula
	}

	cell.Display = formatValue(cell.Value, def)
	return cell
}

// checkBalance flags assets vs liabilities-and-equity drift. Warning only.
func (r *Renderer) checkBalance(spreadType model.SpreadType, col model.SpreadColumn, values map[string]*float64, out *model.RenderedSpread) {
	if spreadType != model.SpreadTypeBalanceSheet {
		return
	}
	assets, lne := values["TOTAL_ASSETS"], values["TOTAL_LIABILITIES_AND_EQUITY"]
	if assets == nil || lne == nil {
		return
	}
	if diff := *assets - *lne; diff > balanceTolerance || diff < -balanceTolerance {
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("balance check failed for column %s: assets %.2f vs liabilities and equity %.2f", col.Key, *assets, *lne))
	}
}

// detectColumns derives period columns from distinct fact period ends. The
// sentinel "period unknown" date never becomes a column; a single remaining
// period collapses to the "current" column.
func detectColumns(facts []model.Fact) []model.SpreadColumn {
	seen := make(map[time.Time]bool)
	var ends []time.Time
	for _, f := range facts {
		if f.PeriodEnd == nil || f.PeriodEnd.Equal(model.SentinelPeriodEnd) {
			continue
		}
		end := f.PeriodEnd.UTC()
		if !seen[end] {
			seen[end] = true
			ends = append(ends, end)
		}
	}
	sort.Slice(ends, func(i, j int) bool { return ends[i].Before(ends[j]) })

	if len(ends) == 0 {
		return []model.SpreadColumn{{Key: "current", Label: "Current"}}
	}
	if len(ends) == 1 {
		end := ends[0]
		return []model.SpreadColumn{{Key: "current", Label: columnLabel(end), PeriodEnd: &end}}
	}

	cols := make([]model.SpreadColumn, len(ends))
	for i := range ends {
		end := ends[i]
		cols[i] = model.SpreadColumn{
			Key:       "p" + end.Format("2006-01-02"),
			Label:     columnLabel(end),
			PeriodEnd: &end,
		}
	}
	return cols
}

func columnLabel(end time.Time) string {
	if end.Month() == time.December && end.Day() == 31 {
		return fmt.Sprintf("FY %d", end.Year())
	}
	return "Period ended " + end.Format("Jan 2, 2006")
}

// columnFacts picks the facts feeding one column: exact period matches, plus
// sentinel-dated facts as fill-in when the column has no dated value for a
// key. Conflicts resolve by confidence, then recency; conflicting keys are
// returned for warning.
func columnFacts(facts []model.Fact, col model.SpreadColumn) (map[string]model.Fact, []string) {
	chosen := make(map[string]model.Fact)
	conflictSet := make(map[string]bool)

	matches := func(f model.Fact) bool {
		if f.PeriodEnd == nil {
			return col.PeriodEnd == nil
		}
		if f.PeriodEnd.Equal(model.SentinelPeriodEnd) {
			return false
		}
		if col.PeriodEnd == nil {
			return false
		}
		return f.PeriodEnd.Equal(*col.PeriodEnd)
	}

	for _, f := range facts {
		if !matches(f) {
			continue
		}
		prev, ok := chosen[f.FactKey]
		if !ok {
			chosen[f.FactKey] = f
			continue
		}
		if prev.SourceDocumentID != f.SourceDocumentID {
			conflictSet[f.FactKey] = true
		}
		if f.Confidence > prev.Confidence ||
			(f.Confidence == prev.Confidence && f.UpdatedAt.After(prev.UpdatedAt)) {
			chosen[f.FactKey] = f
		}
	}

	// Sentinel-dated facts fill keys no dated fact covered.
	for _, f := range facts {
		if f.PeriodEnd == nil || !f.PeriodEnd.Equal(model.SentinelPeriodEnd) {
			continue
		}
		if _, ok := chosen[f.FactKey]; !ok {
			chosen[f.FactKey] = f
		}
	}

	conflicts := make([]string, 0, len(conflictSet))
	for key := range conflictSet {
		conflicts = append(conflicts, key)
	}
	sort.Strings(conflicts)
	return chosen, conflicts
}

// totalsFor snapshots the TOTAL_-prefixed rows for quick access without
// walking the row grid.
func totalsFor(defs []RowDef, values map[string]*float64) map[string]*float64 {
	totals := make(map[string]*float64)
	for _, def := range defs {
		if len(def.Key) > 6 && def.Key[:6] == "TOTAL_" {
			totals[def.Key] = values[def.Key]
		}
	}
	return totals
}
