package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/store"
)

// fakeStore serves canned facts and spreads. Unused Store methods panic via
// the embedded nil interface.
type fakeStore struct {
	store.Store
	facts   map[string]*model.Fact // keyed by factType/factKey
	spreads map[model.SpreadType]*model.RenderedSpread
}

func (f *fakeStore) LatestFact(_ context.Context, _, _ string, ft model.FactType, key string, _ *time.Time) (*model.Fact, error) {
	return f.facts[string(ft)+"/"+key], nil
}

func (f *fakeStore) GetSpread(_ context.Context, _, _ string, st model.SpreadType) (*model.RenderedSpread, error) {
	return f.spreads[st], nil
}

func fact(ft model.FactType, key string, v float64, updated time.Time) (string, *model.Fact) {
	return string(ft) + "/" + key, &model.Fact{
		FactType: ft, FactKey: key, ValueNum: model.Num(v), UpdatedAt: updated,
	}
}

func TestResolve_SpreadSourceWins(t *testing.T) {
	generated := model.Date(2024, time.February, 1)
	factUpdated := model.Date(2024, time.January, 15)
	k, fct := fact(model.FactTypeIncomeStatement, "NET_OPERATING_INCOME", 100000, factUpdated)

	st := &fakeStore{
		facts: map[string]*model.Fact{k: fct},
		spreads: map[model.SpreadType]*model.RenderedSpread{
			model.SpreadTypeIncomeStatement: {
				GeneratedAt: generated,
				Columns:     []model.SpreadColumn{{Key: "p2023-12-31", PeriodEnd: timePtr(model.Date(2023, 12, 31))}},
				Rows: []model.SpreadRow{{
					Key:   "NET_OPERATING_INCOME",
					Cells: map[string]model.SpreadCell{"p2023-12-31": {Value: model.Num(120000)}},
				}},
			},
		},
	}

	res, err := NewResolver(st).Resolve(context.Background(), "net_operating_income", Args{TenantID: "t1", CaseID: "c1"})
	require.NoError(t, err)
	require.NotNil(t, res.Value)
	assert.Equal(t, 120000.0, *res.Value)
	assert.Equal(t, "spread:INCOME_STATEMENT/NET_OPERATING_INCOME@p2023-12-31", res.Source)
	assert.True(t, res.UpdatedAt.Equal(generated))
}

func TestResolve_FallsBackToDirectFact(t *testing.T) {
	updated := model.Date(2024, time.January, 15)
	k, fct := fact(model.FactTypeIncomeStatement, "NET_OPERATING_INCOME", 100000, updated)
	st := &fakeStore{facts: map[string]*model.Fact{k: fct}}

	res, err := NewResolver(st).Resolve(context.Background(), "net_operating_income", Args{})
	require.NoError(t, err)
	require.NotNil(t, res.Value)
	assert.Equal(t, 100000.0, *res.Value)
	assert.Equal(t, "fact:INCOME_STATEMENT/NET_OPERATING_INCOME", res.Source)
}

func TestResolve_TaxReturnIsLastResort(t *testing.T) {
	k, fct := fact(model.FactTypeTaxReturn, "TAXABLE_INCOME", 80000, time.Time{})
	st := &fakeStore{facts: map[string]*model.Fact{k: fct}}

	res, err := NewResolver(st).Resolve(context.Background(), "net_operating_income", Args{})
	require.NoError(t, err)
	require.NotNil(t, res.Value)
	assert.Equal(t, 80000.0, *res.Value)
	assert.Equal(t, "fact:TAX_RETURN/TAXABLE_INCOME", res.Source)
}

func TestResolve_PendingWhenNoSource(t *testing.T) {
	st := &fakeStore{}

	res, err := NewResolver(st).Resolve(context.Background(), "net_operating_income", Args{})
	require.NoError(t, err)
	assert.Nil(t, res.Value)
	assert.Equal(t, SourcePending, res.Source)
}

func TestResolve_UnknownMetric(t *testing.T) {
	_, err := NewResolver(&fakeStore{}).Resolve(context.Background(), "made_up", Args{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown metric")
}

func TestResolve_CompositeRatio(t *testing.T) {
	noiUpdated := model.Date(2024, time.January, 10)
	adsUpdated := model.Date(2024, time.February, 20)
	k1, f1 := fact(model.FactTypeIncomeStatement, "NET_OPERATING_INCOME", 150000, noiUpdated)
	k2, f2 := fact(model.FactTypeDebtSchedule, "TOTAL_ANNUAL_DEBT_SERVICE", 100000, adsUpdated)
	st := &fakeStore{facts: map[string]*model.Fact{k1: f1, k2: f2}}

	res, err := NewResolver(st).Resolve(context.Background(), "debt_service_coverage", Args{})
	require.NoError(t, err)
	require.NotNil(t, res.Value)
	assert.InDelta(t, 1.5, *res.Value, 1e-9)
	assert.Contains(t, res.Source, "computed:net_operating_income / annual_debt_service")
	assert.Contains(t, res.Source, "fact:INCOME_STATEMENT/NET_OPERATING_INCOME")

	// Composite timestamp is the max of its inputs.
	assert.True(t, res.UpdatedAt.Equal(adsUpdated))
}

func TestResolve_CompositeNilPropagation(t *testing.T) {
	k, fct := fact(model.FactTypeIncomeStatement, "NET_OPERATING_INCOME", 150000, time.Time{})
	st := &fakeStore{facts: map[string]*model.Fact{k: fct}}

	// annual_debt_service has no source, so the ratio is pending-valued.
	res, err := NewResolver(st).Resolve(context.Background(), "debt_service_coverage", Args{})
	require.NoError(t, err)
	assert.Nil(t, res.Value)
	assert.Contains(t, res.Source, SourcePending)
}

func TestResolve_CompositeDivideByZero(t *testing.T) {
	k1, f1 := fact(model.FactTypeIncomeStatement, "NET_OPERATING_INCOME", 150000, time.Time{})
	k2, f2 := fact(model.FactTypeDebtSchedule, "TOTAL_ANNUAL_DEBT_SERVICE", 0, time.Time{})
	st := &fakeStore{facts: map[string]*model.Fact{k1: f1, k2: f2}}

	res, err := NewResolver(st).Resolve(context.Background(), "debt_service_coverage", Args{})
	require.NoError(t, err)
	assert.Nil(t, res.Value)
}

func TestResolve_ExcessCashFlowChainsComposites(t *testing.T) {
	k1, f1 := fact(model.FactTypeIncomeStatement, "NET_OPERATING_INCOME", 200000, time.Time{})
	k2, f2 := fact(model.FactTypePersonalFinancial, "PERSONAL_ANNUAL_INCOME", 50000, time.Time{})
	k3, f3 := fact(model.FactTypeDebtSchedule, "TOTAL_ANNUAL_DEBT_SERVICE", 120000, time.Time{})
	st := &fakeStore{facts: map[string]*model.Fact{k1: f1, k2: f2, k3: f3}}

	res, err := NewResolver(st).Resolve(context.Background(), "excess_cash_flow", Args{})
	require.NoError(t, err)
	require.NotNil(t, res.Value)
	// (200000 + 50000) - 120000
	assert.InDelta(t, 130000.0, *res.Value, 1e-9)
}

func TestResolve_ExactPeriodRequested(t *testing.T) {
	want := model.Date(2022, time.December, 31)
	st := &fakeStore{
		spreads: map[model.SpreadType]*model.RenderedSpread{
			model.SpreadTypeIncomeStatement: {
				Columns: []model.SpreadColumn{
					{Key: "p2022-12-31", PeriodEnd: &want},
					{Key: "p2023-12-31", PeriodEnd: timePtr(model.Date(2023, 12, 31))},
				},
				Rows: []model.SpreadRow{{
					Key: "NET_OPERATING_INCOME",
					Cells: map[string]model.SpreadCell{
						"p2022-12-31": {Value: model.Num(90000)},
						"p2023-12-31": {Value: model.Num(110000)},
					},
				}},
			},
		},
	}

	res, err := NewResolver(st).Resolve(context.Background(), "net_operating_income", Args{PeriodEnd: &want})
	require.NoError(t, err)
	require.NotNil(t, res.Value)
	assert.Equal(t, 90000.0, *res.Value)
	assert.Contains(t, res.Source, "@p2022-12-31")
}

func timePtr(t time.Time) *time.Time { return &t }
