// Package audit builds immutable decision snapshots for regulatory review.
// A snapshot aggregates resolved metrics, policy evaluation, committee state,
// overrides, and attestations, and is hashed with the canonical hasher. The
// hash travels next to the snapshot, never inside it.
package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lakeside-credit/spread-cli/internal/canonical"
	"github.com/lakeside-credit/spread-cli/internal/metrics"
	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/policy"
	"github.com/lakeside-credit/spread-cli/internal/store"
)

// SnapshotVersion is the decision snapshot schema version.
const SnapshotVersion = 3

// CaseState carries the decision inputs that live outside the fact store:
// committee votes, overrides, attestations, and the running decision.
type CaseState struct {
	Decision     model.DecisionBlock
	Quorum       int
	Votes        []model.Vote
	Minutes      string
	Overrides    []model.Override
	Attestations []model.Attestation
	LedgerEvents []string
}

// Builder assembles and persists decision snapshots.
type Builder struct {
	store    store.Store
	resolver *metrics.Resolver
	rules    []policy.Rule
	now      func() time.Time
}

func NewBuilder(st store.Store, resolver *metrics.Resolver, rules []policy.Rule) *Builder {
	if len(rules) == 0 {
		rules = policy.DefaultRules()
	}
	return &Builder{
		store:    st,
		resolver: resolver,
		rules:    rules,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Build assembles a snapshot for the case and returns it with its canonical
// hash. The snapshot is persisted append-only; it never replaces a prior one.
func (b *Builder) Build(ctx context.Context, tenantID, caseID string, state CaseState) (*model.DecisionSnapshot, string, error) {
	financials, env, err := b.resolveFinancials(ctx, tenantID, caseID)
	if err != nil {
		return nil, "", err
	}

	now := b.now()
	snapshot := &model.DecisionSnapshot{
		Meta: model.SnapshotMeta{
			CaseID:      caseID,
			SnapshotID:  uuid.New().String(),
			Version:     SnapshotVersion,
			GeneratedAt: now,
			AsOf:        now,
		},
		Decision:     state.Decision,
		Financials:   financials,
		Policy:       b.evaluatePolicy(env),
		Overrides:    append([]model.Override(nil), state.Overrides...),
		Attestations: append([]model.Attestation(nil), state.Attestations...),
		Committee: model.Committee{
			Quorum:  state.Quorum,
			Votes:   append([]model.Vote(nil), state.Votes...),
			Outcome: CommitteeOutcome(state.Votes, state.Quorum),
			Minutes: state.Minutes,
		},
		LedgerEvents: append([]string(nil), state.LedgerEvents...),
	}

	hash, err := canonical.HashValue(snapshot)
	if err != nil {
		return nil, "", eris.Wrapf(err, "audit: hash snapshot for case %s", caseID)
	}

	if err := b.store.SaveSnapshot(ctx, snapshot, hash); err != nil {
		return nil, "", eris.Wrapf(err, "audit: save snapshot for case %s", caseID)
	}

	zap.L().Info("audit: snapshot built",
		zap.String("case_id", caseID),
		zap.String("snapshot_id", snapshot.Meta.SnapshotID),
		zap.String("hash", hash),
		zap.String("committee_outcome", string(snapshot.Committee.Outcome)))
	return snapshot, hash, nil
}

// resolveFinancials resolves every registered metric, keeping pending ones
// visible in the snapshot with a nil value.
func (b *Builder) resolveFinancials(ctx context.Context, tenantID, caseID string) (map[string]model.MetricValue, policy.Env, error) {
	names := metrics.Names()
	sort.Strings(names)

	financials := make(map[string]model.MetricValue, len(names))
	env := make(policy.Env, len(names))
	for _, name := range names {
		res, err := b.resolver.Resolve(ctx, name, metrics.Args{TenantID: tenantID, CaseID: caseID})
		if err != nil {
			return nil, nil, eris.Wrapf(err, "audit: resolve %s for case %s", name, caseID)
		}
		financials[name] = model.MetricValue{Value: res.Value, Source: res.Source, UpdatedAt: res.UpdatedAt}
		env[name] = res.Value
	}
	return financials, env, nil
}

func (b *Builder) evaluatePolicy(env policy.Env) model.PolicySummary {
	summary := model.PolicySummary{RulesEvaluated: len(b.rules)}
	for _, rule := range b.rules {
		switch policy.Eval(rule.Expr, env) {
		case policy.Pass:
			summary.RulesPassed++
		case policy.Fail:
			summary.RulesFailed++
		case policy.Exception:
			summary.Exceptions = append(summary.Exceptions,
				fmt.Sprintf("%s: %s", rule.ID, rule.Expr.Describe()))
		}
	}
	return summary
}

// CommitteeOutcome computes the vote outcome. Any decline is a veto; absent
// declines, any conditional approval forces the conditional outcome regardless
// of quorum; a plain approve outcome needs quorum participation and at least
// one approve. Everything else is pending.
func CommitteeOutcome(votes []model.Vote, quorum int) model.CommitteeOutcome {
	approves := 0
	conditionals := 0
	counted := 0
	for _, v := range votes {
		switch v.Choice {
		case model.VoteDecline:
			return model.OutcomeDecline
		case model.VoteApproveWithConditions:
			conditionals++
			counted++
		case model.VoteApprove:
			approves++
			counted++
		case model.VoteAbstain:
			// Abstentions do not count toward quorum.
		}
	}
	if conditionals > 0 {
		return model.OutcomeApproveWithConditions
	}
	if counted >= quorum && approves >= 1 {
		return model.OutcomeApprove
	}
	return model.OutcomePending
}
