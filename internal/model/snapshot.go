package model

import "time"

// VoteChoice is a committee member's recorded position.
type VoteChoice string

const (
	VoteApprove               VoteChoice = "approve"
	VoteApproveWithConditions VoteChoice = "approve_with_conditions"
	VoteDecline               VoteChoice = "decline"
	VoteAbstain               VoteChoice = "abstain"
)

// CommitteeOutcome is the computed result of a committee vote set.
type CommitteeOutcome string

const (
	OutcomeApprove               CommitteeOutcome = "approve"
	OutcomeApproveWithConditions CommitteeOutcome = "approve_with_conditions"
	OutcomeDecline               CommitteeOutcome = "decline"
	OutcomePending               CommitteeOutcome = "pending"
)

// Vote is a single committee member's vote.
type Vote struct {
	Actor     string     `json:"actor"`
	Choice    VoteChoice `json:"choice"`
	Comment   string     `json:"comment,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Committee captures vote state and its computed outcome.
type Committee struct {
	Quorum  int              `json:"quorum"`
	Votes   []Vote           `json:"votes"`
	Outcome CommitteeOutcome `json:"outcome"`
	Minutes string           `json:"minutes,omitempty"`
}

// Override records a manual change to a decision field, append-only.
type Override struct {
	FieldPath     string    `json:"field_path"`
	OldValue      any       `json:"old_value"`
	NewValue      any       `json:"new_value"`
	Reason        string    `json:"reason"`
	Justification string    `json:"justification,omitempty"`
	Actor         string    `json:"actor"`
	Timestamp     time.Time `json:"timestamp"`
}

// Attestation is a signed-off statement by a named actor, append-only.
type Attestation struct {
	Actor     string    `json:"actor"`
	Role      string    `json:"role"`
	Statement string    `json:"statement"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotMeta is the identity block of a decision snapshot.
type SnapshotMeta struct {
	CaseID      string    `json:"case_id"`
	SnapshotID  string    `json:"snapshot_id"`
	Version     int       `json:"version"`
	GeneratedAt time.Time `json:"generated_at"`
	AsOf        time.Time `json:"as_of"`
}

// DecisionBlock is the outcome summary of a credit decision.
type DecisionBlock struct {
	Outcome    string  `json:"outcome"`
	Summary    string  `json:"summary,omitempty"`
	Confidence float64 `json:"confidence"`
}

// PolicySummary aggregates policy rule evaluation results.
type PolicySummary struct {
	RulesEvaluated int      `json:"rules_evaluated"`
	RulesPassed    int      `json:"rules_passed"`
	RulesFailed    int      `json:"rules_failed"`
	Exceptions     []string `json:"exceptions,omitempty"`
}

// MetricValue is a resolved financial metric with its provenance.
type MetricValue struct {
	Value     *float64  `json:"value"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DecisionSnapshot is the immutable audit record of a credit decision.
// Its canonical hash is computed externally and never stored in the body;
// any mutation to overrides, attestations, committee state, or financials
// must change that hash. New overrides or attestations produce a new
// snapshot, not an edit to an old one.
type DecisionSnapshot struct {
	Meta         SnapshotMeta           `json:"meta"`
	Decision     DecisionBlock          `json:"decision"`
	Financials   map[string]MetricValue `json:"financials"`
	Policy       PolicySummary          `json:"policy"`
	Overrides    []Override             `json:"overrides"`
	Attestations []Attestation          `json:"attestations"`
	Committee    Committee              `json:"committee"`
	LedgerEvents []string               `json:"ledger_events"`
}
