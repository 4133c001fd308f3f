package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lakeside-credit/spread-cli/internal/audit"
	"github.com/lakeside-credit/spread-cli/internal/metrics"
	"github.com/lakeside-credit/spread-cli/internal/model"
)

var (
	snapshotTenant string
	snapshotCase   string
	snapshotState  string
)

// caseStateFile is the YAML shape of the committee/decision state supplied
// alongside a snapshot build.
type caseStateFile struct {
	Decision struct {
		Outcome    string  `yaml:"outcome"`
		Summary    string  `yaml:"summary"`
		Confidence float64 `yaml:"confidence"`
	} `yaml:"decision"`
	Quorum  int    `yaml:"quorum"`
	Minutes string `yaml:"minutes"`
	Votes   []struct {
		Actor   string `yaml:"actor"`
		Choice  string `yaml:"choice"`
		Comment string `yaml:"comment"`
	} `yaml:"votes"`
	Attestations []struct {
		Actor     string `yaml:"actor"`
		Role      string `yaml:"role"`
		Statement string `yaml:"statement"`
	} `yaml:"attestations"`
	LedgerEvents []string `yaml:"ledger_events"`
}

func loadCaseState(path string) (audit.CaseState, error) {
	var state audit.CaseState
	if path == "" {
		return state, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return state, eris.Wrapf(err, "read case state %s", path)
	}
	var file caseStateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return state, eris.Wrapf(err, "parse case state %s", path)
	}

	now := time.Now().UTC()
	state.Decision = model.DecisionBlock{
		Outcome:    file.Decision.Outcome,
		Summary:    file.Decision.Summary,
		Confidence: file.Decision.Confidence,
	}
	state.Quorum = file.Quorum
	state.Minutes = file.Minutes
	state.LedgerEvents = file.LedgerEvents
	for _, v := range file.Votes {
		state.Votes = append(state.Votes, model.Vote{
			Actor:     v.Actor,
			Choice:    model.VoteChoice(v.Choice),
			Comment:   v.Comment,
			Timestamp: now,
		})
	}
	for _, a := range file.Attestations {
		state.Attestations = append(state.Attestations, model.Attestation{
			Actor:     a.Actor,
			Role:      a.Role,
			Statement: a.Statement,
			Timestamp: now,
		})
	}
	return state, nil
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Build an immutable decision snapshot for a case",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		state, err := loadCaseState(snapshotState)
		if err != nil {
			return err
		}

		builder := audit.NewBuilder(st, metrics.NewResolver(st), nil)
		snap, hash, err := builder.Build(ctx, snapshotTenant, snapshotCase, state)
		if err != nil {
			return err
		}

		cmd.Printf("snapshot %s\n", snap.Meta.SnapshotID)
		cmd.Printf("hash     %s\n", hash)
		cmd.Printf("outcome  %s\n", snap.Committee.Outcome)
		cmd.Printf("policy   %d evaluated, %d passed, %d failed, %d exceptions\n",
			snap.Policy.RulesEvaluated, snap.Policy.RulesPassed,
			snap.Policy.RulesFailed, len(snap.Policy.Exceptions))
		return nil
	},
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotTenant, "tenant", "", "tenant id")
	snapshotCmd.Flags().StringVar(&snapshotCase, "case", "", "case id")
	snapshotCmd.Flags().StringVar(&snapshotState, "state", "", "YAML file with committee votes and decision state")
	_ = snapshotCmd.MarkFlagRequired("tenant")
	_ = snapshotCmd.MarkFlagRequired("case")
	rootCmd.AddCommand(snapshotCmd)
}
