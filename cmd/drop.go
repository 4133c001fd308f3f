package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lakeside-credit/spread-cli/internal/canonical"
	"github.com/lakeside-credit/spread-cli/internal/drop"
	"github.com/lakeside-credit/spread-cli/internal/model"
)

var (
	dropTenant string
	dropCase   string
	dropDealID string
	dropOut    string
)

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Package an examiner drop for a case",
	Long:  "Bundles the case's rendered spreads and latest decision snapshot into a hash-verifiable drop directory with manifest and checksums.",
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

		var artifacts []drop.Artifact

		// Artifact bytes are the canonical form so verification can
		// re-canonicalize structured content and get the same hash.
		for _, t := range []model.SpreadType{
			model.SpreadTypeBalanceSheet,
			model.SpreadTypeIncomeStatement,
			model.SpreadTypeCashFlow,
		} {
			s, err := st.GetSpread(ctx, dropTenant, dropCase, t)
			if err != nil {
				return err
			}
			if s == nil {
				continue
			}
			body, err := canonical.Canonicalize(s)
			if err != nil {
				return eris.Wrapf(err, "canonicalize spread %s", t)
			}
			artifacts = append(artifacts, drop.Artifact{
				Path:    fmt.Sprintf("spreads/%s.json", t),
				Content: []byte(body),
			})
		}

		snap, _, err := st.LatestSnapshot(ctx, dropCase)
		if err != nil {
			return err
		}
		snapshotID := ""
		if snap != nil {
			body, err := canonical.Canonicalize(snap)
			if err != nil {
				return eris.Wrap(err, "canonicalize snapshot")
			}
			artifacts = append(artifacts, drop.Artifact{
				Path:    "snapshot/decision.json",
				Content: []byte(body),
			})
			snapshotID = snap.Meta.SnapshotID
		}

		manifest, err := drop.BuildManifest(drop.BuildInfo{
			DropID:             uuid.New().String(),
			DealID:             dropDealID,
			BankID:             cfg.Drop.BankID,
			DecisionSnapshotID: snapshotID,
			GeneratedAt:        time.Now().UTC(),
		}, artifacts)
		if err != nil {
			return err
		}

		base := dropOut
		if base == "" {
			base = cfg.Drop.OutputDir
		}
		outDir := filepath.Join(base, manifest.DropID)
		for _, a := range artifacts {
			dest := filepath.Join(outDir, a.Path)
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return eris.Wrap(err, "create drop directory")
			}
			if err := os.WriteFile(dest, a.Content, 0o644); err != nil {
				return eris.Wrapf(err, "write artifact %s", a.Path)
			}
		}

		manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return eris.Wrap(err, "marshal manifest")
		}
		if err := os.WriteFile(filepath.Join(outDir, "manifest.json"), manifestJSON, 0o644); err != nil {
			return eris.Wrap(err, "write manifest")
		}
		if err := os.WriteFile(filepath.Join(outDir, "checksums.txt"), []byte(drop.ChecksumsFile(manifest)), 0o644); err != nil {
			return eris.Wrap(err, "write checksums")
		}

		zap.L().Info("drop packaged",
			zap.String("drop_id", manifest.DropID),
			zap.String("case_id", dropCase),
			zap.Int("artifacts", len(artifacts)))
		cmd.Printf("drop %s\n", manifest.DropID)
		cmd.Printf("dir  %s\n", outDir)
		cmd.Printf("hash %s\n", manifest.DropHash)
		return nil
	},
}

func init() {
	dropCmd.Flags().StringVar(&dropTenant, "tenant", "", "tenant id")
	dropCmd.Flags().StringVar(&dropCase, "case", "", "case id")
	dropCmd.Flags().StringVar(&dropDealID, "deal", "", "deal id recorded in the manifest")
	dropCmd.Flags().StringVar(&dropOut, "out", "", "output directory (default from config)")
	_ = dropCmd.MarkFlagRequired("tenant")
	_ = dropCmd.MarkFlagRequired("case")
	rootCmd.AddCommand(dropCmd)
}
