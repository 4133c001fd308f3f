package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lakeside-credit/spread-cli/internal/docsource"
	"github.com/lakeside-credit/spread-cli/internal/jobs"
	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/ocr"
)

var (
	ingestURL     string
	ingestTenant  string
	ingestCase    string
	ingestDocType string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch loan documents and enqueue extraction jobs",
	Long:  "Downloads a document or zip bundle over http/ftp, runs OCR or structured-field parsing, and enqueues one extraction job per document.",
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

		hostname, _ := os.Hostname()
		sched := jobs.NewScheduler(st, cfg.Scheduler, fmt.Sprintf("%s-%d", hostname, os.Getpid()))

		fetcher := docsource.NewFetcher(cfg.Intake.TempDir, time.Duration(cfg.Intake.TimeoutSecs)*time.Second)
		ocrx, err := ocr.NewExtractor(cfg.OCR)
		if err != nil {
			return err
		}

		local, err := fetcher.Fetch(ctx, ingestURL)
		if err != nil {
			return err
		}

		files := []string{local}
		if strings.EqualFold(filepath.Ext(local), ".zip") {
			dest := filepath.Join(cfg.Intake.TempDir, uuid.New().String())
			files, err = docsource.ExtractBundle(local, dest)
			if err != nil {
				return err
			}
		}

		enqueued := 0
		for _, f := range files {
			meta, err := prepareDocument(ctx, ocrx, f, ingestDocType)
			if err != nil {
				zap.L().Warn("ingest: skipping document", zap.String("path", f), zap.Error(err))
				continue
			}
			meta["document_id"] = filepath.Base(f)

			job, err := sched.Enqueue(ctx, model.JobKindExtractDocument, ingestTenant, ingestCase, meta)
			if err != nil {
				return err
			}
			cmd.Printf("enqueued %s for %s\n", job.ID, filepath.Base(f))
			enqueued++
		}

		if enqueued == 0 {
			zap.L().Warn("ingest: no documents enqueued", zap.String("url", ingestURL))
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "document or bundle URL (http, ftp, or local path)")
	ingestCmd.Flags().StringVar(&ingestTenant, "tenant", "", "tenant id")
	ingestCmd.Flags().StringVar(&ingestCase, "case", "", "case id")
	ingestCmd.Flags().StringVar(&ingestDocType, "doc-type", "", "document type hint (default: derived from file name)")
	_ = ingestCmd.MarkFlagRequired("url")
	_ = ingestCmd.MarkFlagRequired("tenant")
	_ = ingestCmd.MarkFlagRequired("case")
	rootCmd.AddCommand(ingestCmd)
}
