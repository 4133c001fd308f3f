package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/lakeside-credit/spread-cli/internal/docsource"
	"github.com/lakeside-credit/spread-cli/internal/extract"
	"github.com/lakeside-credit/spread-cli/internal/ocr"
)

var (
	extractURL     string
	extractTenant  string
	extractCase    string
	extractDocID   string
	extractDocType string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract facts from one document synchronously",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("worker"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		fetcher := docsource.NewFetcher(cfg.Intake.TempDir, time.Duration(cfg.Intake.TimeoutSecs)*time.Second)
		ocrx, err := ocr.NewExtractor(cfg.OCR)
		if err != nil {
			return err
		}

		local, err := fetcher.Fetch(ctx, extractURL)
		if err != nil {
			return err
		}

		meta, err := prepareDocument(ctx, ocrx, local, extractDocType)
		if err != nil {
			return err
		}

		in := extract.Input{
			TenantID:         extractTenant,
			CaseID:           extractCase,
			DocumentID:       extractDocID,
			OCRText:          metaString(meta, "ocr_text"),
			DocTypeHint:      metaString(meta, "doc_type_hint"),
			StructuredFields: metaMap(meta, "structured_fields"),
		}

		res, err := buildRouter(st).Route(ctx, in)
		if err != nil {
			return err
		}

		cmd.Printf("document %s: %d facts written (type %s, path %s)\n",
			extractDocID, res.FactsWritten, res.DocType, res.Path)
		return nil
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractURL, "url", "", "document URL or local path")
	extractCmd.Flags().StringVar(&extractTenant, "tenant", "", "tenant id")
	extractCmd.Flags().StringVar(&extractCase, "case", "", "case id")
	extractCmd.Flags().StringVar(&extractDocID, "doc-id", "", "source document id")
	extractCmd.Flags().StringVar(&extractDocType, "doc-type", "", "document type hint")
	_ = extractCmd.MarkFlagRequired("url")
	_ = extractCmd.MarkFlagRequired("tenant")
	_ = extractCmd.MarkFlagRequired("case")
	_ = extractCmd.MarkFlagRequired("doc-id")
	rootCmd.AddCommand(extractCmd)
}
