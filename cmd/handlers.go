package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lakeside-credit/spread-cli/internal/audit"
	"github.com/lakeside-credit/spread-cli/internal/extract"
	"github.com/lakeside-credit/spread-cli/internal/jobs"
	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/spread"
	"github.com/lakeside-credit/spread-cli/internal/store"
	"github.com/lakeside-credit/spread-cli/pkg/anthropic"
)

// buildRouter constructs the extraction router for the configured path.
func buildRouter(st store.Store) *extract.Router {
	if cfg.Extract.Path == "legacy" {
		client := anthropic.NewClient(cfg.Anthropic.Key)
		legacy := extract.NewLegacyExtractor(client, cfg.Anthropic.Model, cfg.Extract.RequestsPerMinute)
		return extract.NewRouter(st, extract.PathLegacy, legacy)
	}
	return extract.NewRouter(st, extract.PathDeterministic, nil)
}

// extractHandler rebuilds the extraction input from job metadata and routes
// it. Metadata is written by the ingest command.
func extractHandler(router *extract.Router) jobs.Handler {
	return func(ctx context.Context, job *model.Job) error {
		in := extract.Input{
			TenantID:         job.TenantID,
			CaseID:           job.CaseID,
			DocumentID:       metaString(job.Metadata, "document_id"),
			OCRText:          metaString(job.Metadata, "ocr_text"),
			DocTypeHint:      metaString(job.Metadata, "doc_type_hint"),
			StructuredFields: metaMap(job.Metadata, "structured_fields"),
		}
		if in.DocumentID == "" {
			return eris.Errorf("extract job %s has no document_id", job.ID)
		}
		in.PeriodStart = metaDate(job.Metadata, "period_start")
		in.PeriodEnd = metaDate(job.Metadata, "period_end")

		_, err := router.Route(ctx, in)
		return err
	}
}

// renderHandler renders one spread type, or every registered type when the
// job metadata names none.
func renderHandler(renderer *spread.Renderer) jobs.Handler {
	return func(ctx context.Context, job *model.Job) error {
		types := []model.SpreadType{
			model.SpreadTypeBalanceSheet,
			model.SpreadTypeIncomeStatement,
			model.SpreadTypeCashFlow,
		}
		if t := metaString(job.Metadata, "spread_type"); t != "" {
			types = []model.SpreadType{model.SpreadType(t)}
		}
		for _, t := range types {
			if _, err := renderer.RenderAndSave(ctx, job.TenantID, job.CaseID, t); err != nil {
				return err
			}
		}
		return nil
	}
}

func snapshotHandler(builder *audit.Builder) jobs.Handler {
	return func(ctx context.Context, job *model.Job) error {
		state := audit.CaseState{Quorum: metaInt(job.Metadata, "quorum")}
		_, _, err := builder.Build(ctx, job.TenantID, job.CaseID, state)
		return err
	}
}

func metaString(meta map[string]any, key string) string {
	s, _ := meta[key].(string)
	return s
}

func metaMap(meta map[string]any, key string) map[string]any {
	m, _ := meta[key].(map[string]any)
	return m
}

// metaInt reads an integer that round-tripped through JSON as float64.
func metaInt(meta map[string]any, key string) int {
	if f, ok := meta[key].(float64); ok {
		return int(f)
	}
	return 0
}

func metaDate(meta map[string]any, key string) *time.Time {
	s := metaString(meta, key)
	if s == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil
	}
	return &t
}
