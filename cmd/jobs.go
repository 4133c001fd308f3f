package main

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/store"
)

var (
	jobsTenant string
	jobsCase   string
	jobsStatus string
	jobsLimit  int
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [id]",
	Short: "List queued jobs or show one job",
	Args:  cobra.MaximumNArgs(1),
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

		if len(args) == 1 {
			job, err := st.GetJob(ctx, args[0])
			if err != nil {
				return err
			}
			if job == nil {
				return eris.Errorf("job not found: %s", args[0])
			}
			printJobDetail(cmd, job)
			return nil
		}

		list, err := st.ListJobs(ctx, store.JobListFilter{
			TenantID: jobsTenant,
			CaseID:   jobsCase,
			Status:   model.JobStatus(jobsStatus),
			Limit:    jobsLimit,
		})
		if err != nil {
			return err
		}

		cmd.Printf("%-36s  %-18s  %-9s  %-7s  %s\n", "ID", "KIND", "STATUS", "ATTEMPT", "NEXT RUN")
		for _, job := range list {
			cmd.Printf("%-36s  %-18s  %-9s  %2d/%-4d  %s\n",
				job.ID, job.Kind, job.Status, job.Attempt, job.MaxAttempts,
				job.NextRunAt.Format(time.RFC3339))
		}
		return nil
	},
}

func printJobDetail(cmd *cobra.Command, job *model.Job) {
	cmd.Printf("id        %s\n", job.ID)
	cmd.Printf("tenant    %s\n", job.TenantID)
	cmd.Printf("case      %s\n", job.CaseID)
	cmd.Printf("kind      %s\n", job.Kind)
	cmd.Printf("status    %s\n", job.Status)
	cmd.Printf("attempt   %d/%d\n", job.Attempt, job.MaxAttempts)
	cmd.Printf("next run  %s\n", job.NextRunAt.Format(time.RFC3339))
	if job.LeaseOwner != "" {
		cmd.Printf("lease     %s", job.LeaseOwner)
		if job.LeasedUntil != nil {
			cmd.Printf(" until %s", job.LeasedUntil.Format(time.RFC3339))
		}
		cmd.Println()
	}
	if job.Error != "" {
		cmd.Printf("error     %s\n", job.Error)
	}
	for k, v := range job.Metadata {
		if k == "ocr_text" || k == "structured_fields" {
			continue
		}
		cmd.Printf("meta      %s=%v\n", k, v)
	}
}

func init() {
	jobsCmd.Flags().StringVar(&jobsTenant, "tenant", "", "filter by tenant id")
	jobsCmd.Flags().StringVar(&jobsCase, "case", "", "filter by case id")
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "filter by status (queued, running, succeeded, failed)")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 50, "maximum jobs to list")
	rootCmd.AddCommand(jobsCmd)
}
