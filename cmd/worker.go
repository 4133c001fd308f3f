package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lakeside-credit/spread-cli/internal/audit"
	"github.com/lakeside-credit/spread-cli/internal/jobs"
	"github.com/lakeside-credit/spread-cli/internal/metrics"
	"github.com/lakeside-credit/spread-cli/internal/model"
	"github.com/lakeside-credit/spread-cli/internal/spread"
	"github.com/lakeside-credit/spread-cli/internal/store"
)

var workerTenant string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job-leasing worker loop",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("worker"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		hostname, _ := os.Hostname()
		owner := fmt.Sprintf("%s-%d", hostname, os.Getpid())
		sched := jobs.NewScheduler(st, cfg.Scheduler, owner)

		resolver := metrics.NewResolver(st)
		renderer := spread.NewRenderer(st, resolver)
		builder := audit.NewBuilder(st, resolver, nil)

		w := jobs.NewWorker(sched, store.JobFilter{TenantID: workerTenant}, cfg.Worker)
		w.Register(model.JobKindExtractDocument, extractHandler(buildRouter(st)))
		w.Register(model.JobKindRenderSpread, renderHandler(renderer))
		w.Register(model.JobKindBuildSnapshot, snapshotHandler(builder))

		zap.L().Info("worker starting",
			zap.String("owner", owner),
			zap.String("extraction_path", cfg.Extract.Path))
		return w.Run(ctx)
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerTenant, "tenant", "", "restrict leasing to one tenant")
	rootCmd.AddCommand(workerCmd)
}
