package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"dzchess-analyzer/internal/cache"
	"dzchess-analyzer/internal/config"
	"dzchess-analyzer/internal/jobs"
	"dzchess-analyzer/internal/logging"
	"dzchess-analyzer/internal/model"
	"dzchess-analyzer/internal/service"
	"dzchess-analyzer/pkg/uid"
)

func ingestCmd(cfg *config.Config) *cobra.Command {
	var (
		months int
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <username>",
		Short: "Fetch a player's recent archives and update their statistics.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if months == 0 {
				months = cfg.Source.MonthsBack
			}
			if all {
				months = 0
			}
			return runOnce(cmd, cfg, model.JobRequest{Username: args[0], MonthsBack: months, Kind: model.JobKindIngest})
		},
	}
	cmd.Flags().IntVarP(&months, "months", "m", 0, "number of most recent monthly archives to fetch")
	cmd.Flags().BoolVar(&all, "all", false, "fetch every available archive")
	return cmd
}

func recomputeCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute <username>",
		Short: "Rebuild a player's statistics from their stored records.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, cfg, model.JobRequest{Username: args[0], Kind: model.JobKindRecompute})
		},
	}
}

func sweepCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "List players whose analysis is stale.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer closeApp(a, cfg)

			res, err := a.sweep.RunNow(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
}

// runOnce executes one job in the foreground and prints its summary.
func runOnce(cmd *cobra.Command, cfg *config.Config, req model.JobRequest) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer closeApp(a, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job := model.NewJob(uid.New(), req, nowUTC())
	log := logging.For("cli").With().Str("job_id", job.ID).Str("username", job.Username).Logger()

	summary, err := runGuarded(logging.WithContext(ctx, log), a.jobStore, a.pipeline, job, cfg.Jobs.LockTTL, &logProgress{log: log})
	if err != nil {
		return err
	}
	return printJSON(cmd, summary)
}

// runGuarded runs job while holding the player guard, so a foreground run
// never overlaps a server job for the same player sharing the job store.
func runGuarded(ctx context.Context, lock cache.PlayerLock, exec jobs.Executor, job *model.Job, ttl time.Duration, progress service.Progress) (summary *model.Summary, err error) {
	ok, err := lock.TryAcquire(ctx, job.Username, job.ID, ttl)
	if err != nil {
		return nil, errors.Wrap(err, "acquire player lock")
	}
	if !ok {
		return nil, errors.Wrapf(model.ErrPlayerBusy, "%s", job.Username)
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if rerr := lock.Release(rctx, job.Username, job.ID); rerr != nil {
			logging.Ctx(ctx).Warn().Err(rerr).Msg("release player lock")
		}
	}()
	defer func() {
		if rec := recover(); rec != nil {
			summary, err = nil, errors.Errorf("job panicked: %v", rec)
		}
	}()
	return exec.Run(ctx, job, progress)
}

func closeApp(a *app, cfg *config.Config) {
	ctx, cancel := shutdownContext(cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.close(ctx); err != nil {
		logging.Warn().Err(err).Msg("close")
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
