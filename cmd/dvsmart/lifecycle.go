package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dvsmart-go/internal/app"
	"dvsmart-go/internal/dvs"
)

// runOperation executes op in its own audited job and prints the result.
// A job that does not complete makes the command fail.
func runOperation(cmd *cobra.Command, op app.Operation, root string) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := a.RunOptions(root)
	if err := applyRunFlags(cmd, &opts); err != nil {
		return err
	}

	job, err := a.Run(ctx, op, opts)
	if job != nil {
		printJob(os.Stdout, job)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op.JobName, err)
	}
	if job.Status != dvs.JobCompleted {
		return fmt.Errorf("%s finished with status %s", op.JobName, job.Status)
	}
	return nil
}

// applyRunFlags overrides config settings with the flags a command defines.
func applyRunFlags(cmd *cobra.Command, opts *dvs.RunOptions) error {
	flags := cmd.Flags()
	if f := flags.Lookup("limit"); f != nil && f.Changed {
		opts.Limit, _ = flags.GetInt("limit")
	}
	if f := flags.Lookup("workers"); f != nil && f.Changed {
		n, _ := flags.GetInt("workers")
		if n < 1 {
			return fmt.Errorf("--workers must be positive, got %d", n)
		}
		opts.Workers = n
	}
	if f := flags.Lookup("stale"); f != nil && f.Changed {
		opts.StaleAfter, _ = flags.GetDuration("stale")
	}
	if f := flags.Lookup("max-attempts"); f != nil && f.Changed {
		opts.MaxAttempts, _ = flags.GetInt("max-attempts")
	}
	if f := flags.Lookup("cleanup"); f != nil && f.Changed {
		opts.Cleanup, _ = flags.GetBool("cleanup")
	}
	return nil
}

func rootArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

var discoverCmd = &cobra.Command{
	Use:   "discover [ROOT]",
	Short: "Record new and changed files under the source root",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, app.PhaseOperation(dvs.PhaseDiscover), rootArg(args))
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Validate discovered files and extract their metadata",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, app.PhaseOperation(dvs.PhaseIndex), "")
	},
}

var reorganizeCmd = &cobra.Command{
	Use:   "reorganize",
	Short: "Transfer pending files to the destination",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, app.PhaseOperation(dvs.PhaseReorganize), "")
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete reorganized files from the source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, app.PhaseOperation(dvs.PhaseCleanup), "")
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Return stale PROCESSING claims to PENDING",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, app.PhaseOperation(dvs.PhaseRecover), "")
	},
}

var runCmd = &cobra.Command{
	Use:   "run [ROOT]",
	Short: "Run the full lifecycle as one job",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		list, _ := cmd.Flags().GetString("phases")
		phases, err := app.ParsePhases(list)
		if err != nil {
			return err
		}
		return runOperation(cmd, app.NewOperation(name, phases...), rootArg(args))
	},
}

func init() {
	for _, c := range []*cobra.Command{discoverCmd, indexCmd, reorganizeCmd, cleanupCmd, recoverCmd, runCmd} {
		c.Flags().Int("limit", 0, "Maximum number of files to process (0 = no limit)")
	}

	reorganizeCmd.Flags().IntP("workers", "w", 0, "Number of concurrent transfers (default from config)")
	recoverCmd.Flags().Duration("stale", 0, "Reclaim claims older than this (default from config)")

	runCmd.Flags().IntP("workers", "w", 0, "Number of concurrent transfers (default from config)")
	runCmd.Flags().Duration("stale", 0, "Reclaim claims older than this (default from config)")
	runCmd.Flags().Int("max-attempts", 0, "Requeue failed files with fewer attempts (default from config)")
	runCmd.Flags().Bool("cleanup", false, "Delete reorganized files from the source (default from config)")
	runCmd.Flags().String("phases", "", "Comma-separated phases to run (default all)")
	runCmd.Flags().String("name", "manual", "Job name recorded in the audit trail")
}
