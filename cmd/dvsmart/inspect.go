package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent job executions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		jobs, err := a.Jobs(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("No job executions recorded.")
			return nil
		}
		printJobList(os.Stdout, jobs)
		return nil
	},
}

var jobCmd = &cobra.Command{
	Use:   "job AUDIT_ID",
	Short: "Show one job execution with its steps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		job, err := a.Job(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("job execution %s not found", args[0])
		}
		printJob(os.Stdout, job)
		return nil
	},
}

var fileCmd = &cobra.Command{
	Use:   "file ID",
	Short: "Show the lifecycle record of one file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.File(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("file record %s not found", args[0])
		}
		printFile(os.Stdout, rec)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count file records by reorganization status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		counts, err := a.Stats(cmd.Context())
		if err != nil {
			return err
		}
		printStats(os.Stdout, counts)
		return nil
	},
}

var fetchCmd = &cobra.Command{
	Use:   "fetch ID OUT",
	Short: "Copy a reorganized file from the destination",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		decrypt, _ := cmd.Flags().GetBool("decrypt")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		var pass string
		if decrypt && a.EncryptionEnabled() {
			if pass, err = readPassphrase("Passphrase: "); err != nil {
				return err
			}
		}

		out, err := os.OpenFile(args[1], os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer func() {
			if cerr := out.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("closing output file: %w", cerr)
			}
			if err != nil {
				os.Remove(args[1])
			}
		}()

		if err := a.Fetch(cmd.Context(), args[0], out, decrypt, pass); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", args[1])
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the status API and run scheduled jobs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(ctx)
	},
}

func init() {
	jobsCmd.Flags().IntP("limit", "n", 20, "Maximum number of job executions to show")
	fetchCmd.Flags().Bool("decrypt", false, "Decrypt the file with the private key")
}
