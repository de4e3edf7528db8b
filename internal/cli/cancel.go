package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job_id>",
		Short: "Cancel a pending job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := engineFromContext(cmd).CancelJob(cmd.Context(), flagTenantID, args[0])
			if err != nil {
				return fmt.Errorf("cancel job: %w", err)
			}
			fmt.Printf("Job %s: %s\n", job.ID, job.State)
			return nil
		},
	}
}

func newRetryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <job_id>",
		Short: "Re-enqueue a terminal job at the FIFO tail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := engineFromContext(cmd).RetryJob(cmd.Context(), flagTenantID, args[0])
			if err != nil {
				return fmt.Errorf("retry job: %w", err)
			}
			fmt.Printf("Job %s: %s\n", job.ID, job.State)
			return nil
		},
	}
}
