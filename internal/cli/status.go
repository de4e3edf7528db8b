package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job_id>",
		Short: "Check the status of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := engineFromContext(cmd).GetJob(cmd.Context(), flagTenantID, args[0])
			if err != nil {
				return fmt.Errorf("get job: %w", err)
			}

			fmt.Printf("Job:        %s\n", job.ID)
			fmt.Printf("  Workflow: %s\n", job.WorkflowID)
			fmt.Printf("  Branch:   %s\n", job.Branch)
			fmt.Printf("  Type:     %s\n", job.JobType)
			fmt.Printf("  State:    %s\n", job.State)
			fmt.Printf("  Progress: %.0f%% (%d/%d tiles)\n", job.Progress*100, job.TilesDone, job.TilesTotal)
			if job.Error != "" {
				fmt.Printf("  Error:    %s\n", job.Error)
			}
			fmt.Printf("  Created:  %s\n", job.CreatedAt)
			if job.TerminalAt != nil {
				fmt.Printf("  Finished: %s\n", job.TerminalAt)
			}
			return nil
		},
	}
}
