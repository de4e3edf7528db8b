package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <workflow_id>",
		Short: "List a workflow's jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := engineFromContext(cmd).ListWorkflowJobs(cmd.Context(), flagTenantID, args[0])
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			if len(jobs) == 0 {
				fmt.Println("No jobs found.")
				return nil
			}

			fmt.Printf("%-40s  %-12s  %-10s  %-8s  %s\n", "ID", "STATE", "BRANCH", "PROGRESS", "TYPE")
			fmt.Printf("%-40s  %-12s  %-10s  %-8s  %s\n", "----", "-----", "------", "--------", "----")
			for _, j := range jobs {
				fmt.Printf("%-40s  %-12s  %-10s  %7.0f%%  %s\n", j.ID, j.State, j.Branch, j.Progress*100, j.JobType)
			}
			return nil
		},
	}
}
