package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQueueStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queue-status <job_id>",
		Short: "Report why a pending job is or isn't admissible",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			qs, err := engineFromContext(cmd).QueueStatus(cmd.Context(), flagTenantID, args[0])
			if err != nil {
				return fmt.Errorf("queue status: %w", err)
			}

			fmt.Printf("Queued:            %t\n", qs.Queued)
			if len(qs.WaitingFor) > 0 {
				fmt.Printf("Waiting for:       %v\n", qs.WaitingFor)
			}
			fmt.Printf("Active workers:    %d/%d\n", qs.ActiveWorkers, qs.MaxWorkers)
			fmt.Printf("Active tenants:    %d/%d\n", qs.ActiveUsers, qs.MaxActiveUsers)
			return nil
		},
	}
}
