package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCreateWorkflowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-workflow <name>",
		Short: "Create a new workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := engineFromContext(cmd).CreateWorkflow(cmd.Context(), flagTenantID, args[0])
			if err != nil {
				return fmt.Errorf("create workflow: %w", err)
			}
			fmt.Printf("Workflow created: %s (%s)\n", wf.ID, wf.Name)
			return nil
		},
	}
}
