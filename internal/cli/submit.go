package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wsiflow/tilesched/pkg/model"
)

func newSubmitJobCmd() *cobra.Command {
	var branch string
	var jobType string

	cmd := &cobra.Command{
		Use:   "submit-job <workflow_id> <file>",
		Short: "Submit a tiling job under a workflow",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			workflowID, fileRef := args[0], args[1]

			jt := model.JobType(jobType)
			if !jt.Valid() {
				return fmt.Errorf("unknown job type %q (want SEGMENT_CELLS or TISSUE_MASK)", jobType)
			}

			job, err := engineFromContext(cmd).CreateJob(cmd.Context(), flagTenantID, workflowID, fileRef, jt, branch)
			if err != nil {
				return fmt.Errorf("create job: %w", err)
			}
			fmt.Printf("Job submitted: %s (branch %s, state %s)\n", job.ID, job.Branch, job.State)
			return nil
		},
	}

	cmd.Flags().StringVar(&branch, "branch", "main", "Branch label (serializes jobs sharing a workflow+branch)")
	cmd.Flags().StringVar(&jobType, "type", string(model.JobTypeSegmentCells), "Job type (SEGMENT_CELLS, TISSUE_MASK)")
	return cmd
}
