package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wsiflow/tilesched/pkg/model"
)

func newWatchCmd() *cobra.Command {
	var workflow bool

	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Stream live state changes for a job or workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := model.EntityJob
			if workflow {
				kind = model.EntityWorkflow
			}

			sub, err := engineFromContext(cmd).Subscribe(cmd.Context(), flagTenantID, kind, args[0])
			if err != nil {
				return fmt.Errorf("subscribe: %w", err)
			}
			defer sub.Close()

			fmt.Printf("Watching %s %s (Ctrl-C to stop)\n", kind, args[0])
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case <-sub.Done():
					return nil
				case evt := <-sub.Events:
					printEvent(evt)
				}
			}
		},
	}

	cmd.Flags().BoolVar(&workflow, "workflow", false, "Watch a workflow instead of a job")
	return cmd
}

func printEvent(evt model.Event) {
	fmt.Printf("[%s] %s %s state=%s progress=%.0f%%",
		evt.At.Format("15:04:05"), evt.EntityKind, evt.EntityID, evt.State, evt.Progress*100)
	if evt.TilesTotal > 0 {
		fmt.Printf(" tiles=%d/%d", evt.TilesDone, evt.TilesTotal)
	}
	if evt.Reason != "" {
		fmt.Printf(" reason=%s", evt.Reason)
	}
	fmt.Println()
}
