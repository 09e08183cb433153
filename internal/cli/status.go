package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forPelevin/vertclip/internal/pipeline"
)

func newStatusCommand(cc *commandContext) *cobra.Command {
	var attempts bool
	cmd := &cobra.Command{
		Use:   "status <run-dir>",
		Short: "Show the render state of every clip in a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, jobs, err := pipeline.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run:     %s\n", info.RunID)
			fmt.Fprintf(out, "Input:   %s\n", info.Input)
			fmt.Fprintf(out, "Started: %s\n", info.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			if len(jobs) == 0 {
				fmt.Fprintln(out, "No clips recorded")
				return nil
			}
			fmt.Fprintln(out, renderJobs(out, jobs))
			if !attempts {
				return nil
			}
			history, err := pipeline.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderAttempts(out, history))
			return nil
		},
	}
	cmd.Flags().BoolVar(&attempts, "attempts", false, "Also list every attempt of every clip")
	return cmd
}
