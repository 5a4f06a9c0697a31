package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmirchev92/stp/internal/retention"
)

func newSweepCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete tokens that expired more than tokens.retention_grace ago",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := e.openServices(cmd.Context())
			if err != nil {
				return err
			}
			defer svc.close()

			sweeper, err := retention.NewService(e.log, svc.tokens, e.runtime.SweepSchedule, e.runtime.RetentionGrace)
			if err != nil {
				return err
			}
			deleted, err := sweeper.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "deleted %d expired tokens\n", deleted)
			return nil
		},
	}
}
