package cli

import (
	"github.com/spf13/cobra"

	stpdb "github.com/dmirchev92/stp/db"
	"github.com/dmirchev92/stp/internal/db"
)

func newMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|down|version|force N>",
		Short: "Apply or roll back the database schema",
		Long: `Apply or roll back the embedded schema migrations against [postgres].

Examples:
  stpctl migrate up
  stpctl migrate version
  stpctl migrate force 1`,
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"up", "down", "version", "force"},
		RunE: func(_ *cobra.Command, args []string) error {
			return db.RunMigrate(e.log, e.cfg.Postgres, stpdb.Migrations(), args[0], args[1:])
		},
	}
}
