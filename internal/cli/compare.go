package cli

import (
	"io"

	"github.com/spf13/cobra"

	tberrors "github.com/arkilian/tripbench/internal/errors"
	"github.com/arkilian/tripbench/internal/report"
)

func newCompareCommand(stdout io.Writer) *cobra.Command {
	var (
		before, after           []string
		beforeLabel, afterLabel string
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare externally observed metric samples",
		Long: `Compare prints a before/after table for metric=value samples. A zero
baseline renders the change as "undefined".`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := report.ParseSamples(before)
			if err != nil {
				return tberrors.NewConfigError("invalid --before", err)
			}
			a, err := report.ParseSamples(after)
			if err != nil {
				return tberrors.NewConfigError("invalid --after", err)
			}
			if len(b) == 0 && len(a) == 0 {
				return tberrors.NewConfigError("no samples given", nil)
			}
			return report.WriteTable(stdout, report.CompareLabeled(beforeLabel, b, afterLabel, a))
		},
	}
	flags := cmd.Flags()
	flags.StringArrayVar(&before, "before", nil, "Baseline sample metric=value (repeatable)")
	flags.StringArrayVar(&after, "after", nil, "Candidate sample metric=value (repeatable)")
	flags.StringVar(&beforeLabel, "before-label", "before", "Column label for the baseline")
	flags.StringVar(&afterLabel, "after-label", "after", "Column label for the candidate")
	return cmd
}
