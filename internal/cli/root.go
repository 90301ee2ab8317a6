// Package cli implements the tripbench command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/arkilian/tripbench/internal/config"
	tberrors "github.com/arkilian/tripbench/internal/errors"
)

var (
	// Version of this software, filled in by ldflags.
	Version string
	// BuildTime of this software, filled in by ldflags.
	BuildTime string
)

// Exit codes returned by Execute.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

func setupVersionBuild() {
	if Version == "" {
		Version = "v0.0.0"
	}
	if BuildTime == "" {
		BuildTime = "not recorded"
	}
}

// NewRootCommand creates the tripbench command tree.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	setupVersionBuild()
	rc := &cobra.Command{
		Use:   "tripbench",
		Short: "tripbench - batch benchmark for taxi trip aggregation",
		Long: `Loads taxi trip records, amplifies and cleans them, aggregates them
per key with a two-phase reduction and reports run cost metrics.

Version: ` + Version + `
Build Time: ` + BuildTime + "\n",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rc.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return tberrors.NewConfigError(err.Error(), nil)
	})
	rc.AddCommand(
		newRunCommand(stdout, stderr),
		newCompareCommand(stdout),
		newHistoryCommand(stdout),
		newVersionCommand(stdout),
	)
	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	rc := NewRootCommand(stdin, stdout, stderr)
	rc.SetArgs(args)
	err := rc.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return ExitCode(err)
}

// ExitCode maps an error to a process exit code: configuration and usage
// errors exit 2, every other failure exits 1.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case tberrors.GetCategory(err) == tberrors.ErrCategoryConfig:
		return ExitUsage
	case isUsageError(err):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// usageError marks argument errors raised before a command runs.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func isUsageError(err error) bool {
	var ue *usageError
	return errors.As(err, &ue)
}

func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return &usageError{msg: fmt.Sprintf("unexpected argument %q for %q", args[0], cmd.CommandPath())}
	}
	return nil
}

// loadConfig reads the config file named by --config or TRIPBENCH_CONFIG,
// then applies TRIPBENCH_* environment overrides.
func loadConfig(flags *pflag.FlagSet) (*config.Config, error) {
	v := viper.New()
	v.SetEnvPrefix(config.EnvPrefix)
	v.AutomaticEnv()
	if err := v.BindPFlag("config", flags.Lookup("config")); err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	if path := v.GetString("config"); path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

// flagOverride copies a flag value into the config when the flag was set
// on the command line, so flags win over file and environment.
type flagOverride struct {
	name  string
	apply func()
}

func applyOverrides(flags *pflag.FlagSet, overrides []flagOverride) {
	for _, o := range overrides {
		if flags.Changed(o.name) {
			o.apply()
		}
	}
}

func newLogger(w io.Writer, format string) *slog.Logger {
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, nil))
	}
	return slog.New(slog.NewTextHandler(w, nil))
}

func newVersionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  noArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "tripbench %s (built %s)\n", Version, BuildTime)
		},
	}
}
