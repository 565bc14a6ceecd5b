package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"benchrun/pkg/models"
	"benchrun/pkg/runconfig"
)

var runTimeout time.Duration

// newRunCmd builds the run command and its source and url subcommands
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run benchmarks locally",
		Long: `Run benchmark functions through the local toolchain. Arguments after "--"
are passed to the run (for example --filter, --benchtime, --count, --list).`,
	}
	runCmd.AddCommand(&cobra.Command{
		Use:   "source <file|-> [-- run-args...]",
		Short: "Run the benchmarks declared in a Go test file",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSource,
	})
	runCmd.AddCommand(&cobra.Command{
		Use:   "url <url> [-- run-args...]",
		Short: "Fetch a Go test file and run its benchmarks",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runURL,
	})

	runCmd.PersistentFlags().DurationVar(&runTimeout, "timeout", 10*time.Minute, "abort the run after this long")
	return runCmd
}

// splitRunArgs separates the target from everything after "--".
func splitRunArgs(cmd *cobra.Command, args []string) (string, []string, error) {
	dash := cmd.ArgsLenAtDash()
	if dash == -1 {
		dash = len(args)
	}
	if dash != 1 {
		return "", nil, fmt.Errorf("expected exactly one target before \"--\", got %d", dash)
	}
	return args[0], args[dash:], nil
}

func runSource(cmd *cobra.Command, args []string) error {
	path, runArgs, err := splitRunArgs(cmd, args)
	if err != nil {
		return err
	}

	var text []byte
	if path == "-" {
		text, err = io.ReadAll(cmd.InOrStdin())
	} else {
		text, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read source: %w", err)
	}

	ctx, cancel := contextWithTimeout(cmd)
	defer cancel()

	summary, err := newFacade(cfg).RunSource(ctx, string(text), cliRunConfig(cmd), runArgs...)
	return printSummary(cmd, summary, err)
}

func runURL(cmd *cobra.Command, args []string) error {
	url, runArgs, err := splitRunArgs(cmd, args)
	if err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd)
	defer cancel()

	summary, err := newFacade(cfg).RunURL(ctx, url, cliRunConfig(cmd), runArgs...)
	return printSummary(cmd, summary, err)
}

// cliRunConfig sends --info and --list output to stderr as plain lines.
func cliRunConfig(cmd *cobra.Command) *runconfig.Config {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.LevelKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(cmd.ErrOrStderr()), zap.InfoLevel)

	rc := runconfig.Default()
	rc.ArtifactsPath = cfg.ArtifactsPath
	return rc.AddLogger(zap.New(core))
}

func printSummary(cmd *cobra.Command, s *models.Summary, err error) error {
	if err != nil {
		if errors.Is(err, models.ErrUnsupported) {
			return fmt.Errorf("%w (set BENCHRUN_DYNAMIC_SOURCE=on to force)", err)
		}
		return err
	}
	out := cmd.OutOrStdout()

	if s == nil {
		fmt.Fprintln(out, "Nothing to run")
		return nil
	}
	if s.IsPlaceholder() {
		return fmt.Errorf("nothing to run: %s", s.Title)
	}

	if IsJSONOutput() {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	fmt.Fprintf(out, "%s\n\n", s.Title)
	table := tablewriter.NewWriter(out)
	table.Header("Benchmark", "N", "ns/op", "B/op", "allocs/op")
	for _, r := range s.Reports {
		table.Append([]string{
			r.Benchmark,
			strconv.Itoa(r.N),
			strconv.FormatFloat(r.NsPerOp, 'f', 2, 64),
			strconv.FormatUint(r.BytesPerOp, 10),
			strconv.FormatUint(r.AllocsPerOp, 10),
		})
	}
	table.Render()

	fmt.Fprintf(out, "\nTotal time: %s\n", s.TotalTime.Round(time.Millisecond))
	if s.ResultsDirectory != "" {
		fmt.Fprintf(out, "Results:    %s\n", s.ResultsDirectory)
	}
	if s.LogFilePath != "" {
		fmt.Fprintf(out, "Log:        %s\n", s.LogFilePath)
	}
	return nil
}

func contextWithTimeout(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if runTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, runTimeout)
}
