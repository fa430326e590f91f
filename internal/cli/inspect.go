package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iontrap/fecs/internal/compiler"
	"github.com/iontrap/fecs/internal/instr"
	"github.com/iontrap/fecs/internal/store"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Variant  int
	Database string
	Run      string
	List     bool
	Sequence string // filter for --list
}

// InspectResult holds a disassembled instruction stream.
type InspectResult struct {
	Sequence      string   `json:"sequence"`
	Variant       int      `json:"variant"`
	RunID         string   `json:"run_id,omitempty"`
	LengthTicks   int      `json:"length_ticks"`
	ContainsJumps bool     `json:"contains_jumps"`
	Words         []uint32 `json:"words"`
	Disassembly   string   `json:"disassembly"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect [definition]",
		Short: "Disassemble a compiled sequence or archived run",
		Long: `Disassemble instruction words into a readable listing.

With a definition argument the sequence is compiled fresh and its
stream disassembled. With --db and --run an archived run is read back
instead. --list shows the archived runs in a database.

Examples:
  fecs inspect sequences/detection.cue --variant 2
  fecs inspect --db runs.db --run 018f0a3e-...
  fecs inspect --db runs.db --list --sequence detection`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Variant, "variant", 0, "variant to compile")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database of archived runs")
	cmd.Flags().StringVar(&opts.Run, "run", "", "archived run id to disassemble")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list archived runs")
	cmd.Flags().StringVar(&opts.Sequence, "sequence", "", "filter --list by sequence name")

	return cmd
}

func runInspect(opts *InspectOptions, args []string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	switch {
	case opts.List:
		if opts.Database == "" {
			return NewExitError(ExitCommandError, "--list requires --db")
		}
		return listRuns(opts, formatter)
	case opts.Run != "":
		if opts.Database == "" {
			return NewExitError(ExitCommandError, "--run requires --db")
		}
		return inspectRun(opts, formatter)
	case len(args) == 1:
		return inspectDefinition(opts, args[0], formatter)
	default:
		return NewExitError(ExitCommandError, "give a definition to compile, or --db with --run or --list")
	}
}

func inspectDefinition(opts *InspectOptions, definition string, formatter *OutputFormatter) error {
	sequence, err := loadDefinition(definition)
	if err != nil {
		return err
	}
	c, err := compiler.New(sequence, compiler.Options{Logger: commandLogger(opts.Verbose)})
	if err != nil {
		if outErr := formatter.Error(diagnosticCode(err), err.Error(), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, "verification failed")
	}
	words, report, err := c.Compile(opts.Variant)
	if err != nil {
		if outErr := formatter.Error(diagnosticCode(err), err.Error(), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, "compilation failed")
	}
	return outputInspectResult(formatter, &InspectResult{
		Sequence:      report.Sequence,
		Variant:       report.Variant,
		LengthTicks:   report.LengthTicks,
		ContainsJumps: report.ContainsJumps,
		Words:         words,
		Disassembly:   instr.Disassemble(words),
	})
}

func inspectRun(opts *InspectOptions, formatter *OutputFormatter) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	run, err := st.GetRun(context.Background(), opts.Run)
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("no run %s in %s", opts.Run, opts.Database))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	return outputInspectResult(formatter, &InspectResult{
		Sequence:      run.Report.Sequence,
		Variant:       run.Report.Variant,
		RunID:         run.ID,
		LengthTicks:   run.Report.LengthTicks,
		ContainsJumps: run.Report.ContainsJumps,
		Words:         run.Report.Words,
		Disassembly:   instr.Disassemble(run.Report.Words),
	})
}

func listRuns(opts *InspectOptions, formatter *OutputFormatter) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	runs, err := st.ListRuns(context.Background(), opts.Sequence)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No archived runs.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(formatter.Writer, "%s  %s variant %d  %d ticks  %s\n",
			r.ID, r.Sequence, r.Variant, r.LengthTicks, r.CompiledAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func outputInspectResult(formatter *OutputFormatter, result *InspectResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "%s variant %d: %d words, %d ticks\n",
		result.Sequence, result.Variant, len(result.Words), result.LengthTicks)
	if result.RunID != "" {
		fmt.Fprintf(formatter.Writer, "run %s\n", result.RunID)
	}
	fmt.Fprint(formatter.Writer, result.Disassembly)
	return nil
}
