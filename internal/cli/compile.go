package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iontrap/fecs/internal/compiler"
	"github.com/iontrap/fecs/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Variant  int
	All      bool
	Truncate bool
	Output   string // report file path (single variant only)
	Database string // archive compiled runs
}

// CompiledVariant summarizes one compiled variant.
type CompiledVariant struct {
	Variant int    `json:"variant"`
	Words   int    `json:"words"`
	Ticks   int    `json:"ticks"`
	RunID   string `json:"run_id,omitempty"`
}

// CompileResult holds the outcome of a compile invocation.
type CompileResult struct {
	Sequence      string            `json:"sequence"`
	ContainsJumps bool              `json:"contains_jumps"`
	Variants      []CompiledVariant `json:"variants"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <definition>",
		Short: "Compile a sequence definition to instruction words",
		Long: `Compile a CUE sequence definition into FPGA instruction words.

The definition is verified first; a verification failure reports the
offending entity and aborts. One variant is compiled by default,
--all compiles every variant. With --db each compiled run is archived
with its report.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Variant, "variant", 0, "variant to compile")
	cmd.Flags().BoolVar(&opts.All, "all", false, "compile every variant")
	cmd.Flags().BoolVar(&opts.Truncate, "truncate", false, "shorten the sequence to its latest time point")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the compile report to a file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "archive compiled runs in a SQLite database")

	return cmd
}

func runCompile(opts *CompileOptions, definition string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.All && opts.Output != "" {
		return NewExitError(ExitCommandError, "--output takes a single variant, not --all")
	}

	sequence, err := loadDefinition(definition)
	if err != nil {
		return err
	}
	formatter.VerboseLog("Loaded sequence %q: %d variants, %d shots",
		sequence.Name, sequence.Variants, sequence.Shots)

	c, err := compiler.New(sequence, compiler.Options{
		Truncate: opts.Truncate,
		Logger:   commandLogger(opts.Verbose),
	})
	if err != nil {
		if outErr := formatter.Error(diagnosticCode(err), err.Error(), nil); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, "verification failed")
	}

	variants := []int{opts.Variant}
	if opts.All {
		variants = make([]int, sequence.Variants)
		for i := range variants {
			variants[i] = i
		}
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
	}

	ids := store.UUIDv7Generator{}
	result := &CompileResult{
		Sequence:      sequence.Name,
		ContainsJumps: !sequence.Static(),
	}
	for _, variant := range variants {
		words, report, err := c.Compile(variant)
		if err != nil {
			if outErr := formatter.Error(diagnosticCode(err),
				fmt.Sprintf("variant %d: %v", variant, err), nil); outErr != nil {
				return outErr
			}
			return NewExitError(ExitFailure, "compilation failed")
		}
		compiled := CompiledVariant{
			Variant: variant,
			Words:   len(words),
			Ticks:   report.LengthTicks,
		}

		if opts.Output != "" {
			if err := report.WriteFile(opts.Output); err != nil {
				return WrapExitError(ExitCommandError, "failed to write report", err)
			}
			formatter.VerboseLog("Wrote report to %s", opts.Output)
		}
		if st != nil {
			run := store.Run{ID: ids.Generate(), Report: report}
			if err := st.SaveRun(context.Background(), run); err != nil {
				return WrapExitError(ExitCommandError, "failed to archive run", err)
			}
			compiled.RunID = run.ID
			formatter.VerboseLog("Archived run %s", run.ID)
		}
		result.Variants = append(result.Variants, compiled)
	}

	return outputCompileResult(formatter, result)
}

func outputCompileResult(formatter *OutputFormatter, result *CompileResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "Compiled %q: %d variant(s)\n", result.Sequence, len(result.Variants))
	for _, v := range result.Variants {
		fmt.Fprintf(formatter.Writer, "  variant %d: %d words, %d ticks", v.Variant, v.Words, v.Ticks)
		if v.RunID != "" {
			fmt.Fprintf(formatter.Writer, ", run %s", v.RunID)
		}
		fmt.Fprintln(formatter.Writer)
	}
	return nil
}
