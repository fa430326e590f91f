package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iontrap/fecs/internal/seq"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Sequence string `json:"sequence"`
	Valid    bool   `json:"valid"`
	Code     string `json:"code,omitempty"`
	Entity   string `json:"entity,omitempty"`
	Message  string `json:"message,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <definition>",
		Short: "Verify a sequence definition without compiling",
		Long: `Verify a CUE sequence definition without emitting instructions.

Checks hardware bindings, name uniqueness, window and jump consistency
and branch reachability for every variant. Faster than compile for
development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, definition string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	sequence, err := loadDefinition(definition)
	if err != nil {
		return err
	}

	result := &ValidationResult{Sequence: sequence.Name, Valid: true}
	if err := sequence.VerifyWith(commandLogger(opts.Verbose)); err != nil {
		result.Valid = false
		result.Code = diagnosticCode(err)
		result.Message = err.Error()
		var seqErr *seq.Error
		if errors.As(err, &seqErr) {
			result.Entity = seqErr.Entity
		}
		if outErr := outputValidateResult(formatter, result); outErr != nil {
			return outErr
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	return outputValidateResult(formatter, result)
}

func outputValidateResult(formatter *OutputFormatter, result *ValidationResult) error {
	if formatter.Format == "json" {
		if !result.Valid {
			return formatter.Error(result.Code, result.Message, result)
		}
		return formatter.Success(result)
	}

	if result.Valid {
		fmt.Fprintf(formatter.Writer, "✓ Sequence %q is valid\n", result.Sequence)
		return nil
	}
	fmt.Fprintf(formatter.Writer, "✗ Sequence %q is invalid\n", result.Sequence)
	fmt.Fprintf(formatter.Writer, "  [%s] %s\n", result.Code, result.Message)
	return nil
}
