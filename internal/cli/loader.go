package cli

import (
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/iontrap/fecs/internal/compiler"
	"github.com/iontrap/fecs/internal/seq"
	"github.com/iontrap/fecs/internal/seqfile"
)

// loadDefinition loads a CUE sequence definition, mapping load failures
// onto the command-error exit code. The returned sequence is not yet
// verified.
func loadDefinition(path string) (*seq.Sequence, error) {
	s, err := seqfile.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load definition", err)
	}
	return s, nil
}

// diagnosticCode extracts the machine-readable code from a sequence,
// compiler or loader error, falling back to the generic code.
func diagnosticCode(err error) string {
	var seqErr *seq.Error
	if errors.As(err, &seqErr) {
		return string(seqErr.Code)
	}
	var compErr *compiler.Error
	if errors.As(err, &compErr) {
		return string(compErr.Code)
	}
	var loadErr *seqfile.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	return seqfile.ErrCodeGeneric
}

// commandLogger builds the slog logger commands hand to the compiler.
// Diagnostics go to stderr so they never corrupt JSON output; without
// --verbose only warnings survive.
func commandLogger(verbose bool) *slog.Logger {
	var w io.Writer = os.Stderr
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
