// Package seqfile loads sequence definitions authored in CUE and turns
// them into verified-ready seq.Sequence values. A definition file (or
// directory of files forming one instance) carries two top-level
// structs: "hardware", describing the physical setup, and "sequence",
// describing channels, windows, jumps and control variables.
package seqfile

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/iontrap/fecs/internal/seq"
)

// LoadError represents an error that occurred while loading a
// definition file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants, shared with the CLI's exit diagnostics.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNoFiles     = "E002" // No CUE files found
	ErrCodeLoadFailed  = "E003" // CUE load failed
	ErrCodeNotFound    = "E004" // Path not found
	ErrCodeBuildFailed = "E005" // CUE build failed
	ErrCodeBadDef      = "E006" // Definition shape invalid
)

func loadError(code, format string, args ...any) *LoadError {
	return &LoadError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Load reads a sequence definition from a CUE file, or from a directory
// forming a single CUE instance, and assembles the sequence it
// describes. The returned sequence is not yet verified; callers run
// seq.Verify (the compiler does so on construction).
func Load(path string) (*seq.Sequence, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, loadError(ErrCodeNotFound, "definition not found: %s", path)
	}
	if err != nil {
		return nil, loadError(ErrCodeNotFound, "error accessing %s: %v", path, err)
	}

	cfg := &load.Config{Dir: path}
	args := []string{"."}
	if !info.IsDir() {
		cfg.Dir = filepath.Dir(path)
		args = []string{filepath.Base(path)}
	}

	instances := load.Instances(args, cfg)
	if len(instances) == 0 {
		return nil, loadError(ErrCodeNoFiles, "no CUE instance at %s", path)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, loadError(ErrCodeLoadFailed, "loading CUE files: %v", inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, loadError(ErrCodeBuildFailed, "building CUE value: %v", err)
	}

	return Decode(value)
}

// Decode assembles a sequence from an already-built CUE value.
func Decode(value cue.Value) (*seq.Sequence, error) {
	var def fileDef
	if err := value.Decode(&def); err != nil {
		return nil, &LoadError{
			Code:    ErrCodeBuildFailed,
			Message: fmt.Sprintf("decoding definition: %v", err),
			Pos:     value.Pos(),
		}
	}
	if def.Sequence == nil {
		return nil, loadError(ErrCodeBadDef, "no sequence found in definition")
	}
	if def.Hardware == nil {
		return nil, loadError(ErrCodeBadDef, "no hardware found in definition")
	}

	hw, err := buildHardware(def.Hardware)
	if err != nil {
		return nil, err
	}
	return buildSequence(def.Sequence, hw)
}
