package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iontrap/fecs/internal/compiler"
)

// ErrNotFound reports a run id with no stored row.
var ErrNotFound = errors.New("run not found")

// Run is one persisted compile: a time-sortable id plus the report
// that fully describes the emitted words.
type Run struct {
	ID     string
	Report *compiler.Report
}

// RunSummary is the listing view of a run, without the words.
type RunSummary struct {
	ID            string
	Sequence      string
	Variant       int
	CompiledAt    time.Time
	LengthTicks   int
	ContainsJumps bool
}

// SaveRun inserts a run. Duplicate ids are silently ignored, so
// re-saving the same run is idempotent.
func (s *Store) SaveRun(ctx context.Context, run Run) error {
	if run.Report == nil {
		return fmt.Errorf("save run %s: report is nil", run.ID)
	}
	reportJSON, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, sequence, variant, compiled_at, delay_unit, length_ticks, contains_jumps, report, words)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Report.Sequence,
		run.Report.Variant,
		run.Report.CompiledAt.UTC().Format(time.RFC3339Nano),
		run.Report.DelayUnit,
		run.Report.LengthTicks,
		run.Report.ContainsJumps,
		string(reportJSON),
		packWords(run.Report.Words),
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var reportJSON string
	var words []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT report, words FROM runs WHERE id = ?`, id,
	).Scan(&reportJSON, &words)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}

	var report compiler.Report
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	// The words column is authoritative; the JSON copy is for external
	// consumers.
	report.Words = unpackWords(words)
	return Run{ID: id, Report: &report}, nil
}

// ListRuns returns the stored runs for one sequence, newest first.
// An empty sequence name lists everything.
func (s *Store) ListRuns(ctx context.Context, sequence string) ([]RunSummary, error) {
	query := `SELECT id, sequence, variant, compiled_at, length_ticks, contains_jumps
		FROM runs ORDER BY id DESC`
	args := []any{}
	if sequence != "" {
		query = `SELECT id, sequence, variant, compiled_at, length_ticks, contains_jumps
			FROM runs WHERE sequence = ? ORDER BY id DESC`
		args = append(args, sequence)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var summaries []RunSummary
	for rows.Next() {
		var summary RunSummary
		var compiledAt string
		if err := rows.Scan(&summary.ID, &summary.Sequence, &summary.Variant,
			&compiledAt, &summary.LengthTicks, &summary.ContainsJumps); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		summary.CompiledAt, err = time.Parse(time.RFC3339Nano, compiledAt)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return summaries, nil
}

// packWords serializes instruction words big-endian, the byte order
// the hardware uploader uses.
func packWords(words []uint32) []byte {
	packed := make([]byte, 4*len(words))
	for i, word := range words {
		binary.BigEndian.PutUint32(packed[4*i:], word)
	}
	return packed
}

func unpackWords(packed []byte) []uint32 {
	words := make([]uint32, len(packed)/4)
	for i := range words {
		words[i] = binary.BigEndian.Uint32(packed[4*i:])
	}
	return words
}
