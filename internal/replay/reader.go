// Package replay re-runs a recorded event stream through the detection
// pipeline in event time. The same recording always produces the same
// transition trace and signals, which makes it the reference harness
// for threshold tuning and for verifying that the fold is
// deterministic.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"solana-coil-detector/internal/ingest"
)

// maxRowBytes bounds a single JSONL line; rows are small, anything
// bigger is a corrupt recording.
const maxRowBytes = 1 << 20

// ReadRows decodes a JSONL recording of feed rows. Blank lines are
// skipped; a malformed line fails the whole read since a replay over a
// partial recording would silently diverge from the live run.
func ReadRows(r io.Reader) ([]ingest.Row, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxRowBytes)

	var rows []ingest.Row
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var row ingest.Row
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", line, err)
	}
	return rows, nil
}

// ReadFile reads a JSONL recording from disk.
func ReadFile(path string) ([]ingest.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadRows(f)
}
