package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dotsetgreg/mnemo/pkg/vector"
)

// exportHeader is the first line of a JSONL export. Dimensions lets the
// importer reject files built against a different embedder.
type exportHeader struct {
	Version    int `json:"version"`
	Dimensions int `json:"dimensions"`
}

const exportVersion = 1

// Export writes every long-term record as JSONL: a header line followed
// by one record per line, ordered by creation time.
func (e *Engine) Export(ctx context.Context, w io.Writer) (int, error) {
	records, err := e.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("engine export: %w", err)
	}
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	if err := enc.Encode(exportHeader{Version: exportVersion, Dimensions: e.cfg.Index.Dimensions}); err != nil {
		return 0, fmt.Errorf("engine export: header: %w", err)
	}
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return i, fmt.Errorf("engine export: record %s: %w", rec.ID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return len(records), fmt.Errorf("engine export: flush: %w", err)
	}
	return len(records), nil
}

// Import reads a JSONL export and upserts its records. Records with ids
// already present are overwritten. The header's dimensions must match
// this engine's index.
func (e *Engine) Import(ctx context.Context, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return 0, fmt.Errorf("engine import: %w", err)
		}
		return 0, fmt.Errorf("engine import: empty input")
	}
	var header exportHeader
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return 0, fmt.Errorf("engine import: header: %w", err)
	}
	if header.Version != exportVersion {
		return 0, fmt.Errorf("engine import: unsupported version %d", header.Version)
	}
	if header.Dimensions != e.cfg.Index.Dimensions {
		return 0, fmt.Errorf("engine import: dimensions %d != index dimensions %d",
			header.Dimensions, e.cfg.Index.Dimensions)
	}

	imported := 0
	line := 1
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec vector.Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return imported, fmt.Errorf("engine import: line %d: %w", line, err)
		}
		if err := e.store.Upsert(ctx, []vector.Record{rec}); err != nil {
			return imported, fmt.Errorf("engine import: line %d: %w", line, err)
		}
		imported++
	}
	if err := scanner.Err(); err != nil {
		return imported, fmt.Errorf("engine import: %w", err)
	}
	if imported > 0 {
		e.invalidateCache()
	}
	return imported, nil
}
