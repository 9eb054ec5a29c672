package embedsearch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/poiesic/embedsearch/core"
	"github.com/poiesic/embedsearch/storage"
)

const seedChunkSize = 500

// seedLine is one line of a seed file. Field names follow the reviews table.
type seedLine struct {
	ID        core.RecordID   `json:"id"`
	Review    string          `json:"review"`
	Sentiment json.RawMessage `json:"sentiment"`
	Embedding core.Vector     `json:"embedding"`
}

// ReadRecords parses JSON lines of the form
// {"id": 1, "review": "...", "sentiment": "positive"}. Blank lines are
// ignored. Records without an id get one derived from their text.
func ReadRecords(r io.Reader) ([]*core.Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var records []*core.Record
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var sl seedLine
		if err := json.Unmarshal([]byte(line), &sl); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		record := &core.Record{
			ID:        sl.ID,
			Text:      sl.Review,
			Sentiment: labelString(sl.Sentiment),
			Embedding: sl.Embedding,
		}
		if record.ID == "" {
			record.ID = core.IDFromContent(record.Text)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// SeedStore adds records to store in chunks and returns how many were stored.
func SeedStore(ctx context.Context, store storage.RecordStore, records []*core.Record) (int, error) {
	adder, ok := store.(recordAdder)
	if !ok {
		return 0, ErrSeedUnsupported
	}

	added := 0
	for start := 0; start < len(records); start += seedChunkSize {
		end := min(start+seedChunkSize, len(records))
		stored, err := adder.AddRecords(ctx, records[start:end]...)
		if err != nil {
			return added, err
		}
		added += len(stored)
	}
	return added, nil
}

func labelString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
