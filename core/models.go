package core

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"strconv"

	"github.com/go-crypt/x/blake2b"
)

// RecordID is an opaque, immutable identifier for a stored record.
// Stores may use integer or text primary keys; both round-trip through
// JSON in their original form.
type RecordID string

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) RecordID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return RecordID(strconv.FormatUint(binary.LittleEndian.Uint64(sum), 10))
}

// String returns the identifier text.
func (id RecordID) String() string {
	return string(id)
}

// IsNumeric reports whether the identifier is an integer key in canonical
// form. "007" and "+7" are text keys.
func (id RecordID) IsNumeric() bool {
	n, err := strconv.ParseInt(string(id), 10, 64)
	return err == nil && strconv.FormatInt(n, 10) == string(id)
}

// MarshalJSON writes integer keys as JSON numbers and everything else as strings.
func (id RecordID) MarshalJSON() ([]byte, error) {
	if id.IsNumeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON accepts both JSON numbers and JSON strings.
func (id *RecordID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = RecordID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = RecordID(n.String())
	return nil
}

// Record is a free-text row whose embedding is filled in by the backfill job.
type Record struct {
	ID        RecordID `json:"id"`
	Text      string   `json:"text"`
	Embedding Vector   `json:"embedding,omitempty"`
	Sentiment string   `json:"sentiment,omitempty"`
}

// HasEmbedding reports whether the record already carries a vector.
func (r *Record) HasEmbedding() bool {
	return len(r.Embedding) > 0
}

// SearchResult is one ranked row returned by the store's similarity function.
type SearchResult struct {
	ID              RecordID `json:"id"`
	Text            string   `json:"text"`
	Sentiment       string   `json:"sentiment"`
	SimilarityScore float64  `json:"similarity_score"`
}
