package backfill

import (
	"errors"
	"fmt"
	"sync"

	"github.com/poiesic/embedsearch/core"
)

// Status is the result of processing one record.
type Status string

const (
	StatusSkipped Status = "skipped"
	StatusUpdated Status = "updated"
	StatusFailed  Status = "failed"
)

// Entry records what happened to one record.
type Entry struct {
	ID     core.RecordID
	Status Status
	Detail string
	Err    error
}

// Counts is the per-status tally of an Outcome.
type Counts struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Total returns the number of processed records.
func (c Counts) Total() int {
	return c.Updated + c.Skipped + c.Failed
}

func (c Counts) String() string {
	return fmt.Sprintf("updated=%d skipped=%d failed=%d", c.Updated, c.Skipped, c.Failed)
}

// Outcome is the report of one or more backfill passes. It is safe for
// concurrent use.
type Outcome struct {
	mu       sync.Mutex
	entries  []Entry
	passes   int
	selected int
}

func newOutcome() *Outcome {
	return &Outcome{}
}

func (o *Outcome) add(e Entry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, e)
}

func (o *Outcome) addPass(selected int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.passes++
	o.selected += selected
}

// merge appends other's entries and pass statistics to o.
func (o *Outcome) merge(other *Outcome) {
	other.mu.Lock()
	entries := append([]Entry(nil), other.entries...)
	passes, selected := other.passes, other.selected
	other.mu.Unlock()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, entries...)
	o.passes += passes
	o.selected += selected
}

// Entries returns a copy of all recorded entries.
func (o *Outcome) Entries() []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Entry(nil), o.entries...)
}

// Counts tallies entries by status.
func (o *Outcome) Counts() Counts {
	o.mu.Lock()
	defer o.mu.Unlock()

	var c Counts
	for _, e := range o.entries {
		switch e.Status {
		case StatusUpdated:
			c.Updated++
		case StatusSkipped:
			c.Skipped++
		case StatusFailed:
			c.Failed++
		}
	}
	return c
}

// Failed returns the failed entries.
func (o *Outcome) Failed() []Entry {
	o.mu.Lock()
	defer o.mu.Unlock()

	var failed []Entry
	for _, e := range o.entries {
		if e.Status == StatusFailed {
			failed = append(failed, e)
		}
	}
	return failed
}

// Err joins the errors of all failed entries, or returns nil.
func (o *Outcome) Err() error {
	var errs []error
	for _, e := range o.Failed() {
		errs = append(errs, fmt.Errorf("record %s: %w", e.ID, e.Err))
	}
	return errors.Join(errs...)
}

// Passes returns how many passes contributed to the outcome.
func (o *Outcome) Passes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.passes
}

// Selected returns how many records were selected across all passes.
func (o *Outcome) Selected() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.selected
}

// Summary renders a one-line report.
func (o *Outcome) Summary() string {
	c := o.Counts()
	return fmt.Sprintf("%d passes, %d selected: %s", o.Passes(), o.Selected(), c)
}
