package search

import (
	"fmt"
	"io"

	"github.com/poiesic/embedsearch/core"
)

// SearchMonitor provides hooks to observe a search request.
// Implement this interface to trace intermediate steps and results.
type SearchMonitor interface {
	Start(query string)
	Rejected(err error)
	AfterEmbedding(vector core.Vector)
	AfterProbe(sample []*core.Record, err error)
	Failed(stage string, err error)
	Finish(results []*core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                       {}
func (n *noopMonitor) Rejected(_ error)                     {}
func (n *noopMonitor) AfterEmbedding(_ core.Vector)         {}
func (n *noopMonitor) AfterProbe(_ []*core.Record, _ error) {}
func (n *noopMonitor) Failed(_ string, _ error)             {}
func (n *noopMonitor) Finish(_ []*core.SearchResult)        {}

// TraceMonitor writes one line per stage to a writer.
type TraceMonitor struct {
	w io.Writer
}

var _ SearchMonitor = (*TraceMonitor)(nil)

// NewTraceMonitor creates a monitor that traces to w.
func NewTraceMonitor(w io.Writer) *TraceMonitor {
	return &TraceMonitor{w: w}
}

func (m *TraceMonitor) Start(query string) {
	fmt.Fprintf(m.w, "received: %q\n", query)
}

func (m *TraceMonitor) Rejected(err error) {
	fmt.Fprintf(m.w, "rejected: %v\n", err)
}

func (m *TraceMonitor) AfterEmbedding(vector core.Vector) {
	fmt.Fprintf(m.w, "embedded: %d dimensions\n", len(vector))
}

func (m *TraceMonitor) AfterProbe(sample []*core.Record, err error) {
	if err != nil {
		fmt.Fprintf(m.w, "probe failed (ignored): %v\n", err)
		return
	}
	fmt.Fprintf(m.w, "probe: %d embedded rows sampled\n", len(sample))
}

func (m *TraceMonitor) Failed(stage string, err error) {
	fmt.Fprintf(m.w, "failed at %s: %v\n", stage, err)
}

func (m *TraceMonitor) Finish(results []*core.SearchResult) {
	fmt.Fprintf(m.w, "ranked: %d results\n", len(results))
}
