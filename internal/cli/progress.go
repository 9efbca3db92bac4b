package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/stackwave/stackctl/pkg/engine/executor"
)

// progressPrinter accumulates executor events and renders a final
// per-action summary. Per-resource lines are written by the executor
// itself; the printer only tracks totals.
type progressPrinter struct {
	mu     sync.Mutex
	out    io.Writer
	counts map[executor.EventType]int
	failed []string
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{
		out:    out,
		counts: make(map[executor.EventType]int),
	}
}

// OnEvent is the executor progress callback.
func (p *progressPrinter) OnEvent(event executor.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts[event.Type]++
	if event.Type == executor.EventResourceFailed {
		p.failed = append(p.failed, event.LogicalName)
	}
}

// PrintSummary writes one line per action that occurred.
func (p *progressPrinter) PrintSummary() {
	p.mu.Lock()
	defer p.mu.Unlock()

	lines := []struct {
		event executor.EventType
		label string
	}{
		{executor.EventResourceCompleted, "provisioned"},
		{executor.EventResourceUnchanged, "unchanged"},
		{executor.EventResourceDeleted, "deleted"},
		{executor.EventResourceRolledBack, "rolled back"},
		{executor.EventResourceSkipped, "skipped"},
		{executor.EventResourceFailed, "failed"},
	}
	for _, line := range lines {
		if count := p.counts[line.event]; count > 0 {
			fmt.Fprintf(p.out, "%d %s\n", count, line.label)
		}
	}
	for _, name := range p.failed {
		fmt.Fprintf(p.out, "  failed: %s\n", name)
	}
}
