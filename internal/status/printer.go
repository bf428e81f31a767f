package status

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gosuri/uilive"
)

// Printer redraws the state report in place on a terminal.
type Printer struct {
	source    Source
	frequency time.Duration
	writer    *uilive.Writer
}

// NewPrinter creates a printer writing to out every frequency.
func NewPrinter(source Source, frequency time.Duration, out io.Writer) *Printer {
	writer := uilive.New()
	writer.Out = out
	return &Printer{
		source:    source,
		frequency: frequency,
		writer:    writer,
	}
}

// Start redraws until ctx is done.
func (p *Printer) Start(ctx context.Context) {
	ticker := time.NewTicker(p.frequency)
	defer ticker.Stop()

	p.print()
	for {
		select {
		case <-ctx.Done():
			p.writer.Flush()
			return
		case <-ticker.C:
			p.print()
		}
	}
}

func (p *Printer) print() {
	fmt.Fprint(p.writer, Render(p.source.Snapshot()))
	p.writer.Flush()
}

// Render formats a snapshot as the human-readable state report.
func Render(s Snapshot) string {
	var b strings.Builder
	b.WriteString(" === State report === \n")
	fmt.Fprintf(&b, " Mode : %s\n", title(s.Mode))
	if s.Loading {
		b.WriteString(" Model reload in progress\n")
	} else {
		fmt.Fprintf(&b, " Model reload in %s\n", FormatCountdown(s.NextReloadIn))
	}
	fmt.Fprintf(&b, " Last episode reward (Average per player) : %.6f\n", s.LastAverageReward)
	checkpoint := s.Checkpoint
	if checkpoint == "" {
		checkpoint = "<none>"
	}
	fmt.Fprintf(&b, " Checkpoint : %s (v%d)\n", checkpoint, s.Version)
	fmt.Fprintf(&b, " Episodes : %d  Steps : %d\n", s.Episodes, s.Steps)
	fmt.Fprintf(&b, " CPU : %.1f%%  RSS : %.1f MiB\n", s.Process.CPUPercent, float64(s.Process.RSSBytes)/(1<<20))
	return b.String()
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
