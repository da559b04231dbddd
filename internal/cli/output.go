package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/indexvault-go/internal/domain/index"
)

// printer writes the human-readable report. Icons:
//
//	✓  succeeded
//	✗  failed (written to stderr)
//	⚠  warning
//	~  state change or neutral info
type printer struct {
	out io.Writer
	err io.Writer
}

func (p printer) section(title string) {
	fmt.Fprintf(p.out, "\n=== %s ===\n", title)
}

func (p printer) ok(name, msg string) {
	p.line(p.out, "✓", name, msg)
}

func (p printer) fail(name, msg string) {
	p.line(p.err, "✗", name, msg)
}

func (p printer) warn(name, msg string) {
	p.line(p.out, "⚠", name, msg)
}

func (p printer) info(name, msg string) {
	p.line(p.out, "~", name, msg)
}

func (p printer) line(w io.Writer, icon, name, msg string) {
	if name == "" {
		fmt.Fprintf(w, "  %s  %s\n", icon, msg)
		return
	}
	fmt.Fprintf(w, "  %s  [%s] %s\n", icon, name, msg)
}

// report prints one line per index followed by a summary.
func (p printer) report(title string, report *index.Report) {
	p.section(title)
	for _, name := range report.Succeeded {
		p.ok(name, "done")
	}
	for _, failure := range report.Failed {
		p.fail(failure.Name, failure.Reason)
	}
	if report.Total() == 0 {
		p.info("", "no indexes to process")
	}

	fmt.Fprintf(p.out, "\n%d succeeded, %d failed in %s (run %s)\n",
		len(report.Succeeded), len(report.Failed),
		report.Duration().Round(time.Millisecond), report.RunID)
}

// reportError turns failed items into the command error so the exit status is 1.
func reportError(report *index.Report) error {
	if !report.HasFailures() {
		return nil
	}
	return fmt.Errorf("%d of %d indexes failed", len(report.Failed), report.Total())
}
