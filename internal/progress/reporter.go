// Package progress renders ingest feedback: an interactive bar on a
// terminal, plain per-document lines on CI.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Doc is one finished document as shown to the user.
type Doc struct {
	Title   string
	Units   int
	Skipped bool
	Failed  bool
}

// Reporter renders ingest progress.
type Reporter interface {
	Start(total int)
	Doc(done int, d Doc)
	Finish()
}

// NewReporter picks a renderer for the current environment. CI logs get
// one line per document instead of control-character bar redraws.
func NewReporter() Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &lineReporter{out: os.Stderr}
	}
	return &barReporter{}
}

type barReporter struct {
	bar   *progressbar.ProgressBar
	units int
}

func (r *barReporter) Start(total int) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Ingesting"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *barReporter) Doc(done int, d Doc) {
	if r.bar == nil {
		return
	}
	switch {
	case d.Failed:
		r.bar.Describe(fmt.Sprintf("%s (failed)", d.Title))
	case d.Skipped:
		r.bar.Describe(fmt.Sprintf("%s (unchanged)", d.Title))
	default:
		r.units += d.Units
		r.bar.Describe(fmt.Sprintf("%s (%d units so far)", d.Title, r.units))
	}
	_ = r.bar.Set(done)
}

func (r *barReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

type lineReporter struct {
	out   io.Writer
	total int
	units int
}

func (r *lineReporter) Start(total int) {
	r.total = total
	fmt.Fprintf(r.out, "Ingesting %d layout files\n", total)
}

func (r *lineReporter) Doc(done int, d Doc) {
	status := fmt.Sprintf("%d units", d.Units)
	switch {
	case d.Failed:
		status = "failed"
	case d.Skipped:
		status = "unchanged"
	default:
		r.units += d.Units
	}
	fmt.Fprintf(r.out, "[%d/%d] %s: %s\n", done, r.total, d.Title, status)
}

func (r *lineReporter) Finish() {
	fmt.Fprintf(r.out, "Indexed %d units\n", r.units)
}
