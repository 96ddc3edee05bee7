package ingest

import "time"

// DocReport summarizes the ingestion of one document.
type DocReport struct {
	DocID       string
	Title       string
	FilePath    string
	Units       int
	Images      int
	FailedUnits []string
	Skipped     bool
	Failed      bool
}

// RunResult summarizes the outcome of a full ingestion run.
type RunResult struct {
	RunID         string
	DocsProcessed int
	DocsSkipped   int
	DocsFailed    int
	UnitsIndexed  int
	UnitsFailed   int
	Duration      time.Duration
	Reports       []DocReport
	Errors        []error
}

// ProgressFunc is called as each document finishes, with its report.
type ProgressFunc func(done int, total int, report DocReport)
