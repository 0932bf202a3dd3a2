package pipeline

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/teranos/civicload/errors"
	"github.com/teranos/civicload/load"
)

// RunStatus is the overall verdict of a run
type RunStatus string

const (
	RunSuccess        RunStatus = "SUCCESS"
	RunPartialFailure RunStatus = "PARTIAL_FAILURE"
)

// DatasetResult is the terminal record of one dataset
type DatasetResult struct {
	Dataset     string
	State       State
	FailedStage Stage // empty unless State is FAILED
	ErrorKind   errors.Kind
	Err         error
	Retryable   bool // a later run may succeed without operator action

	FilesDownloaded int
	FilesSkipped    int
	FilesNormalized int
	FilesValidated  int
	Warnings        int
	Load            load.Outcome
	Elapsed         time.Duration
}

// Succeeded reports whether the dataset was loaded
func (r DatasetResult) Succeeded() bool { return r.State == StateLoaded }

// Totals aggregates a run
type Totals struct {
	Loaded          int
	Failed          int
	FilesDownloaded int
	FilesSkipped    int
	RowsInserted    int64
	RowsUpdated     int64
}

// RunResult is the outcome of Orchestrator.Run
type RunResult struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Datasets []DatasetResult
}

// Totals sums the dataset results
func (r RunResult) Totals() Totals {
	var t Totals
	for _, d := range r.Datasets {
		if d.Succeeded() {
			t.Loaded++
		} else {
			t.Failed++
		}
		t.FilesDownloaded += d.FilesDownloaded
		t.FilesSkipped += d.FilesSkipped
		t.RowsInserted += d.Load.Inserted
		t.RowsUpdated += d.Load.Updated
	}
	return t
}

// Status is SUCCESS iff every dataset was loaded
func (r RunResult) Status() RunStatus {
	for _, d := range r.Datasets {
		if !d.Succeeded() {
			return RunPartialFailure
		}
	}
	return RunSuccess
}

// Err aggregates the failures of the run, nil when every dataset loaded
func (r RunResult) Err() error {
	var result *multierror.Error
	for _, d := range r.Datasets {
		if d.Err != nil {
			result = multierror.Append(result, errors.Wrapf(d.Err, "%s", d.Dataset))
		}
	}
	return result.ErrorOrNil()
}

// Elapsed is the wall time of the run
func (r RunResult) Elapsed() time.Duration { return r.Finished.Sub(r.Started) }
