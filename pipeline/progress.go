package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pterm/pterm"
)

// Emitter reports run progress to a human or a machine.
//
// Implementations include:
// - CLIEmitter: pretty-printed terminal output using pterm
// - JSONEmitter: one JSON event per line for log shippers
// - NopEmitter: discards everything
type Emitter interface {
	// EmitStart announces the datasets a run will process
	EmitStart(runID string, datasets []string)
	// EmitTransition reports one state change of a dataset
	EmitTransition(dataset string, from, to State, detail string)
	// EmitDataset prints the one-line terminal summary of a dataset
	EmitDataset(r DatasetResult)
	// EmitComplete prints the run summary
	EmitComplete(r RunResult)
}

// NopEmitter discards all progress
type NopEmitter struct{}

func (NopEmitter) EmitStart(string, []string)                  {}
func (NopEmitter) EmitTransition(string, State, State, string) {}
func (NopEmitter) EmitDataset(DatasetResult)                   {}
func (NopEmitter) EmitComplete(RunResult)                      {}

// CLIEmitter outputs pretty-printed progress to terminal using pterm
type CLIEmitter struct {
	verbosity int
}

// NewCLIEmitter creates a CLI progress emitter for terminal output
func NewCLIEmitter(verbosity int) *CLIEmitter {
	return &CLIEmitter{verbosity: verbosity}
}

func (e *CLIEmitter) EmitStart(runID string, datasets []string) {
	pterm.Info.Printf("Run %s: %d dataset(s)\n", runID, len(datasets))
}

func (e *CLIEmitter) EmitTransition(dataset string, from, to State, detail string) {
	if to == StateFailed {
		return // EmitDataset reports failures
	}
	msg := fmt.Sprintf("🔄 %s: %s → %s", pterm.LightCyan(dataset), from, to)
	if detail != "" && e.verbosity >= 1 {
		msg += " " + pterm.Gray("("+detail+")")
	}
	pterm.Println(msg)
}

func (e *CLIEmitter) EmitDataset(r DatasetResult) {
	if r.Succeeded() {
		pterm.Success.Printf("%s LOADED into %s: %s inserted, %s updated (%s)\n",
			r.Dataset, r.Load.Table,
			pterm.Green(r.Load.Inserted), pterm.Green(r.Load.Updated),
			r.Elapsed.Round(time.Millisecond))
		return
	}
	pterm.Error.Printf("%s FAILED at %s [%s]: %v\n", r.Dataset, r.FailedStage, r.ErrorKind, r.Err)
	if r.Retryable {
		pterm.Info.Printf("%s: the source may be temporarily unavailable; re-run to retry\n", r.Dataset)
	}
}

func (e *CLIEmitter) EmitComplete(r RunResult) {
	data := pterm.TableData{{"Dataset", "State", "Stage", "Files", "Inserted", "Updated", "Elapsed"}}
	for _, d := range r.Datasets {
		data = append(data, []string{
			d.Dataset,
			string(d.State),
			string(d.FailedStage),
			fmt.Sprintf("%d", d.FilesValidated),
			fmt.Sprintf("%d", d.Load.Inserted),
			fmt.Sprintf("%d", d.Load.Updated),
			d.Elapsed.Round(time.Millisecond).String(),
		})
	}
	t := r.Totals()
	data = append(data, []string{
		"TOTAL",
		fmt.Sprintf("%d loaded, %d failed", t.Loaded, t.Failed),
		"",
		fmt.Sprintf("%d new, %d cached", t.FilesDownloaded, t.FilesSkipped),
		fmt.Sprintf("%d", t.RowsInserted),
		fmt.Sprintf("%d", t.RowsUpdated),
		r.Elapsed().Round(time.Millisecond).String(),
	})

	pterm.Println()
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()

	if r.Status() == RunSuccess {
		pterm.Success.Printf("Run %s: %s\n", r.RunID, r.Status())
	} else {
		pterm.Warning.Printf("Run %s: %s\n", r.RunID, r.Status())
	}
}

// ProgressEvent is one structured JSON progress event
type ProgressEvent struct {
	Type      string                 `json:"type"` // "start", "transition", "dataset", "complete"
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// JSONEmitter writes structured JSON events, one per line
type JSONEmitter struct {
	encoder *json.Encoder
}

// NewJSONEmitter creates a JSON progress emitter writing to w (stdout if nil)
func NewJSONEmitter(w io.Writer) *JSONEmitter {
	if w == nil {
		w = os.Stdout
	}
	return &JSONEmitter{encoder: json.NewEncoder(w)}
}

func (e *JSONEmitter) emit(typ string, data map[string]interface{}) {
	e.encoder.Encode(ProgressEvent{Type: typ, Timestamp: time.Now(), Data: data})
}

func (e *JSONEmitter) EmitStart(runID string, datasets []string) {
	e.emit("start", map[string]interface{}{"run_id": runID, "datasets": datasets})
}

func (e *JSONEmitter) EmitTransition(dataset string, from, to State, detail string) {
	e.emit("transition", map[string]interface{}{
		"dataset": dataset,
		"from":    from,
		"to":      to,
		"detail":  detail,
	})
}

func (e *JSONEmitter) EmitDataset(r DatasetResult) {
	data := map[string]interface{}{
		"dataset":  r.Dataset,
		"state":    r.State,
		"inserted": r.Load.Inserted,
		"updated":  r.Load.Updated,
		"files":    r.FilesValidated,
		"elapsed":  r.Elapsed.Seconds(),
	}
	if r.Err != nil {
		data["stage"] = r.FailedStage
		data["error_kind"] = r.ErrorKind
		data["retryable"] = r.Retryable
		data["error"] = r.Err.Error()
	}
	e.emit("dataset", data)
}

func (e *JSONEmitter) EmitComplete(r RunResult) {
	t := r.Totals()
	e.emit("complete", map[string]interface{}{
		"run_id":           r.RunID,
		"status":           r.Status(),
		"loaded":           t.Loaded,
		"failed":           t.Failed,
		"files_downloaded": t.FilesDownloaded,
		"files_skipped":    t.FilesSkipped,
		"rows_inserted":    t.RowsInserted,
		"rows_updated":     t.RowsUpdated,
		"elapsed":          r.Elapsed().Seconds(),
	})
}
