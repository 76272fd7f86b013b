package stress

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/natefinch/atomic"
)

// Totals aggregates worker results.
type Totals struct {
	Workers         int `json:"workers"`
	FilesCreated    int `json:"files_created"`
	PoolsCreated    int `json:"pools_created"`
	CreateFailures  int `json:"create_failures"`
	CyclesAttempted int `json:"cycles_attempted"`
	CyclesCompleted int `json:"cycles_completed"`
	OpenFailures    int `json:"open_failures"`
	CloseFailures   int `json:"close_failures"`
	FilesRemoved    int `json:"files_removed"`
	Aborted         int `json:"aborted"`
	Fatal           int `json:"fatal"`
}

// Report is the outcome of a [Harness.Run].
type Report struct {
	Config   Config
	Started  time.Time
	Finished time.Time
	Results  []Result
	Totals   Totals
}

func newReport(cfg Config, results []Result, started, finished time.Time) *Report {
	r := &Report{
		Config:   cfg,
		Started:  started,
		Finished: finished,
		Results:  results,
	}

	t := &r.Totals
	t.Workers = len(results)

	for i := range results {
		res := &results[i]

		if res.FileCreated {
			t.FilesCreated++
		}

		if res.Created {
			t.PoolsCreated++
		}

		t.CyclesAttempted += res.CyclesAttempted
		t.CyclesCompleted += res.CyclesCompleted

		if res.Failure != nil {
			switch res.Failure.Op {
			case "create":
				t.CreateFailures++
			case "open":
				t.OpenFailures++
			case "close":
				t.CloseFailures++
			}
		}

		if res.Removed {
			t.FilesRemoved++
		}

		if res.Aborted {
			t.Aborted++
		}

		if res.Fatal != nil {
			t.Fatal++
		}
	}

	return r
}

// Failures returns the results that recorded a backend failure.
func (r *Report) Failures() []Result {
	var out []Result

	for _, res := range r.Results {
		if res.Failure != nil {
			out = append(out, res)
		}
	}

	return out
}

// Summary returns a one-line human summary.
func (r *Report) Summary() string {
	t := r.Totals

	return fmt.Sprintf(
		"%d workers, %d pools created, %d create failures, %d/%d cycles, %d open failures, %d files removed in %s",
		t.Workers, t.PoolsCreated, t.CreateFailures, t.CyclesCompleted, t.CyclesAttempted,
		t.OpenFailures, t.FilesRemoved, r.Finished.Sub(r.Started).Round(time.Millisecond),
	)
}

type reportJSON struct {
	Config   configJSON   `json:"config"`
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	Totals   Totals       `json:"totals"`
	Workers  []resultJSON `json:"workers"`
}

type configJSON struct {
	Prefix  string `json:"prefix"`
	Workers int    `json:"workers"`
	Cycles  int    `json:"cycles"`
	Extent  int64  `json:"extent"`
	Layout  string `json:"layout"`
	Mode    string `json:"mode"`
	IDs     string `json:"ids"`
	Sweep   bool   `json:"sweep"`
}

type resultJSON struct {
	Index           int    `json:"index"`
	ID              string `json:"id"`
	Path            string `json:"path"`
	Created         bool   `json:"created"`
	CyclesCompleted int    `json:"cycles_completed"`
	FailureOp       string `json:"failure_op,omitempty"`
	Failure         string `json:"failure,omitempty"`
	Errno           int    `json:"errno,omitempty"`
	Aborted         bool   `json:"aborted,omitempty"`
	Removed         bool   `json:"removed"`
	Fatal           string `json:"fatal,omitempty"`
}

// MarshalJSON encodes the report with errors as strings and the mode in
// octal.
func (r *Report) MarshalJSON() ([]byte, error) {
	out := reportJSON{
		Config: configJSON{
			Prefix:  r.Config.Prefix,
			Workers: r.Config.Workers,
			Cycles:  r.Config.Cycles,
			Extent:  r.Config.Extent,
			Layout:  r.Config.Layout,
			Mode:    fmt.Sprintf("%#o", uint32(r.Config.Mode)),
			IDs:     r.Config.IDs,
			Sweep:   r.Config.Sweep,
		},
		Started:  r.Started,
		Finished: r.Finished,
		Totals:   r.Totals,
		Workers:  make([]resultJSON, 0, len(r.Results)),
	}

	for _, res := range r.Results {
		rj := resultJSON{
			Index:           res.Index,
			ID:              res.ID,
			Path:            res.Path,
			Created:         res.Created,
			CyclesCompleted: res.CyclesCompleted,
			Aborted:         res.Aborted,
			Removed:         res.Removed,
		}

		if res.Failure != nil {
			rj.FailureOp = res.Failure.Op
			rj.Failure = res.Failure.Error()
			rj.Errno = int(res.Failure.Errno)
		}

		if res.Fatal != nil {
			rj.Fatal = res.Fatal.Error()
		}

		out.Workers = append(out.Workers, rj)
	}

	return json.Marshal(out)
}

// WriteReport writes r as indented JSON to path. The file is replaced
// atomically so readers never see a partial report.
func WriteReport(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	data = append(data, '\n')

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}
