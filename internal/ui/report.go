package ui

import (
	"encoding/json"
	"os"
	"time"

	sync "remix-sync/internal/core/sync"
)

type ReportStatus string

const (
	ReportSuccess ReportStatus = "success"
	ReportFailure ReportStatus = "failure"
	ReportWarning ReportStatus = "warning"
)

type ReportEntry struct {
	Subject string       `json:"subject"`
	Stage   string       `json:"stage,omitempty"`
	Kind    string       `json:"kind,omitempty"`
	Status  ReportStatus `json:"status"`
	Error   string       `json:"error,omitempty"`
}

// Report is the JSON form of a finished run.
type Report struct {
	RunID       string        `json:"run_id"`
	Op          string        `json:"op"`
	Outcome     string        `json:"outcome"`
	Summary     string        `json:"summary"`
	StageCounts sync.Counts   `json:"counts"`
	Started     time.Time     `json:"started"`
	Material    string        `json:"material,omitempty"`
	LayerID     string        `json:"layer_id,omitempty"`
	Entries     []ReportEntry `json:"entries"`
}

// NewReport lists the committed attributes as successes, the fatal issue as
// a failure and every other issue as a warning.
func NewReport(r *sync.Run) *Report {
	rep := &Report{
		RunID:       r.ID,
		Op:          string(r.Op),
		Outcome:     string(r.Outcome),
		Summary:     r.Summary(),
		StageCounts: r.Counts,
		Started:     r.Started,
		Material:    r.Material,
		LayerID:     r.LayerID,
		Entries:     []ReportEntry{},
	}
	for _, a := range r.Committed {
		rep.AddSuccess(a)
	}
	fatal, aborted := r.Fatal()
	for _, is := range r.Issues() {
		e := ReportEntry{Subject: is.Subject, Stage: string(is.Stage), Kind: string(is.Kind), Status: ReportWarning, Error: is.Message}
		if aborted && is == fatal {
			e.Status = ReportFailure
		}
		rep.Entries = append(rep.Entries, e)
	}
	return rep
}

func (r *Report) AddSuccess(subject string) {
	r.Entries = append(r.Entries, ReportEntry{Subject: subject, Status: ReportSuccess})
}

func (r *Report) AddFailure(subject string, err error) {
	r.Entries = append(r.Entries, ReportEntry{Subject: subject, Status: ReportFailure, Error: err.Error()})
}

func (r *Report) Counts() (successes, warnings, failures int) {
	for _, e := range r.Entries {
		switch e.Status {
		case ReportSuccess:
			successes++
		case ReportWarning:
			warnings++
		case ReportFailure:
			failures++
		}
	}
	return
}

func (r Report) Dump(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
