package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"remix-sync/internal/core/resolve"
	"remix-sync/internal/infra/logx"
	"remix-sync/internal/remix"
)

// Op is the user-facing operation a Run belongs to.
type Op string

const (
	OpPull   Op = "pull"
	OpPush   Op = "push"
	OpImport Op = "import"
)

// Stage is a step of a pipeline run.
type Stage string

const (
	StageLink        Stage = "ReadingLink"
	StageResolving   Stage = "Resolving"
	StageUnwrapping  Stage = "Unwrapping"
	StageCreating    Stage = "CreatingProject"
	StageSavingLink  Stage = "SavingLink"
	StageExporting   Stage = "Exporting"
	StageMapping     Stage = "MappingExportedFiles"
	StageIngesting   Stage = "Ingesting"
	StageDiscovering Stage = "DiscoveringAttributes"
	StageCommitting  Stage = "Committing"
	StageSavingLayer Stage = "SavingLayer"
	StageQuerying    Stage = "QueryingTextures"
	StageImporting   Stage = "ImportingTextures"
	StageDone        Stage = "Done"
)

// IssueKind classifies a problem recorded during a run.
type IssueKind string

const (
	KindConnectivity    IssueKind = "connectivity"
	KindRemoteRejection IssueKind = "remote-rejection"
	KindResolution      IssueKind = "resolution"
	KindIngestion       IssueKind = "ingestion"
	KindMapping         IssueKind = "mapping"
	KindCommit          IssueKind = "commit"
	KindLayerSave       IssueKind = "layer-save"
	KindExport          IssueKind = "export"
	KindLink            IssueKind = "link"
	KindImport          IssueKind = "import"
)

// Issue is one non-fatal or fatal problem, kept for the final report.
type Issue struct {
	Stage   Stage
	Kind    IssueKind
	Subject string
	Message string
}

func (i Issue) String() string {
	if i.Subject != "" {
		return fmt.Sprintf("[%s] %s: %s", i.Stage, i.Subject, i.Message)
	}
	return fmt.Sprintf("[%s] %s", i.Stage, i.Message)
}

// Outcome is the overall classification of a finished run.
type Outcome string

const (
	OutcomeSuccess Outcome = "Success"
	OutcomePartial Outcome = "Partial"
	OutcomeFailed  Outcome = "Failed"
)

// StageResult records how a stage went.
type StageResult struct {
	Stage    Stage
	Items    int
	Duration time.Duration
}

// Counts are the per-stage item totals of a push or import. Attempted and
// Imported belong to imports, the rest to pushes.
type Counts struct {
	Exported  int `json:"exported,omitempty"`
	Ingested  int `json:"ingested,omitempty"`
	Mapped    int `json:"mapped,omitempty"`
	Committed int `json:"committed,omitempty"`
	Attempted int `json:"attempted,omitempty"`
	Imported  int `json:"imported,omitempty"`
}

// Run is the state of one pull, push or import. It is owned by the goroutine
// executing the pipeline until it is returned to the caller.
type Run struct {
	ID      string
	Op      Op
	Started time.Time

	Stages  []StageResult
	Counts  Counts
	Outcome Outcome

	// Asset fields describe what the run resolved or operated on.
	Material string
	MeshFile string
	LayerID  string
	// Committed lists the attribute paths bound by a push.
	Committed []string

	issues  []Issue
	aborted bool
	fatal   Issue
	current Stage
	entered time.Time
}

func newRun(op Op) *Run {
	now := time.Now()
	return &Run{ID: uuid.NewString(), Op: op, Started: now, entered: now}
}

// enter closes the current stage and starts the next one.
func (r *Run) enter(s Stage) {
	r.closeStage(0)
	r.current = s
	r.entered = time.Now()
}

func (r *Run) closeStage(items int) {
	if r.current == "" {
		return
	}
	res := StageResult{Stage: r.current, Items: items, Duration: time.Since(r.entered)}
	r.Stages = append(r.Stages, res)
	r.current = ""
	logx.Infow("stage done", "run", r.ID, "op", string(r.Op), "stage", string(res.Stage),
		"items", res.Items, "duration", res.Duration.String())
}

// done records the item count of the current stage and closes it.
func (r *Run) done(items int) { r.closeStage(items) }

func (r *Run) issue(kind IssueKind, subject, format string, args ...any) {
	st := r.current
	if st == "" && len(r.Stages) > 0 {
		st = r.Stages[len(r.Stages)-1].Stage
	}
	is := Issue{Stage: st, Kind: kind, Subject: subject, Message: fmt.Sprintf(format, args...)}
	r.issues = append(r.issues, is)
	logx.Warnw("run issue", "run", r.ID, "op", string(r.Op), "stage", string(is.Stage),
		"kind", string(is.Kind), "subject", is.Subject, "error", is.Message)
}

// abort records a hard stop. The run still finishes normally.
func (r *Run) abort(kind IssueKind, subject string, err error) {
	r.issue(kind, subject, "%v", err)
	r.aborted = true
	r.fatal = r.issues[len(r.issues)-1]
}

// Fatal returns the issue that aborted the run, if any.
func (r *Run) Fatal() (Issue, bool) { return r.fatal, r.aborted }

// Aborted reports whether a hard-stop condition ended the run early.
func (r *Run) Aborted() bool { return r.aborted }

// Issues returns the recorded issues, de-duplicated and sorted by stage order
// then message.
func (r *Run) Issues() []Issue {
	order := map[Stage]int{}
	for i, s := range r.Stages {
		if _, ok := order[s.Stage]; !ok {
			order[s.Stage] = i
		}
	}
	seen := map[string]bool{}
	out := make([]Issue, 0, len(r.issues))
	for _, is := range r.issues {
		k := is.String()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, is)
	}
	sort.SliceStable(out, func(i, j int) bool {
		oi, oj := order[out[i].Stage], order[out[j].Stage]
		if oi != oj {
			return oi < oj
		}
		return out[i].String() < out[j].String()
	})
	return out
}

// finish closes the last stage and classifies the run.
func (r *Run) finish() *Run {
	r.closeStage(0)
	r.current = StageDone
	switch {
	case r.aborted:
		r.Outcome = OutcomeFailed
	case r.Op == OpPush && r.Counts.Ingested > 0 && r.Counts.Committed == 0,
		r.Op == OpImport && r.Counts.Attempted > 0 && r.Counts.Imported == 0:
		r.Outcome = OutcomeFailed
	case len(r.issues) > 0:
		r.Outcome = OutcomePartial
	case r.Op == OpPush && !(r.Counts.Exported == r.Counts.Ingested &&
		r.Counts.Ingested == r.Counts.Mapped && r.Counts.Mapped == r.Counts.Committed):
		r.Outcome = OutcomePartial
	default:
		r.Outcome = OutcomeSuccess
	}
	logx.Infow("run finished", "run", r.ID, "op", string(r.Op), "outcome", string(r.Outcome),
		"summary", r.Summary())
	return r
}

// Summary is the one-line report shown to the user.
func (r *Run) Summary() string {
	n := len(r.Issues())
	switch r.Op {
	case OpPush:
		return fmt.Sprintf("Exported: %d, Ingested: %d, Mapped: %d, Committed: %d, Issues: %d",
			r.Counts.Exported, r.Counts.Ingested, r.Counts.Mapped, r.Counts.Committed, n)
	case OpImport:
		return fmt.Sprintf("Attempted: %d, Imported: %d, Issues: %d", r.Counts.Attempted, r.Counts.Imported, n)
	default:
		return fmt.Sprintf("Material: %s, Mesh: %s, Issues: %d", orDash(r.Material), orDash(r.MeshFile), n)
	}
}

// Report is the summary followed by one line per issue.
func (r *Run) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s: %s\n", strings.ToUpper(string(r.Op)), r.Outcome, r.Summary())
	for _, is := range r.Issues() {
		b.WriteString("  - ")
		b.WriteString(is.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// kindOf maps an error to the taxonomy, defaulting to fallback for errors
// that did not come from the control API.
func kindOf(err error, fallback IssueKind) IssueKind {
	var apiErr *remix.Error
	if errors.As(err, &apiErr) {
		if apiErr.Rejected() {
			return KindRemoteRejection
		}
		if apiErr.StatusCode == 0 {
			return KindConnectivity
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindConnectivity
	}
	for _, e := range []error{resolve.ErrNoSelection, resolve.ErrNoMaterial, resolve.ErrNoMeshFile, resolve.ErrUnresolvedRelative} {
		if errors.Is(err, e) {
			return KindResolution
		}
	}
	return fallback
}
