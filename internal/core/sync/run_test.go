package sync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remix-sync/internal/core/resolve"
	"remix-sync/internal/infra/logx"
	"remix-sync/internal/remix"
)

func TestOutcomeClassification(t *testing.T) {
	r := newRun(OpPush)
	r.Counts = Counts{Exported: 2, Ingested: 2, Mapped: 2, Committed: 2}
	assert.Equal(t, OutcomeSuccess, r.finish().Outcome)

	r = newRun(OpPush)
	r.Counts = Counts{Exported: 2, Ingested: 2, Mapped: 1, Committed: 1}
	assert.Equal(t, OutcomePartial, r.finish().Outcome, "unequal counts without issues")

	r = newRun(OpPush)
	r.Counts = Counts{Exported: 2, Ingested: 2, Mapped: 2}
	assert.Equal(t, OutcomeFailed, r.finish().Outcome, "ingested but nothing committed")

	r = newRun(OpImport)
	r.Counts = Counts{Attempted: 2, Imported: 1}
	r.enter(StageImporting)
	r.issue(KindImport, "Import-ao", "file not found")
	assert.Equal(t, OutcomePartial, r.finish().Outcome)

	r = newRun(OpImport)
	r.Counts = Counts{Attempted: 1}
	assert.Equal(t, OutcomeFailed, r.finish().Outcome, "attempted but nothing imported")

	r = newRun(OpPull)
	r.enter(StageResolving)
	r.abort(KindResolution, "", resolve.ErrNoSelection)
	assert.Equal(t, OutcomeFailed, r.finish().Outcome)
	assert.True(t, r.Aborted())
}

func TestIssuesDedupedAndOrderedByStage(t *testing.T) {
	r := newRun(OpPush)
	r.enter(StageExporting)
	r.done(2)
	r.enter(StageIngesting)
	r.issue(KindIngestion, "normal", "timeout")
	r.issue(KindIngestion, "albedo", "timeout")
	r.issue(KindIngestion, "normal", "timeout")
	r.done(0)
	r.enter(StageMapping)
	r.issue(KindExport, "x.png", "duplicate")
	r.finish()

	var got []string
	for _, is := range r.Issues() {
		got = append(got, is.String())
	}
	assert.Equal(t, []string{
		"[Ingesting] albedo: timeout",
		"[Ingesting] normal: timeout",
		"[MappingExportedFiles] x.png: duplicate",
	}, got)
	assert.Equal(t, "Exported: 0, Ingested: 0, Mapped: 0, Committed: 0, Issues: 3", r.Summary())
}

func TestIssueAfterStageClosedKeepsStage(t *testing.T) {
	r := newRun(OpPull)
	r.enter(StageResolving)
	r.done(1)
	r.issue(KindResolution, "tiling mesh", "missing")
	assert.Equal(t, StageResolving, r.Issues()[0].Stage)
}

func TestReport(t *testing.T) {
	r := newRun(OpPull)
	r.Material = "/W/Looks/M"
	r.enter(StageSavingLink)
	r.issue(KindLink, "", "save link: denied")
	r.finish()

	lines := strings.Split(strings.TrimSpace(r.Report()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "PULL Partial: Material: /W/Looks/M, Mesh: -, Issues: 1", lines[0])
	assert.Equal(t, "  - [SavingLink] save link: denied", lines[1])
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want IssueKind
	}{
		{&remix.Error{StatusCode: 422}, KindRemoteRejection},
		{fmt.Errorf("query: %w", &remix.Error{StatusCode: 404}), KindRemoteRejection},
		{&remix.Error{StatusCode: 0, Message: "dial tcp: refused"}, KindConnectivity},
		{&remix.Error{StatusCode: 503}, KindIngestion},
		{&remix.Error{StatusCode: 429}, KindIngestion},
		{context.DeadlineExceeded, KindConnectivity},
		{resolve.ErrNoMeshFile, KindResolution},
		{fmt.Errorf("wrap: %w", resolve.ErrUnresolvedRelative), KindResolution},
		{errors.New("other"), KindIngestion},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, kindOf(c.err, KindIngestion), "%v", c.err)
	}
}

func TestRunIDsAreUnique(t *testing.T) {
	a, b := newRun(OpPush), newRun(OpPush)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestRunLogsStagesAndIssuesAsFields(t *testing.T) {
	var buf bytes.Buffer
	logx.SetOutput(&buf)
	logx.SetMinLevel(logx.LevelInfo)
	t.Cleanup(func() {
		logx.SetOutput(nil)
		logx.SetMinLevel(logx.LevelWarn)
	})

	r := newRun(OpImport)
	r.enter(StageQuerying)
	r.done(4)
	r.enter(StageImporting)
	r.issue(KindImport, "Import-ao", "file not found: ao.png")
	r.finish()

	out := buf.String()
	assert.Contains(t, out, `"msg":"stage done"`)
	assert.Contains(t, out, `"stage":"QueryingTextures"`)
	assert.Contains(t, out, `"items":4`)
	assert.Contains(t, out, `"msg":"run issue"`)
	assert.Contains(t, out, `"subject":"Import-ao"`)
	assert.Contains(t, out, `"msg":"run finished"`)
	assert.Contains(t, out, `"run":"`+r.ID+`"`)
}
