package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"remix-sync/internal/core/pbr"
	"remix-sync/internal/remix"
)

// fakeService emulates the ingest endpoint: it writes "<stem>.<ch>.rtex.dds"
// into the requested output directory and reports it on the output channel.
type fakeService struct {
	jobs     []Job
	result   *remix.Result
	relative bool
	skip     bool
}

func (f *fakeService) QueueIngest(_ context.Context, job any) remix.Result {
	j := job.(Job)
	f.jobs = append(f.jobs, j)
	if f.result != nil {
		return *f.result
	}
	data := j.ContextPlugin.Data.(importerData)
	in := data.InputFiles[0][0]
	typ := pbr.Type(strings.Split(j.Name, "_")[1])
	name := InputStem(in) + "." + pbr.OutputSuffix(typ) + ".rtex.dds"
	out := filepath.Join(filepath.FromSlash(data.OutputDirectory), name)
	if !f.skip {
		_ = os.WriteFile(out, []byte("dds"), 0o644)
	}
	reported := filepath.ToSlash(out)
	if f.relative {
		reported = name
	}
	return remix.Result{Success: true, StatusCode: 200, Data: map[string]any{
		"completed_schemas": []any{map[string]any{
			"context_plugin": map[string]any{"data": map[string]any{}},
			"check_plugins": []any{map[string]any{"data": map[string]any{"data_flows": []any{
				map[string]any{"channel": ChannelCleanup, "output_data": []any{"/tmp/junk.png"}},
				map[string]any{"channel": ChannelOutput, "output_data": []any{reported}},
			}}}},
		}},
	}}
}

func writeTexture(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("png"), 0o644))
	return p
}

func TestIngestRoundTripNormal(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	local := writeTexture(t, src, "foo.png")
	svc := &fakeService{}

	got, err := New(svc, "Textures/Ingested").Ingest(context.Background(), pbr.Normal, local, out)
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, filepath.Join(out, "Textures", "Ingested", "foo.n.rtex.dds"), got)
	stem, ch := OutputStem(got)
	assert.Equal(t, "foo", stem)
	assert.Equal(t, "n", ch)

	require.Len(t, svc.jobs, 1)
	j := svc.jobs[0]
	assert.Equal(t, "Ingest_normal_foo.png", j.Name)
	in := j.ContextPlugin.Data.(importerData).InputFiles[0]
	assert.Equal(t, "NORMAL_DX", in[1])
}

func TestIngestRelativeOutputJoinsTargetDir(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	local := writeTexture(t, src, "ABC_albedo.png")

	got, err := New(&fakeService{relative: true}, "sub").Ingest(context.Background(), pbr.Albedo, local, out)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "sub", "ABC_albedo.a.rtex.dds"), got)
}

func TestIngestErrors(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	ctx := context.Background()
	local := writeTexture(t, src, "foo.png")

	_, err := New(&fakeService{}, "x").Ingest(ctx, pbr.Albedo, filepath.Join(src, "nope.png"), out)
	assert.ErrorIs(t, err, ErrInputMissing)

	_, err = New(&fakeService{skip: true}, "x").Ingest(ctx, pbr.Albedo, local, out)
	assert.ErrorIs(t, err, ErrOutputMissing)

	empty := remix.Result{Success: true, StatusCode: 200, Data: map[string]any{"completed_schemas": []any{}}}
	_, err = New(&fakeService{result: &empty}, "x").Ingest(ctx, pbr.Albedo, local, out)
	assert.ErrorIs(t, err, ErrOutputNotFound)

	rejected := remix.Result{StatusCode: 422, Error: "API error (status 422): bad input"}
	_, err = New(&fakeService{result: &rejected}, "x").Ingest(ctx, pbr.Albedo, local, out)
	var apiErr *remix.Error
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Rejected())
}

func TestBuildJobShape(t *testing.T) {
	j := BuildJob(pbr.Roughness, "ROUGHNESS", "C:/in/a_roughness.png", "C:/out/Textures")
	raw, err := json.Marshal(j)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.EqualValues(t, 1, m["executor"])
	cp := m["context_plugin"].(map[string]any)
	assert.Equal(t, "TextureImporter", cp["name"])
	data := cp["data"].(map[string]any)
	assert.Equal(t, []any{[]any{"C:/in/a_roughness.png", "ROUGHNESS"}}, data["input_files"])
	assert.Equal(t, "C:/out/Textures", data["output_directory"])
	assert.Equal(t, true, data["cook_mass_template"])
	assert.Equal(t, false, data["expose_mass_ui"])

	check := m["check_plugins"].([]any)[0].(map[string]any)
	assert.Equal(t, "ConvertToDDS", check["name"])
	assert.Equal(t, map[string]any{"name": "AllShaders", "data": map[string]any{}}, check["selector_plugins"].([]any)[0])

	res := m["resultor_plugins"].([]any)
	cleanup := res[0].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, false, cleanup["cleanup_output"])
	meta := res[1].(map[string]any)["data"].(map[string]any)
	_, has := meta["cleanup_output"]
	assert.False(t, has)
}

func TestOutputPathsContentFallback(t *testing.T) {
	got := OutputPaths(map[string]any{"content": []any{"a.dds", 3, "b.dds"}})
	assert.Equal(t, []string{"a.dds", "b.dds"}, got)
	assert.Empty(t, OutputPaths("not json"))
	assert.Empty(t, OutputPaths(nil))
}

func TestMatchOutput(t *testing.T) {
	outs := []string{
		"/o/foo.png",
		"/o/bar.n.rtex.dds",
		"/o/FOO.a.rtex.dds",
		"/o/foo.n.rtex.dds",
	}
	got, ok := MatchOutput(outs, "foo", "n")
	require.True(t, ok)
	assert.Equal(t, "/o/foo.n.rtex.dds", got)

	got, ok = MatchOutput(outs, "foo", "r")
	require.True(t, ok)
	assert.Equal(t, "/o/FOO.a.rtex.dds", got, "stem-only fallback keeps the first match")

	got, ok = MatchOutput([]string{"/o/foo.dds"}, "foo", "")
	require.True(t, ok)
	assert.Equal(t, "/o/foo.dds", got)

	_, ok = MatchOutput(outs, "baz", "n")
	assert.False(t, ok)
}

func TestInputStem(t *testing.T) {
	assert.Equal(t, "foo", InputStem("/x/foo.png"))
	assert.Equal(t, "foo", InputStem(`C:\x\foo.rtex.png`))
	assert.Equal(t, "foo.bar", InputStem("foo.bar.tga"))
}

// Property: whatever stem and type a file is ingested under, the name the
// service produces for it matches back to that input.
func TestMatchOutputRecoversInputStem(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		stem := rapid.StringMatching(`[A-Za-z0-9][A-Za-z0-9_\-]{0,20}`).Draw(rt, "stem")
		typ := rapid.SampledFrom(pbr.All).Draw(rt, "type")
		ch := pbr.OutputSuffix(typ)
		input := "/src/" + stem + ".png"
		produced := "/out/" + stem + "." + ch + ".rtex.dds"
		decoy := "/out/" + stem + "x." + ch + ".rtex.dds"

		got, ok := MatchOutput([]string{decoy, produced}, InputStem(input), ch)
		if !ok || got != produced {
			rt.Fatalf("MatchOutput = %q,%v want %q", got, ok, produced)
		}
		s, c := OutputStem(got)
		if s != stem || c != ch {
			rt.Fatalf("OutputStem(%q) = %q,%q", got, s, c)
		}
	})
}
