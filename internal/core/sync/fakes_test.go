package sync

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"remix-sync/internal/config"
	"remix-sync/internal/core/ingest"
	"remix-sync/internal/core/pbr"
	"remix-sync/internal/link"
	"remix-sync/internal/remix"
)

// fakeRemote is an in-memory control API. Ingest writes the converted file
// into the requested output directory and lists it under "content".
type fakeRemote struct {
	selection []string
	materials map[string]string
	filePaths map[string][]remix.FileRefEntry

	outDir    string
	outDirErr error

	ingestFail map[pbr.Type]bool
	ingested   []string

	attrs       []remix.TextureAttr
	texturesErr error

	updateStatus int
	updates      [][][2]string
	editTarget   string
	saveStatus   int
	saves        []string
}

func (f *fakeRemote) Selection(context.Context) ([]string, error) { return f.selection, nil }

func (f *fakeRemote) MaterialForMesh(_ context.Context, prim string) (string, error) {
	if m, ok := f.materials[prim]; ok {
		return m, nil
	}
	return "", &remix.Error{Op: "bound material", StatusCode: 404, Message: "not found"}
}

func (f *fakeRemote) FilePaths(_ context.Context, prim string) ([]remix.FileRefEntry, error) {
	if e, ok := f.filePaths[prim]; ok {
		return e, nil
	}
	return nil, &remix.Error{Op: "file paths", StatusCode: 404, Message: "not found"}
}

func (f *fakeRemote) DefaultDirectory(context.Context) (string, error) {
	return f.outDir, f.outDirErr
}

type wireJob struct {
	Name          string `json:"name"`
	ContextPlugin struct {
		Data struct {
			InputFiles      [][2]string `json:"input_files"`
			OutputDirectory string      `json:"output_directory"`
		} `json:"data"`
	} `json:"context_plugin"`
}

func (f *fakeRemote) QueueIngest(_ context.Context, job any) remix.Result {
	raw, err := json.Marshal(job)
	if err != nil {
		return remix.Result{Error: err.Error()}
	}
	var j wireJob
	if err := json.Unmarshal(raw, &j); err != nil {
		return remix.Result{Error: err.Error()}
	}
	typ := pbr.Type(strings.SplitN(j.Name, "_", 3)[1])
	if f.ingestFail[typ] {
		return remix.Result{StatusCode: 500, Error: "validation failed"}
	}
	in := j.ContextPlugin.Data.InputFiles[0][0]
	out := filepath.Join(filepath.FromSlash(j.ContextPlugin.Data.OutputDirectory),
		ingest.InputStem(in)+"."+pbr.OutputSuffix(typ)+".rtex.dds")
	if err := os.WriteFile(out, []byte("dds"), 0o644); err != nil {
		return remix.Result{Error: err.Error()}
	}
	f.ingested = append(f.ingested, in)
	return remix.Result{Success: true, StatusCode: 200, Data: map[string]any{
		"content": []any{filepath.ToSlash(out)},
	}}
}

func (f *fakeRemote) Textures(context.Context, string) ([]remix.TextureAttr, error) {
	return f.attrs, f.texturesErr
}

func (f *fakeRemote) UpdateTextures(_ context.Context, pairs [][2]string, _ bool) remix.Result {
	f.updates = append(f.updates, pairs)
	if f.updateStatus != 0 && f.updateStatus != 200 {
		return remix.Result{StatusCode: f.updateStatus, Error: "rejected"}
	}
	return remix.Result{Success: true, StatusCode: 200}
}

func (f *fakeRemote) EditTarget(context.Context) (string, error) {
	if f.editTarget == "" {
		return "", &remix.Error{Op: "edit target", StatusCode: 404, Message: "none"}
	}
	return f.editTarget, nil
}

func (f *fakeRemote) SaveLayer(_ context.Context, id string) remix.Result {
	f.saves = append(f.saves, id)
	if f.saveStatus != 0 && f.saveStatus != 200 {
		return remix.Result{StatusCode: f.saveStatus, Error: "save failed"}
	}
	return remix.Result{Success: true, StatusCode: 200}
}

type memLinks struct {
	link    *link.AssetLink
	saveErr error
}

func (m *memLinks) Load() (link.AssetLink, error) {
	if m.link == nil {
		return link.AssetLink{}, link.ErrNoLink
	}
	return *m.link, nil
}

func (m *memLinks) Save(l link.AssetLink) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.link = &l
	return nil
}

// fakeExporter writes "<hash>_<channel>.png" for each channel.
type fakeExporter struct {
	channels []string
	err      error
	reqs     []ExportRequest
}

func (e *fakeExporter) Export(_ context.Context, req ExportRequest) ([]string, error) {
	e.reqs = append(e.reqs, req)
	if e.err != nil {
		return nil, e.err
	}
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return nil, err
	}
	var out []string
	for _, ch := range e.channels {
		p := filepath.Join(req.Dir, req.MaterialHash+"_"+ch+"."+req.Format)
		if err := os.WriteFile(p, []byte(ch), 0o644); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type fakeProjects struct {
	mesh, template string
	err            error
}

func (p *fakeProjects) Create(_ context.Context, mesh, template string) error {
	p.mesh, p.template = mesh, template
	return p.err
}

type assigned struct {
	Type pbr.Type
	File string
}

type fakeAssigner struct{ got []assigned }

func (a *fakeAssigner) Assign(_ context.Context, typ pbr.Type, file string) error {
	a.got = append(a.got, assigned{typ, file})
	return nil
}

// fakeConverter writes "<stem>.png" next to the DDS unless fail is set.
type fakeConverter struct{ fail bool }

func (c fakeConverter) ConvertToPNG(_ context.Context, dds, _ string) (string, error) {
	if c.fail {
		return "", errors.New("texconv failed (code 1)")
	}
	png := strings.TrimSuffix(dds, filepath.Ext(dds)) + ".png"
	return png, os.WriteFile(png, []byte("png"), 0o644)
}

type fakeUnwrapper struct{ err error }

func (u fakeUnwrapper) Unwrap(_ context.Context, mesh string) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	return strings.TrimSuffix(mesh, filepath.Ext(mesh)) + "_unwrapped" + filepath.Ext(mesh), nil
}

type recorder struct {
	progress []int
	status   []string
}

func (r *recorder) Progress(p int)  { r.progress = append(r.progress, p) }
func (r *recorder) Status(s string) { r.status = append(r.status, s) }

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	s := config.Defaults()
	s.ExportPath = t.TempDir()
	s.TilingMeshPath = ""
	return s
}

func linked(material string) *memLinks {
	l := link.New(material, "meshes/m.usd", "/proj/meshes/m.usd")
	return &memLinks{link: &l}
}

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}
