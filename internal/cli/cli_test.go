package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remix-sync/internal/config"
	"remix-sync/internal/infra/logx"
	"remix-sync/internal/link"
)

const testMaterial = "/RootNode/Looks/mat_0123456789ABCDEF"

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func captureStderr(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stderr
	stderr = &buf
	t.Cleanup(func() {
		stderr = prev
		logx.SetOutput(nil)
		logx.SetMinLevel(logx.LevelWarn)
		logx.SetVerbose(false)
	})
	return &buf
}

// writeConfig points a settings file at baseURL with a single fast attempt.
func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	t.Setenv("REMIX_API_BASE_URL", "")
	s := config.Defaults()
	s.APIBaseURL = baseURL
	s.Retries = 1
	s.PollIntervalSeconds = 0
	s.PollTimeoutSeconds = 5
	s.ExportPath = t.TempDir()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, config.Save(path, s))
	return path
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// fakeRemix answers the pull endpoints. A plain handler is used because
// prim paths put "//" into the URL, which ServeMux would redirect.
func fakeRemix(t *testing.T, contextFile string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		switch {
		case p == "/stagecraft/project/":
			writeJSON(w, map[string]any{"layer_id": "/abs/mod.usda"})
		case p == "/stagecraft/assets/" && r.URL.Query().Get("selection") == "true":
			writeJSON(w, map[string]any{"prim_paths": []string{testMaterial + "/Shader"}})
		case p == "/stagecraft/assets/"+testMaterial+"/file-paths":
			writeJSON(w, map[string]any{"reference_paths": []any{
				[]any{filepath.ToSlash(contextFile), []string{"relative/mesh.usd"}},
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPing(t *testing.T) {
	out := captureStdout(t)
	srv := fakeRemix(t, "")
	cfg := writeConfig(t, srv.URL)

	require.NoError(t, Run([]string{"ping", "--config", cfg}))
	assert.Contains(t, out.String(), "ok: "+srv.URL)
}

func TestPingUnreachable(t *testing.T) {
	captureStdout(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)
	cfg := writeConfig(t, srv.URL)

	err := Run([]string{"ping", "--config", cfg})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestPlainPullCreatesLinkedProject(t *testing.T) {
	out := captureStdout(t)
	remote := t.TempDir()
	ctxFile := filepath.Join(remote, "ctx.usd")
	require.NoError(t, os.MkdirAll(filepath.Join(remote, "relative"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(remote, "relative", "mesh.usd"), []byte("#usda 1.0"), 0o644))
	srv := fakeRemix(t, ctxFile)
	cfg := writeConfig(t, srv.URL)
	project := t.TempDir()
	reportPath := filepath.Join(t.TempDir(), "report.json")

	err := Run([]string{"pull", "--config", cfg, "--plain", "--report", reportPath, project})
	require.NoError(t, err, out.String())

	assert.Contains(t, out.String(), "Resolving Remix selection...")
	assert.FileExists(t, filepath.Join(project, "mesh", "mesh.usd"))
	assert.FileExists(t, filepath.Join(project, "project.yaml"))

	lk, err := link.NewFileStore(project).Load()
	require.NoError(t, err)
	assert.Equal(t, testMaterial, lk.MaterialPrim)
	assert.Equal(t, "0123456789ABCDEF", lk.MaterialHash)
	assert.Equal(t, "relative/mesh.usd", lk.MeshPathOriginal)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"op": "pull"`)
}

func TestPushWithoutLinkFails(t *testing.T) {
	out := captureStdout(t)
	cfg := writeConfig(t, "http://127.0.0.1:1")

	err := Run([]string{"push", "--config", cfg, "--plain", t.TempDir()})
	require.Error(t, err)
	assert.Equal(t, "push failed", err.Error())
	assert.Contains(t, out.String(), "PUSH Failed")
	assert.Contains(t, out.String(), "[ReadingLink]")
}

func TestSettingsSetAndShow(t *testing.T) {
	out := captureStdout(t)
	t.Setenv("REMIX_EXPORT_PATH", "")
	cfg := filepath.Join(t.TempDir(), "settings.yaml")

	require.NoError(t, Run([]string{"settings", "--config", cfg, "set", "include_opacity_map", "true"}))
	assert.Contains(t, out.String(), "include_opacity_map: true")

	s, err := config.Load(cfg)
	require.NoError(t, err)
	assert.True(t, s.IncludeOpacityMap)

	out.Reset()
	require.NoError(t, Run([]string{"settings", "--config", cfg, "show"}))
	assert.Contains(t, out.String(), "include_opacity_map: true")
	assert.Contains(t, out.String(), "api_base_url:")

	out.Reset()
	require.NoError(t, Run([]string{"settings", "--config", cfg, "path"}))
	assert.Equal(t, cfg, strings.TrimSpace(out.String()))
}

func TestSettingsSetRejectsUnknownKey(t *testing.T) {
	captureStdout(t)
	cfg := filepath.Join(t.TempDir(), "settings.yaml")

	err := Run([]string{"settings", "--config", cfg, "set", "no_such_key", "1"})
	require.Error(t, err)
	assert.NoFileExists(t, cfg)
}

func TestUnknownCommand(t *testing.T) {
	out := captureStdout(t)
	err := Run([]string{"frobnicate"})
	require.Error(t, err)
	assert.Contains(t, out.String(), "Commands:")
}

func TestPlainDebugRunLogsToStderr(t *testing.T) {
	captureStdout(t)
	logs := captureStderr(t)
	cfg := writeConfig(t, "http://127.0.0.1:1")

	err := Run([]string{"push", "--config", cfg, "--plain", "--debug", t.TempDir()})
	require.Error(t, err)

	out := logs.String()
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, "started")
	assert.Contains(t, out, `"msg":"run issue"`)
	assert.Contains(t, out, `"stage":"ReadingLink"`)

	logs.Reset()
	logx.Debugf("debug line reaches stderr")
	assert.Contains(t, logs.String(), "debug line reaches stderr")
}

func TestPlainRunHonorsLogLevel(t *testing.T) {
	captureStdout(t)
	logs := captureStderr(t)
	cfg := writeConfig(t, "http://127.0.0.1:1")

	require.Error(t, Run([]string{"push", "--config", cfg, "--plain", t.TempDir()}))

	out := logs.String()
	assert.NotContains(t, out, `"level":"debug"`)
	assert.Contains(t, out, `"level":"warn"`, "warnings pass the default info level")
}
