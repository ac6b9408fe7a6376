package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	content := []byte("api_base_url: http://remix.local:9000\npoll_timeout: 5\nretries: 4\nlog_level: DEBUG\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIBaseURL != "http://remix.local:9000" || cfg.Retries != 4 || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.RequestTimeout() != 5*time.Second {
		t.Fatalf("timeout = %v, want 5s", cfg.RequestTimeout())
	}
	if cfg.OutputSubfolder != DefaultOutputSubfolder {
		t.Fatalf("missing keys should keep defaults, got %q", cfg.OutputSubfolder)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("REMIX_API_BASE_URL", "http://env:1234")
	t.Setenv("REMIX_POLL_TIMEOUT", "7.5")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIBaseURL != "http://env:1234" {
		t.Fatalf("expected base url from env, got %q", cfg.APIBaseURL)
	}
	if cfg.RequestTimeout() != 7500*time.Millisecond {
		t.Fatalf("timeout = %v", cfg.RequestTimeout())
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("retries: [oops"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	cfg, err := Load(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if cfg.APIBaseURL != DefaultAPIBaseURL {
		t.Fatalf("expected defaults on error, got %+v", cfg)
	}
}

func TestSanitize(t *testing.T) {
	in := Settings{
		LogLevel:           "verbose",
		ExportFileFormat:   ".TGA",
		OutputSubfolder:    "/Textures/Mine/",
		StagecraftPrefix:   "stagecraft/",
		TexconvPath:        "/definitely/not/here/texconv.exe",
		PollTimeoutSeconds: -1,
	}
	out := Sanitize(in)
	if out.LogLevel != "info" {
		t.Errorf("log level = %q", out.LogLevel)
	}
	if out.ExportFileFormat != "tga" {
		t.Errorf("export format = %q", out.ExportFileFormat)
	}
	if out.OutputSubfolder != "Textures/Mine" {
		t.Errorf("subfolder = %q", out.OutputSubfolder)
	}
	if out.StagecraftPrefix != "/stagecraft" {
		t.Errorf("prefix = %q", out.StagecraftPrefix)
	}
	if out.TexconvPath != "" {
		t.Errorf("invalid texconv path should be cleared, got %q", out.TexconvPath)
	}
	if out.PollTimeoutSeconds != 60 || out.Retries != 3 || out.Workers != 2 {
		t.Errorf("defaults not filled: %+v", out)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	s := Defaults()
	s.APIBaseURL = "http://saved:1"
	s.AttributeSuffixes = map[string][]string{"metallic": {"metalness_texture"}}
	if err := Save(path, s); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if !strings.Contains(string(data), "api_base_url: http://saved:1") {
		t.Fatalf("unexpected content: %s", data)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.AttributeSuffixes["metallic"][0] != "metalness_texture" {
		t.Fatalf("suffix override lost: %+v", got.AttributeSuffixes)
	}
}

func TestStoreSnapshotIsolation(t *testing.T) {
	s := Defaults()
	s.AttributeSuffixes = map[string][]string{"albedo": {"diffuse_texture"}}
	st := NewStore("", s)

	snap := st.Snapshot()
	snap.AttributeSuffixes["albedo"][0] = "mutated"
	snap.APIBaseURL = "mutated"

	again := st.Snapshot()
	if again.AttributeSuffixes["albedo"][0] != "diffuse_texture" || again.APIBaseURL != DefaultAPIBaseURL {
		t.Fatalf("snapshot mutation leaked into store: %+v", again)
	}
}

func TestStoreApplyPersistsAndSerializes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	st := NewStore(path, Defaults())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.Apply(func(s *Settings) { s.Retries++ }); err != nil {
				t.Errorf("Apply: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := st.Snapshot().Retries; got != 23 {
		t.Fatalf("retries = %d, want 23", got)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Retries != 23 {
		t.Fatalf("persisted retries = %d, want 23", loaded.Retries)
	}
}

func TestSetKey(t *testing.T) {
	s := Defaults()
	if err := SetKey(&s, "retries", "5"); err != nil {
		t.Fatalf("SetKey retries: %v", err)
	}
	if err := SetKey(&s, "include_opacity_map", "true"); err != nil {
		t.Fatalf("SetKey include_opacity_map: %v", err)
	}
	if err := SetKey(&s, "attribute_suffixes", "{metallic: [metalness_texture]}"); err != nil {
		t.Fatalf("SetKey attribute_suffixes: %v", err)
	}
	if s.Retries != 5 || !s.IncludeOpacityMap || s.AttributeSuffixes["metallic"][0] != "metalness_texture" {
		t.Fatalf("unexpected settings: %+v", s)
	}
	if s.APIBaseURL != DefaultAPIBaseURL {
		t.Fatalf("other keys must survive, got %q", s.APIBaseURL)
	}
	if err := SetKey(&s, "no_such_key", "1"); err == nil || !strings.Contains(err.Error(), "unknown setting") {
		t.Fatalf("want unknown setting error, got %v", err)
	}
	if err := SetKey(&s, "retries", "many"); err == nil {
		t.Fatal("want type error for non-numeric retries")
	}
	if s.Retries != 5 {
		t.Fatalf("failed SetKey must not change settings, got retries=%d", s.Retries)
	}
}
