package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIBaseURL      = "http://localhost:8011"
	DefaultStagecraft      = "/stagecraft"
	DefaultOutputSubfolder = "Textures/PainterConnector_Ingested"
	DefaultUnwrapSuffix    = "_spUnwrapped"
	SettingsVersion        = 1
)

// Settings is the full engine configuration. Values are copied into each task
// at submission time and never mutated from a worker.
type Settings struct {
	Version int `yaml:"settings_version"`

	// Connection
	APIBaseURL          string  `yaml:"api_base_url"`
	StagecraftPrefix    string  `yaml:"stagecraft_prefix"`
	PollTimeoutSeconds  float64 `yaml:"poll_timeout"`
	PollIntervalSeconds float64 `yaml:"poll_interval"`
	Retries             int     `yaml:"retries"`

	LogLevel string `yaml:"log_level"`

	// Pull
	UseTilingMeshOnPull   bool    `yaml:"use_simple_tiling_mesh_on_pull"`
	TilingMeshPath        string  `yaml:"simple_tiling_mesh_path"`
	ImportTemplatePath    string  `yaml:"painter_import_template_path"`
	AutoUnwrapOnPull      bool    `yaml:"auto_unwrap_with_blender_on_pull"`
	BlenderExecutablePath string  `yaml:"blender_executable_path"`
	BlenderScriptPath     string  `yaml:"blender_unwrap_script_path"`
	UnwrapOutputSuffix    string  `yaml:"blender_unwrap_output_suffix"`
	UVAngleLimit          float64 `yaml:"blender_smart_uv_angle_limit"`
	UVAreaWeight          float64 `yaml:"blender_smart_uv_area_weight"`
	UVIslandMargin        float64 `yaml:"blender_smart_uv_island_margin"`
	UVStretchToBounds     bool    `yaml:"blender_smart_uv_stretch_to_bounds"`

	// Push / export
	ExportPath        string `yaml:"painter_export_path"`
	ExportFileFormat  string `yaml:"export_file_format"`
	IncludeOpacityMap bool   `yaml:"include_opacity_map"`

	OutputSubfolder string `yaml:"remix_output_subfolder"`
	TexconvPath     string `yaml:"texconv_path"`

	// AttributeSuffixes overrides the pbr type -> attribute suffix preference
	// table used when binding ingested textures.
	AttributeSuffixes map[string][]string `yaml:"attribute_suffixes,omitempty"`

	Workers     int    `yaml:"workers"`
	MetricsFile string `yaml:"metrics_file,omitempty"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		Version:             SettingsVersion,
		APIBaseURL:          DefaultAPIBaseURL,
		StagecraftPrefix:    DefaultStagecraft,
		PollTimeoutSeconds:  60,
		PollIntervalSeconds: 2,
		Retries:             3,
		LogLevel:            "info",
		TilingMeshPath:      "assets/meshes/plane_tiling.usd",
		UnwrapOutputSuffix:  DefaultUnwrapSuffix,
		UVAngleLimit:        66.0,
		UVAreaWeight:        0.0,
		UVIslandMargin:      0.003,
		ExportPath:          filepath.Join(os.TempDir(), "RemixConnector_Export"),
		ExportFileFormat:    "png",
		OutputSubfolder:     DefaultOutputSubfolder,
		Workers:             2,
	}
}

// RequestTimeout is the per-attempt HTTP timeout.
func (s Settings) RequestTimeout() time.Duration {
	return time.Duration(s.PollTimeoutSeconds * float64(time.Second))
}

// RetryDelay is the fixed delay between HTTP attempts.
func (s Settings) RetryDelay() time.Duration {
	return time.Duration(s.PollIntervalSeconds * float64(time.Second))
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	c := s
	if s.AttributeSuffixes != nil {
		c.AttributeSuffixes = make(map[string][]string, len(s.AttributeSuffixes))
		for k, v := range s.AttributeSuffixes {
			c.AttributeSuffixes[k] = append([]string(nil), v...)
		}
	}
	return c
}

// Sanitize normalizes values and fills anything missing from Defaults.
func Sanitize(s Settings) Settings {
	d := Defaults()
	s = s.Clone()

	s.APIBaseURL = strings.TrimSpace(s.APIBaseURL)
	if s.APIBaseURL == "" {
		s.APIBaseURL = d.APIBaseURL
	}
	s.StagecraftPrefix = strings.TrimSpace(s.StagecraftPrefix)
	if s.StagecraftPrefix != "" && !strings.HasPrefix(s.StagecraftPrefix, "/") {
		s.StagecraftPrefix = "/" + s.StagecraftPrefix
	}
	s.StagecraftPrefix = strings.TrimRight(s.StagecraftPrefix, "/")
	if s.PollTimeoutSeconds <= 0 {
		s.PollTimeoutSeconds = d.PollTimeoutSeconds
	}
	if s.PollIntervalSeconds < 0 {
		s.PollIntervalSeconds = d.PollIntervalSeconds
	}
	if s.Retries <= 0 {
		s.Retries = d.Retries
	}

	s.LogLevel = strings.ToLower(strings.TrimSpace(s.LogLevel))
	switch s.LogLevel {
	case "debug", "info", "warning", "error":
	default:
		s.LogLevel = "info"
	}

	if s.TilingMeshPath == "" {
		s.TilingMeshPath = d.TilingMeshPath
	}
	if s.UnwrapOutputSuffix == "" {
		s.UnwrapOutputSuffix = d.UnwrapOutputSuffix
	}
	if s.UVAngleLimit <= 0 {
		s.UVAngleLimit = d.UVAngleLimit
	}
	if s.UVIslandMargin < 0 {
		s.UVIslandMargin = d.UVIslandMargin
	}

	if strings.TrimSpace(s.ExportPath) == "" {
		s.ExportPath = d.ExportPath
	}
	s.ExportFileFormat = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s.ExportFileFormat), "."))
	switch s.ExportFileFormat {
	case "png", "tga", "jpg", "jpeg":
	default:
		s.ExportFileFormat = "png"
	}

	s.OutputSubfolder = strings.Trim(strings.TrimSpace(s.OutputSubfolder), `/\`)
	if s.OutputSubfolder == "" {
		s.OutputSubfolder = d.OutputSubfolder
	}

	if s.TexconvPath != "" {
		if st, err := os.Stat(s.TexconvPath); err != nil || st.IsDir() {
			s.TexconvPath = ""
		}
	}

	if s.Workers <= 0 {
		s.Workers = d.Workers
	}
	s.Version = SettingsVersion
	return s
}

// DefaultPath returns the settings file location, honoring REMIX_SYNC_CONFIG.
func DefaultPath() string {
	if p := strings.TrimSpace(os.Getenv("REMIX_SYNC_CONFIG")); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".", "remix-sync.yaml")
	}
	return filepath.Join(dir, "remix-sync", "settings.yaml")
}

// Load reads settings from path (a missing file yields defaults), applies
// environment overrides and sanitizes the result.
func Load(path string) (Settings, error) {
	s := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return Sanitize(applyEnv(Defaults())), fmt.Errorf("parse settings %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Sanitize(applyEnv(Defaults())), fmt.Errorf("read settings %s: %w", path, err)
	}
	return Sanitize(applyEnv(s)), nil
}

func applyEnv(s Settings) Settings {
	if v := strings.TrimSpace(os.Getenv("REMIX_API_BASE_URL")); v != "" {
		s.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("REMIX_LOG_LEVEL")); v != "" {
		s.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("REMIX_POLL_TIMEOUT")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			s.PollTimeoutSeconds = f
		}
	}
	if v := strings.TrimSpace(os.Getenv("REMIX_EXPORT_PATH")); v != "" {
		s.ExportPath = v
	}
	if v := strings.TrimSpace(os.Getenv("REMIX_TEXCONV_PATH")); v != "" {
		s.TexconvPath = v
	}
	if v := strings.TrimSpace(os.Getenv("REMIX_BLENDER_PATH")); v != "" {
		s.BlenderExecutablePath = v
	}
	return s
}

// Save writes settings as YAML using a temp file and rename.
func Save(path string, s Settings) error {
	data, err := yaml.Marshal(Sanitize(s))
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close settings: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename settings into place: %w", err)
	}
	return nil
}

// Store holds the current settings. Workers read snapshots; Apply is the only
// way to change them and is serialized.
type Store struct {
	mu   sync.Mutex
	cur  Settings
	path string
}

// NewStore wraps s. When path is non-empty Apply persists every change.
func NewStore(path string, s Settings) *Store {
	return &Store{cur: Sanitize(s), path: path}
}

// Snapshot returns a copy of the current settings.
func (st *Store) Snapshot() Settings {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.cur.Clone()
}

// Apply mutates a copy of the current settings with fn, sanitizes it, persists
// it and swaps it in. On a save error the previous settings stay in place.
func (st *Store) Apply(fn func(*Settings)) (Settings, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	next := st.cur.Clone()
	fn(&next)
	next = Sanitize(next)
	if st.path != "" {
		if err := Save(st.path, next); err != nil {
			return st.cur.Clone(), err
		}
	}
	st.cur = next
	return next.Clone(), nil
}

// SetKey sets one setting by its YAML key. value is parsed as YAML, so
// "true", "3" and "[a, b]" keep their types.
func SetKey(s *Settings, key, value string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	fields := map[string]any{}
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return err
	}
	if !knownKey(key) {
		return fmt.Errorf("unknown setting %q", key)
	}
	var v any
	if err := yaml.Unmarshal([]byte(value), &v); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	fields[key] = v
	if data, err = yaml.Marshal(fields); err != nil {
		return err
	}
	next := Settings{}
	if err := yaml.Unmarshal(data, &next); err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	*s = next
	return nil
}

func knownKey(key string) bool {
	t := reflect.TypeOf(Settings{})
	for i := 0; i < t.NumField(); i++ {
		if name, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ","); name == key {
			return true
		}
	}
	return false
}
