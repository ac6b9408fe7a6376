// Package link persists the association between a local project and the
// remote material it was pulled from.
package link

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// ErrNoLink is returned by Load when the project was never pulled.
var ErrNoLink = errors.New("project is not linked to a remote material: pull first")

// AssetLink is written once per pull and read by every later push or import.
type AssetLink struct {
	MaterialPrim     string    `json:"remix_material_prim"`
	MaterialHash     string    `json:"remix_material_hash"`
	MeshPathOriginal string    `json:"remix_mesh_file_path_original"`
	MeshPathResolved string    `json:"remix_mesh_file_path_resolved"`
	CreatedAt        time.Time `json:"created_at"`
}

// New builds a link for material, deriving its hash.
func New(material, meshOriginal, meshResolved string) AssetLink {
	return AssetLink{
		MaterialPrim:     material,
		MaterialHash:     MaterialHash(material),
		MeshPathOriginal: meshOriginal,
		MeshPathResolved: meshResolved,
		CreatedAt:        time.Now().UTC(),
	}
}

// Validate reports a link that cannot drive a push.
func (l AssetLink) Validate() error {
	if strings.TrimSpace(l.MaterialPrim) == "" {
		return errors.New("link has no material prim")
	}
	return nil
}

var hashRe = regexp.MustCompile(`[A-Z0-9]{16}`)

// MaterialHash extracts the 16-character token from the last segment of a
// material prim path ("/Looks/mat_0123456789ABCDEF" -> "0123456789ABCDEF").
// Without one, the sanitized last segment is used so file names stay stable.
func MaterialHash(material string) string {
	tail := path.Base(strings.ReplaceAll(strings.TrimRight(material, `/\`), `\`, "/"))
	if tail == "." || tail == "/" {
		return ""
	}
	if all := hashRe.FindAllString(tail, -1); len(all) > 0 {
		return all[len(all)-1]
	}
	return SanitizeStem(tail)
}

var (
	badStemChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	spaceRun     = regexp.MustCompile(`\s+`)
)

const maxStem = 120

// SanitizeStem makes s safe as a file name stem on any platform.
func SanitizeStem(s string) string {
	s = badStemChars.ReplaceAllString(strings.TrimSpace(s), "_")
	s = spaceRun.ReplaceAllString(s, "_")
	s = strings.Trim(s, " .")
	if len(s) > maxStem {
		s = s[:maxStem]
	}
	return s
}

// Store reads and writes links for one project.
type Store interface {
	Load() (AssetLink, error)
	Save(AssetLink) error
}

const fileName = "link.json"

// FileStore keeps the link as JSON in <project>/.remix-sync/link.json.
type FileStore struct {
	Dir string
}

func NewFileStore(projectDir string) *FileStore {
	return &FileStore{Dir: filepath.Join(projectDir, ".remix-sync")}
}

func (s *FileStore) Path() string { return filepath.Join(s.Dir, fileName) }

func (s *FileStore) Load() (AssetLink, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return AssetLink{}, ErrNoLink
	}
	if err != nil {
		return AssetLink{}, fmt.Errorf("read link %s: %w", s.Path(), err)
	}
	var l AssetLink
	if err := json.Unmarshal(data, &l); err != nil {
		return AssetLink{}, fmt.Errorf("parse link %s: %w", s.Path(), err)
	}
	if err := l.Validate(); err != nil {
		return AssetLink{}, fmt.Errorf("%w: %v", ErrNoLink, err)
	}
	if l.MaterialHash == "" {
		l.MaterialHash = MaterialHash(l.MaterialPrim)
	}
	return l, nil
}

// Save replaces the stored link atomically.
func (s *FileStore) Save(l AssetLink) error {
	if err := l.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal link: %w", err)
	}
	return writeAtomic(s.Path(), append(data, '\n'))
}

func writeAtomic(p string, data []byte) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", p, err)
	}
	tmp, err := os.CreateTemp(dir, ".link-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", p, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", p, err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", p, err)
	}
	return nil
}
