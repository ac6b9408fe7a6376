// Package host is a directory-backed stand-in for the texturing application:
// a project is a folder holding the mesh, an optional template and one
// texture file per channel, described by project.yaml.
package host

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"remix-sync/internal/core/pbr"
	"remix-sync/internal/core/sync"
	"remix-sync/internal/infra/logx"
)

const (
	manifestName = "project.yaml"
	texturesDir  = "textures"
	meshDir      = "mesh"
)

// ErrNoProject is returned when the directory has no project.yaml.
var ErrNoProject = errors.New("no project in directory: pull first")

// Manifest is the on-disk description of a project.
type Manifest struct {
	Mesh     string              `yaml:"mesh"`
	Template string              `yaml:"template,omitempty"`
	Created  time.Time           `yaml:"created"`
	Textures map[pbr.Type]string `yaml:"textures,omitempty"`
}

// Project is a project directory. It implements the creator, assigner and
// exporter the sync engine needs.
type Project struct {
	Root string
}

func Open(root string) *Project { return &Project{Root: root} }

var (
	_ sync.ProjectCreator  = (*Project)(nil)
	_ sync.TextureAssigner = (*Project)(nil)
	_ sync.Exporter        = (*Project)(nil)
)

func (p *Project) manifestPath() string { return filepath.Join(p.Root, manifestName) }

// Load reads project.yaml.
func (p *Project) Load() (Manifest, error) {
	data, err := os.ReadFile(p.manifestPath())
	if errors.Is(err, os.ErrNotExist) {
		return Manifest{}, ErrNoProject
	}
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", manifestName, err)
	}
	return m, nil
}

func (p *Project) save(m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	tmp := p.manifestPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p.manifestPath())
}

// Create starts a fresh project from mesh, replacing any previous one. The
// mesh and template are copied into the project.
func (p *Project) Create(ctx context.Context, mesh, template string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(p.Root, meshDir), 0o755); err != nil {
		return err
	}
	m := Manifest{Created: time.Now().UTC()}
	dst := filepath.Join(meshDir, filepath.Base(mesh))
	if err := copyFile(mesh, filepath.Join(p.Root, dst)); err != nil {
		return fmt.Errorf("copy mesh: %w", err)
	}
	m.Mesh = filepath.ToSlash(dst)
	if template != "" {
		dst := "template" + filepath.Ext(template)
		if err := copyFile(template, filepath.Join(p.Root, dst)); err != nil {
			return fmt.Errorf("copy template: %w", err)
		}
		m.Template = dst
	}
	if err := p.save(m); err != nil {
		return fmt.Errorf("write %s: %w", manifestName, err)
	}
	logx.Infof("host: created project in %s from %s", p.Root, filepath.Base(mesh))
	return nil
}

// Assign copies file into the project as the texture of typ. A previous
// texture of the same type is replaced.
func (p *Project) Assign(ctx context.Context, typ pbr.Type, file string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := p.Load()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(p.Root, texturesDir), 0o755); err != nil {
		return err
	}
	rel := filepath.Join(texturesDir, string(typ)+strings.ToLower(filepath.Ext(file)))
	if old, ok := m.Textures[typ]; ok && old != filepath.ToSlash(rel) {
		_ = os.Remove(filepath.Join(p.Root, filepath.FromSlash(old)))
	}
	if err := copyFile(file, filepath.Join(p.Root, rel)); err != nil {
		return fmt.Errorf("assign %s: %w", typ, err)
	}
	if m.Textures == nil {
		m.Textures = map[pbr.Type]string{}
	}
	m.Textures[typ] = filepath.ToSlash(rel)
	return p.save(m)
}

// exportNames is the channel part of an exported file name.
var exportNames = map[pbr.Type]string{
	pbr.Albedo:    "BaseColor",
	pbr.Normal:    "Normal",
	pbr.Height:    "Height",
	pbr.Roughness: "Roughness",
	pbr.Metallic:  "Metallic",
	pbr.Emissive:  "Emissive",
	pbr.Opacity:   "Opacity",
	pbr.AO:        "AO",
}

// Export writes every project texture in the requested format to
// <req.Dir>/<hash>_<Channel>.<format>. Textures in another format cannot be
// converted here and are skipped.
func (p *Project) Export(ctx context.Context, req sync.ExportRequest) ([]string, error) {
	m, err := p.Load()
	if err != nil {
		return nil, err
	}
	if len(m.Textures) == 0 {
		return nil, errors.New("project has no textures to export")
	}
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return nil, err
	}
	format := strings.TrimPrefix(strings.ToLower(req.Format), ".")
	var out []string
	for _, typ := range pbr.All {
		rel, ok := m.Textures[typ]
		if !ok {
			continue
		}
		if typ == pbr.Opacity && !req.IncludeOpacity {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		src := filepath.Join(p.Root, filepath.FromSlash(rel))
		if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(src)), "."); ext != format {
			logx.Warnf("host: %s texture is %s, not %s; skipped", typ, ext, format)
			continue
		}
		dst := filepath.Join(req.Dir, req.MaterialHash+"_"+exportNames[typ]+"."+format)
		if err := copyFile(src, dst); err != nil {
			return out, fmt.Errorf("export %s: %w", typ, err)
		}
		out = append(out, dst)
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
