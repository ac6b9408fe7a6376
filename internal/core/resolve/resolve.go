// Package resolve turns the remote selection into a concrete mesh file and
// material identity.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"remix-sync/internal/infra/logx"
	"remix-sync/internal/remix"
)

var (
	ErrNoSelection        = errors.New("no selection in Remix: select a mesh or material first")
	ErrNoMaterial         = errors.New("could not identify a material for the selection")
	ErrNoMeshFile         = errors.New("could not find a mesh file for the selection after all fallback queries")
	ErrUnresolvedRelative = errors.New("mesh file path is relative and no context path was returned to resolve it")
)

// API is the subset of the control API the resolver needs.
type API interface {
	Selection(ctx context.Context) ([]string, error)
	MaterialForMesh(ctx context.Context, meshPrim string) (string, error)
	FilePaths(ctx context.Context, prim string) ([]remix.FileRefEntry, error)
}

// Asset is a resolved selection.
type Asset struct {
	Material string
	// MeshPrim is the mesh prim from the selection, if any.
	MeshPrim string
	// MeshFileOriginal is the mesh reference as the service reported it.
	MeshFileOriginal string
	// MeshFile is MeshFileOriginal made absolute.
	MeshFile string
	// Context is the absolute path used to resolve a relative reference.
	Context string
}

type Resolver struct {
	API API
}

func New(api API) *Resolver { return &Resolver{API: api} }

// Resolve runs the full selection algorithm: classify, find the material,
// query file paths with fallbacks, and make the mesh path absolute.
func (r *Resolver) Resolve(ctx context.Context) (Asset, error) {
	paths, err := r.API.Selection(ctx)
	if err != nil {
		return Asset{}, fmt.Errorf("query selection: %w", err)
	}
	if len(paths) == 0 {
		return Asset{}, ErrNoSelection
	}
	sel := Classify(paths)
	logx.Debugf("resolve: selection %d paths, material=%q mesh=%q", len(paths), sel.Material, sel.Mesh)

	material := sel.Material
	def, hasDef := DefinitionPath(sel.Mesh)
	if material == "" && sel.Mesh != "" {
		lookup := sel.Mesh
		if hasDef {
			lookup = def
		}
		m, err := r.API.MaterialForMesh(ctx, lookup)
		if err != nil {
			logx.Warnf("resolve: bound material for %s: %v", lookup, err)
			return Asset{}, fmt.Errorf("%w: %v", ErrNoMaterial, err)
		}
		material = m
	}
	if material == "" {
		return Asset{}, ErrNoMaterial
	}

	mesh, pctx, err := r.meshFile(ctx, queryOrder(sel.Mesh, def, material))
	if err != nil {
		return Asset{Material: material, MeshPrim: sel.Mesh}, err
	}
	abs, err := AbsoluteMeshPath(mesh, pctx)
	if err != nil {
		return Asset{Material: material, MeshPrim: sel.Mesh, MeshFileOriginal: mesh}, err
	}
	a := Asset{
		Material:         material,
		MeshPrim:         sel.Mesh,
		MeshFileOriginal: mesh,
		MeshFile:         abs,
		Context:          pctx,
	}
	logx.Infof("resolve: material %s, mesh %s", a.Material, a.MeshFile)
	return a, nil
}

// queryOrder lists prims to ask for file paths: the selected mesh, its
// definition, then the material, without repeats.
func queryOrder(mesh, def, material string) []string {
	var out []string
	add := func(p string) {
		if p == "" {
			return
		}
		for _, q := range out {
			if q == p {
				return
			}
		}
		out = append(out, p)
	}
	add(mesh)
	add(def)
	add(material)
	return out
}

func (r *Resolver) meshFile(ctx context.Context, prims []string) (string, string, error) {
	var lastErr error
	for _, p := range prims {
		entries, err := r.API.FilePaths(ctx, p)
		if err != nil {
			logx.Debugf("resolve: file paths for %s: %v", p, err)
			lastErr = err
			continue
		}
		if mesh, pctx, ok := PickMeshFile(entries); ok {
			return mesh, pctx, nil
		}
		logx.Debugf("resolve: no mesh reference under %s", p)
	}
	if lastErr != nil {
		return "", "", fmt.Errorf("%w: %v", ErrNoMeshFile, lastErr)
	}
	return "", "", ErrNoMeshFile
}

var meshExts = []string{".usd", ".usda", ".usdc", ".obj", ".fbx", ".gltf", ".glb"}

// IsMeshFile reports whether p has a mesh file extension.
func IsMeshFile(p string) bool {
	l := strings.ToLower(p)
	for _, e := range meshExts {
		if strings.HasSuffix(l, e) {
			return true
		}
	}
	return false
}

var driveRe = regexp.MustCompile(`^[A-Za-z]:[/\\]`)

// IsAbs reports whether p is absolute on either the local or the service's
// platform ("/x", "C:/x", `\\host\share`).
func IsAbs(p string) bool {
	return filepath.IsAbs(p) || strings.HasPrefix(p, "/") || strings.HasPrefix(p, `\\`) || driveRe.MatchString(p)
}

// PickMeshFile scans normalized file-path entries. Absolute entries are
// context candidates; relative entries with a mesh extension are the mesh
// reference. A context from the mesh's own entry is preferred. When no
// relative reference exists, an absolute mesh file is used directly.
func PickMeshFile(entries []remix.FileRefEntry) (mesh, ctxPath string, ok bool) {
	var absMesh string
	for _, e := range entries {
		var entryCtx, entryMesh string
		for _, p := range e.Paths() {
			if IsAbs(p) {
				if entryCtx == "" {
					entryCtx = p
				}
				if absMesh == "" && IsMeshFile(p) {
					absMesh = p
				}
				continue
			}
			if entryMesh == "" && IsMeshFile(p) {
				entryMesh = p
			}
		}
		if mesh == "" && entryMesh != "" {
			mesh = entryMesh
			if entryCtx != "" {
				ctxPath = entryCtx
			}
		}
		if ctxPath == "" && entryCtx != "" {
			ctxPath = entryCtx
		}
		if mesh != "" && ctxPath != "" {
			break
		}
	}
	if mesh == "" && absMesh != "" {
		return absMesh, "", true
	}
	return mesh, ctxPath, mesh != ""
}

// AbsoluteMeshPath makes mesh absolute by joining it onto the directory that
// contains contextPath. No alternative search roots are tried.
func AbsoluteMeshPath(mesh, contextPath string) (string, error) {
	mesh = strings.ReplaceAll(mesh, `\`, "/")
	if IsAbs(mesh) {
		return path.Clean(mesh), nil
	}
	contextPath = strings.ReplaceAll(contextPath, `\`, "/")
	if contextPath == "" || !IsAbs(contextPath) {
		return "", fmt.Errorf("%w: %s", ErrUnresolvedRelative, mesh)
	}
	return path.Join(path.Dir(contextPath), mesh), nil
}
