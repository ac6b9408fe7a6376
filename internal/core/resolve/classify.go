package resolve

import (
	"path"
	"regexp"
	"strings"
)

// Role is what a selected scene-graph path represents.
type Role int

const (
	RoleOther Role = iota
	RoleShader
	RoleMaterial
	RoleMeshInstance
	RoleMeshDefinition
)

func (r Role) String() string {
	switch r {
	case RoleShader:
		return "shader"
	case RoleMaterial:
		return "material"
	case RoleMeshInstance:
		return "mesh-instance"
	case RoleMeshDefinition:
		return "mesh-definition"
	default:
		return "other"
	}
}

// ClassifyPath assigns a role to one selection entry.
func ClassifyPath(p string) Role {
	p = strings.ReplaceAll(p, `\`, "/")
	switch {
	case strings.HasSuffix(p, "/Shader"):
		return RoleShader
	case (strings.Contains(p, "/Looks/") || strings.Contains(p, "/materials/") || strings.Contains(p, "/Material/")) &&
		!strings.Contains(p, "/PreviewSurface"):
		return RoleMaterial
	case strings.Contains(p, "/instances/inst_"):
		return RoleMeshInstance
	case strings.Contains(p, "/meshes/") || strings.Contains(p, "/Mesh/") || strings.Contains(p, "/Geom/"):
		return RoleMeshDefinition
	default:
		return RoleOther
	}
}

// Selection is the outcome of classifying a whole selection. Either field may
// be empty.
type Selection struct {
	Material string
	Mesh     string
}

// Classify walks paths in order; the first material and the first mesh
// candidate win. A shader contributes its parent prim as the material.
func Classify(paths []string) Selection {
	var s Selection
	for _, raw := range paths {
		p := strings.ReplaceAll(strings.TrimSpace(raw), `\`, "/")
		if p == "" {
			continue
		}
		switch ClassifyPath(p) {
		case RoleShader:
			if s.Material == "" {
				s.Material = path.Dir(p)
			}
		case RoleMaterial:
			if s.Material == "" {
				s.Material = p
			}
		case RoleMeshInstance, RoleMeshDefinition:
			if s.Mesh == "" {
				s.Mesh = p
			}
		}
	}
	return s
}

var (
	instanceRe = regexp.MustCompile(`^(.*)/instances/inst_([A-Z0-9]{16})(?:_[0-9]+)?(?:/.*)?$`)
	meshRootRe = regexp.MustCompile(`^(.*/(?:meshes|Mesh|Geom)/mesh_[A-Z0-9]{16}(?:_[0-9]+)?)(?:/.*)?$`)
)

// DefinitionPath derives the mesh definition prim for a mesh path. An
// instance path ".../instances/inst_<HASH>[_n]/..." becomes
// ".../meshes/mesh_<HASH>"; a path inside a "mesh_<HASH>" prim is trimmed to
// that prim; any other path under /meshes/, /Mesh/ or /Geom/ is returned
// unchanged. ok is false when nothing can be derived.
func DefinitionPath(p string) (string, bool) {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	if p == "" {
		return "", false
	}
	if m := instanceRe.FindStringSubmatch(p); m != nil {
		return m[1] + "/meshes/mesh_" + m[2], true
	}
	if m := meshRootRe.FindStringSubmatch(p); m != nil {
		return m[1], true
	}
	if ClassifyPath(p) == RoleMeshDefinition {
		return p, true
	}
	return "", false
}
