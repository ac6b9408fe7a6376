// Package pbr holds the texture-role vocabulary shared by export mapping,
// ingestion and attribute binding.
package pbr

import (
	"sort"
	"strings"
)

// Type is a physically-based-rendering texture role.
type Type string

const (
	Albedo    Type = "albedo"
	Normal    Type = "normal"
	Height    Type = "height"
	Roughness Type = "roughness"
	Metallic  Type = "metallic"
	Emissive  Type = "emissive"
	Opacity   Type = "opacity"
	AO        Type = "ao"
)

// All lists every type in a stable order.
var All = []Type{Albedo, Normal, Height, Roughness, Metallic, Emissive, Opacity, AO}

// Parse maps a case-insensitive name to a Type.
func Parse(s string) (Type, bool) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range All {
		if k == t {
			return t, true
		}
	}
	return "", false
}

// Valid reports whether t is one of the known types.
func (t Type) Valid() bool {
	_, ok := Parse(string(t))
	return ok
}

var validationTypes = map[Type]string{
	Albedo:    "DIFFUSE",
	Normal:    "NORMAL_DX",
	Height:    "HEIGHT",
	Roughness: "ROUGHNESS",
	Metallic:  "METALLIC",
	Emissive:  "EMISSIVE",
	AO:        "AO",
	Opacity:   "OPACITY",
}

// ValidationType returns the ingest validation token for t. Unknown types get
// DIFFUSE and ok=false so the caller can warn.
func ValidationType(t Type) (token string, ok bool) {
	if v, found := validationTypes[Type(strings.ToLower(string(t)))]; found {
		return v, true
	}
	return "DIFFUSE", false
}

var outputSuffixes = map[Type]string{
	Albedo:    "a",
	Normal:    "n",
	Roughness: "r",
	Metallic:  "m",
	Height:    "h",
	Emissive:  "e",
	AO:        "o",
	Opacity:   "o",
}

// OutputSuffix is the one-letter channel marker the ingest service appends to
// converted files, e.g. "foo.n.rtex.dds" for a normal map. Empty when unknown.
func OutputSuffix(t Type) string { return outputSuffixes[t] }

// exportSuffixes maps the trailing "_channel" of an exported filename to a type.
var exportSuffixes = map[string]Type{
	"basecolor":    Albedo,
	"base_color":   Albedo,
	"albedo":       Albedo,
	"diffuse":      Albedo,
	"normal":       Normal,
	"height":       Height,
	"displacement": Height,
	"roughness":    Roughness,
	"metallic":     Metallic,
	"metalness":    Metallic,
	"emissive":     Emissive,
	"emission":     Emissive,
	"opacity":      Opacity,
	"ao":           AO,
}

// attrSuffixes maps the tail of a material input attribute to a type, for
// reading textures back out of a material.
var attrSuffixes = map[string]Type{
	"diffuse_texture":             Albedo,
	"albedo_texture":              Albedo,
	"basecolor_texture":           Albedo,
	"base_color_texture":          Albedo,
	"normalmap_texture":           Normal,
	"normal_texture":              Normal,
	"worldspacenormal_texture":    Normal,
	"heightmap_texture":           Height,
	"height_texture":              Height,
	"displacement_texture":        Height,
	"roughness_texture":           Roughness,
	"reflectionroughness_texture": Roughness,
	"specularroughness_texture":   Roughness,
	"metallic_texture":            Metallic,
	"metalness_texture":           Metallic,
	"emissive_mask_texture":       Emissive,
	"emissive_texture":            Emissive,
	"emissive_color_texture":      Emissive,
	"opacity_texture":             Opacity,
	"opacitymask_texture":         Opacity,
	"transparency_texture":        Opacity,
	"opacity_mask":                Opacity,
}

var (
	exportKeys = longestFirst(exportSuffixes)
	attrKeys   = longestFirst(attrSuffixes)
)

func longestFirst(m map[string]Type) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return keys
}

// FromExportName infers the type of an exported texture from its filename
// stem ("Mesh_Set_BaseColor" -> albedo). Longer suffixes win.
func FromExportName(stem string) (Type, bool) {
	s := strings.ToLower(stem)
	for _, k := range exportKeys {
		if strings.HasSuffix(s, "_"+k) {
			return exportSuffixes[k], true
		}
	}
	return "", false
}

// FromAttribute infers the type bound by a material input attribute path.
// Longer suffixes win.
func FromAttribute(attr string) (Type, bool) {
	s := strings.ToLower(attr)
	for _, k := range attrKeys {
		if strings.HasSuffix(s, k) {
			return attrSuffixes[k], true
		}
	}
	return "", false
}
