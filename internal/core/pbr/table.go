package pbr

import "strings"

// AttributeTable lists, per type, the material input names to look for when
// binding an ingested texture, most preferred first. Revisions of the remote
// material library disagree on some names (metallic_texture vs
// metalness_texture), so the table is configuration rather than a constant.
type AttributeTable map[Type][]string

// DefaultAttributeTable returns a fresh copy of the built-in preferences.
func DefaultAttributeTable() AttributeTable {
	return AttributeTable{
		Albedo:    {"diffuse_texture", "albedo_texture", "basecolor_texture"},
		Normal:    {"normalmap_texture", "normal_texture"},
		Height:    {"height_texture", "heightmap_texture", "displacement_texture"},
		Roughness: {"reflectionroughness_texture", "roughness_texture"},
		Metallic:  {"metallic_texture", "metalness_texture"},
		Emissive:  {"emissive_mask_texture", "emissive_texture"},
		Opacity:   {"opacity_texture", "opacity_mask"},
	}
}

// NewAttributeTable returns the defaults with overrides applied. Override keys
// are type names; an override replaces the whole list for that type. Unknown
// keys and empty names are ignored.
func NewAttributeTable(overrides map[string][]string) AttributeTable {
	t := DefaultAttributeTable()
	for k, names := range overrides {
		typ, ok := Parse(k)
		if !ok {
			continue
		}
		clean := make([]string, 0, len(names))
		for _, n := range names {
			n = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(n)), ":")
			if n != "" {
				clean = append(clean, n)
			}
		}
		if len(clean) > 0 {
			t[typ] = clean
		}
	}
	return t
}

// Suffixes returns the preference list for typ, or nil.
func (t AttributeTable) Suffixes(typ Type) []string { return t[typ] }
