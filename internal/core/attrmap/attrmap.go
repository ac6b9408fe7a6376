// Package attrmap finds, on a remote material, the texture input each
// ingested texture should be bound to.
package attrmap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"remix-sync/internal/core/pbr"
	"remix-sync/internal/infra/logx"
	"remix-sync/internal/remix"
)

// ErrNoAttributes means the material exposes no texture inputs to bind to.
var ErrNoAttributes = errors.New("material has no existing texture bindings")

type API interface {
	Textures(ctx context.Context, material string) ([]remix.TextureAttr, error)
}

type Mapper struct {
	API   API
	Table pbr.AttributeTable
}

// New returns a Mapper. A nil table uses the built-in preferences.
func New(api API, table pbr.AttributeTable) *Mapper {
	if table == nil {
		table = pbr.DefaultAttributeTable()
	}
	return &Mapper{API: api, Table: table}
}

// Unmapped is a type that could not be bound, with the names tried.
type Unmapped struct {
	Type    pbr.Type
	Tried   []string
	Problem string
}

func (u Unmapped) String() string {
	if u.Problem != "" {
		return fmt.Sprintf("%s: %s", u.Type, u.Problem)
	}
	return fmt.Sprintf("%s: no attribute matching %s", u.Type, strings.Join(u.Tried, ", "))
}

// Mapping is the discovery outcome. Attributes holds one attribute path per
// mapped type; no path appears twice.
type Mapping struct {
	Attributes map[pbr.Type]string
	Unmapped   []Unmapped
}

// Discover maps every type in ingested to an existing texture attribute of
// material. Types are visited in pbr.All order; for each, suffixes are tried
// in preference order and the first unclaimed attribute whose name after the
// last ":" equals the suffix is taken. A failed texture query or a material
// without texture inputs is an error; unmatched types are not.
func (m *Mapper) Discover(ctx context.Context, material string, ingested map[pbr.Type]string) (Mapping, error) {
	out := Mapping{Attributes: map[pbr.Type]string{}}
	if strings.TrimSpace(material) == "" {
		return out, errors.New("material prim path missing")
	}
	attrs, err := m.API.Textures(ctx, material)
	if err != nil {
		return out, fmt.Errorf("query texture attributes: %w", err)
	}
	if len(attrs) == 0 {
		return out, ErrNoAttributes
	}
	logx.Debugf("attrmap: %d texture attributes on %s", len(attrs), material)

	claimed := make(map[string]bool, len(attrs))
	for _, typ := range pbr.All {
		if _, ok := ingested[typ]; !ok {
			continue
		}
		suffixes := m.Table.Suffixes(typ)
		if len(suffixes) == 0 {
			out.Unmapped = append(out.Unmapped, Unmapped{Type: typ, Problem: "no attribute names configured"})
			continue
		}
		if attr, ok := pick(attrs, suffixes, claimed); ok {
			claimed[attr] = true
			out.Attributes[typ] = attr
			logx.Infof("attrmap: %s -> %s", typ, attr)
			continue
		}
		logx.Warnf("attrmap: no attribute for %s (tried %v)", typ, suffixes)
		out.Unmapped = append(out.Unmapped, Unmapped{Type: typ, Tried: suffixes})
	}
	return out, nil
}

func pick(attrs []remix.TextureAttr, suffixes []string, claimed map[string]bool) (string, bool) {
	for _, suf := range suffixes {
		for _, a := range attrs {
			if claimed[a.Attribute] {
				continue
			}
			if strings.EqualFold(InputName(a.Attribute), suf) {
				return a.Attribute, true
			}
		}
	}
	return "", false
}

// InputName is the part of an attribute path after its last ":".
func InputName(attr string) string {
	if i := strings.LastIndex(attr, ":"); i >= 0 {
		return attr[i+1:]
	}
	return attr
}
