package link

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMaterialHash(t *testing.T) {
	cases := map[string]string{
		"/RootNode/Looks/mat_0123456789ABCDEF":          "0123456789ABCDEF",
		"/RootNode/Looks/mat_0123456789ABCDEF/":         "0123456789ABCDEF",
		"/A/mat_AAAAAAAAAAAAAAAA_BBBBBBBBBBBBBBBB":      "BBBBBBBBBBBBBBBB",
		"/World/Looks/My Material":                      "My_Material",
		"/World/instances_0123456789ABCDEF/Looks/plain": "plain",
		"":                                              "",
	}
	for in, want := range cases {
		if got := MaterialHash(in); got != want {
			t.Errorf("MaterialHash(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeStem(t *testing.T) {
	if got := SanitizeStem(` a<b>:c  d. `); got != "a_b__c_d" {
		t.Fatalf("got %q", got)
	}
	if got := SanitizeStem(strings.Repeat("x", 200)); len(got) != 120 {
		t.Fatalf("len = %d", len(got))
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)

	if _, err := s.Load(); !errors.Is(err, ErrNoLink) {
		t.Fatalf("missing link: %v", err)
	}

	l := New("/Looks/mat_0123456789ABCDEF", "meshes/m.usd", "/abs/meshes/m.usd")
	if err := s.Save(l); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if got.MaterialHash != "0123456789ABCDEF" || got.MeshPathResolved != "/abs/meshes/m.usd" {
		t.Fatalf("loaded %+v", got)
	}

	entries, _ := os.ReadDir(s.Dir)
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestFileStoreRejectsEmptyMaterial(t *testing.T) {
	s := NewFileStore(t.TempDir())
	if err := s.Save(AssetLink{}); err == nil {
		t.Fatal("expected error")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.Dir, "link.json"), []byte(`{"remix_material_prim":""}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(); !errors.Is(err, ErrNoLink) {
		t.Fatalf("want ErrNoLink, got %v", err)
	}
}
