package sync

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"remix-sync/internal/core/pbr"
	"remix-sync/internal/link"
)

// RenamedDir is created under the export root to hold copies renamed to
// their forced root.
const RenamedDir = "_RemixConnector_ForcePush_Renamed"

// MapExports assigns exported files to texture types by their "_<channel>"
// name suffix. Only files with extension ext are considered; the first file
// for a type wins and later ones are returned as duplicates.
func MapExports(files []string, ext string) (mapped map[pbr.Type]string, unmatched, duplicates []string) {
	ext = "." + strings.TrimPrefix(strings.ToLower(ext), ".")
	mapped = map[pbr.Type]string{}
	for _, f := range files {
		if !strings.EqualFold(filepath.Ext(f), ext) {
			continue
		}
		base := filepath.Base(f)
		typ, ok := pbr.FromExportName(strings.TrimSuffix(base, filepath.Ext(base)))
		if !ok {
			unmatched = append(unmatched, f)
			continue
		}
		if _, dup := mapped[typ]; dup {
			duplicates = append(duplicates, f)
			continue
		}
		mapped[typ] = f
	}
	return mapped, unmatched, duplicates
}

// rootConflicts reports whether ingestDir already holds a converted texture
// whose name starts with root followed by nothing or a separator.
func rootConflicts(root, ingestDir string) bool {
	if root == "" || ingestDir == "" {
		return false
	}
	entries, err := os.ReadDir(ingestDir)
	if err != nil {
		return false
	}
	lr := strings.ToLower(root)
	for _, e := range entries {
		name := strings.ToLower(e.Name())
		if e.IsDir() || !strings.HasSuffix(name, ".dds") || !strings.HasPrefix(name, lr) {
			continue
		}
		switch rest := name[len(lr):]; {
		case rest == "", rest[0] == '.', rest[0] == '_', rest[0] == '-':
			return true
		}
	}
	return false
}

const maxRootIndex = 9999

// NonOverwritingRoot returns desired, or desired_<n> for the smallest n that
// does not collide with an existing output in ingestDir.
func NonOverwritingRoot(desired, ingestDir string) string {
	desired = link.SanitizeStem(desired)
	if desired == "" {
		return ""
	}
	candidate := desired
	for i := 1; rootConflicts(candidate, ingestDir); i++ {
		if i > maxRootIndex {
			return desired + "_" + strconv.FormatInt(time.Now().Unix(), 10)
		}
		candidate = desired + "_" + strconv.Itoa(i)
	}
	return candidate
}

// CopyWithRoot copies file to <exportRoot>/_RemixConnector_ForcePush_Renamed/<typ>/<root><ext>
// so the ingest service names its output after root.
func CopyWithRoot(file, root string, typ pbr.Type, exportRoot string) (string, error) {
	root = link.SanitizeStem(root)
	if root == "" {
		return "", fmt.Errorf("forced root name invalid")
	}
	ext := filepath.Ext(file)
	if ext == "" {
		ext = ".png"
	}
	dir := filepath.Join(exportRoot, RenamedDir, string(typ))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	dst := filepath.Join(dir, root+ext)
	if err := copyFile(file, dst); err != nil {
		return "", fmt.Errorf("copy %s: %w", filepath.Base(file), err)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	st, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, st.ModTime(), st.ModTime())
}
