package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"remix-sync/internal/core/pbr"
	"remix-sync/internal/core/resolve"
	"remix-sync/internal/infra/logx"
	"remix-sync/internal/task"
)

// ImportTextures pulls the textures bound to the linked material into the
// local project. DDS files are converted to PNG when a converter is set and
// imported as-is when conversion fails.
func (e *Engine) ImportTextures(ctx context.Context, p task.ProgressReporter) *Run {
	if p == nil {
		p = task.NopReporter{}
	}
	r := newRun(OpImport)
	logx.Infof("import %s: started", r.ID)

	r.enter(StageLink)
	p.Status("Reading link...")
	lk, err := e.loadLink()
	if err != nil {
		r.abort(KindLink, "", err)
		return r.finish()
	}
	r.Material = lk.MaterialPrim
	r.done(1)

	r.enter(StageQuerying)
	p.Status("Querying material textures...")
	attrs, err := e.API.Textures(ctx, lk.MaterialPrim)
	if err != nil {
		r.abort(kindOf(err, KindImport), lk.MaterialPrim, err)
		return r.finish()
	}
	r.done(len(attrs))
	p.Progress(15)

	var bases []string
	if outDir, err := e.API.DefaultDirectory(ctx); err != nil {
		logx.Warnf("import: output directory unavailable, relative texture paths may not resolve: %v", err)
	} else {
		bases = searchBases(outDir)
	}

	r.enter(StageImporting)
	if e.Assigner == nil {
		r.abort(KindImport, "", errors.New("no texture assigner configured"))
		return r.finish()
	}
	for i, a := range attrs {
		p.Progress(15 + 85*i/max(len(attrs), 1))
		if strings.TrimSpace(a.Path) == "" {
			continue
		}
		typ, ok := pbr.FromAttribute(a.Attribute)
		if !ok {
			logx.Debugf("import: no texture type for %s", a.Attribute)
			continue
		}
		r.Counts.Attempted++
		subject := "Import-" + string(typ)
		p.Status("Importing " + string(typ) + "...")

		file, ok := locateTexture(a.Path, bases)
		if !ok {
			r.issue(KindImport, subject, "file not found: %s", a.Path)
			continue
		}

		if strings.EqualFold(filepath.Ext(file), ".dds") {
			if e.Converter == nil {
				r.issue(KindImport, subject, "texconv path not configured, cannot convert %s", filepath.Base(file))
				continue
			}
			png, err := e.Converter.ConvertToPNG(ctx, file, "")
			if err != nil {
				r.issue(KindImport, subject+" (texconv)", "%v; importing the DDS directly", err)
			} else {
				removeAlphaSidecar(file)
				file = png
			}
		}

		if err := e.Assigner.Assign(ctx, typ, file); err != nil {
			r.issue(KindImport, subject, "%v", err)
			continue
		}
		r.Counts.Imported++
	}
	if r.Counts.Attempted > 0 && r.Counts.Imported == 0 {
		r.abort(KindImport, lk.MaterialPrim, fmt.Errorf("none of %d textures could be imported", r.Counts.Attempted))
	} else {
		r.done(r.Counts.Imported)
	}
	p.Progress(100)

	return r.finish()
}

// searchBases lists the directories a relative texture path is tried
// against, derived from the service's default output directory.
func searchBases(outDir string) []string {
	base := filepath.Dir(outDir)
	root := filepath.Dir(base)
	return []string{
		filepath.Join(root, "deps", "captures"),
		root,
		filepath.Join(root, "replacements"),
		base,
		outDir,
	}
}

func locateTexture(raw string, bases []string) (string, bool) {
	if resolve.IsAbs(raw) {
		p := filepath.Clean(filepath.FromSlash(raw))
		return p, isFile(p)
	}
	rel := filepath.FromSlash(strings.TrimPrefix(strings.TrimPrefix(raw, "./"), ".\\"))
	for _, b := range bases {
		p := filepath.Join(b, rel)
		if isFile(p) {
			return p, true
		}
	}
	return "", false
}

// removeAlphaSidecar deletes the "<stem>_alpha.png" texconv may leave next to
// a converted DDS.
func removeAlphaSidecar(dds string) {
	alpha := strings.TrimSuffix(dds, filepath.Ext(dds)) + "_alpha.png"
	if err := os.Remove(alpha); err != nil && !errors.Is(err, os.ErrNotExist) {
		logx.Warnf("import: remove %s: %v", filepath.Base(alpha), err)
	}
}
