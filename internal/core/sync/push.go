package sync

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"remix-sync/internal/core/batch"
	"remix-sync/internal/core/pbr"
	"remix-sync/internal/infra/logx"
	"remix-sync/internal/link"
	"remix-sync/internal/task"
)

// Push exports the local textures, ingests them on the service, binds them to
// the linked material and saves the edited layer.
//
// Stages: Exporting, MappingExportedFiles, Ingesting, DiscoveringAttributes,
// Committing, SavingLayer. The run aborts when the link or the remote output
// directory is unavailable, the export fails, no export maps to a type,
// nothing ingests, nothing maps to a material input or the batch update
// fails. Every other failure is recorded per item.
func (e *Engine) Push(ctx context.Context, p task.ProgressReporter) *Run {
	if p == nil {
		p = task.NopReporter{}
	}
	r := newRun(OpPush)
	logx.Infof("push %s: started", r.ID)

	r.enter(StageLink)
	p.Status("Reading link...")
	lk, err := e.loadLink()
	if err != nil {
		r.abort(KindLink, "", err)
		return r.finish()
	}
	r.Material = lk.MaterialPrim
	outDir, err := e.API.DefaultDirectory(ctx)
	if err != nil {
		r.abort(kindOf(err, KindConnectivity), "output directory", err)
		return r.finish()
	}
	r.done(1)
	p.Progress(5)

	// Exporting
	r.enter(StageExporting)
	p.Status("Exporting textures...")
	exportDir := filepath.Join(e.Settings.ExportPath, lk.MaterialHash)
	files, err := e.export(ctx, exportDir, lk.MaterialHash)
	if err != nil {
		r.abort(KindExport, "", err)
		return r.finish()
	}
	r.done(len(files))
	p.Progress(20)

	// MappingExportedFiles
	r.enter(StageMapping)
	mapped, unmatched, dups := MapExports(files, e.Settings.ExportFileFormat)
	for _, f := range unmatched {
		logx.Debugf("push: no texture type for %s", filepath.Base(f))
	}
	for _, f := range dups {
		r.issue(KindExport, filepath.Base(f), "duplicate export for the same texture type, ignored")
	}
	if !e.Settings.IncludeOpacityMap {
		delete(mapped, pbr.Opacity)
	}
	r.Counts.Exported = len(mapped)
	if len(mapped) == 0 {
		r.abort(KindExport, "", fmt.Errorf("none of %d exported files map to a texture type", len(files)))
		return r.finish()
	}
	r.done(len(mapped))

	// Ingesting
	r.enter(StageIngesting)
	ingested := e.ingestAll(ctx, r, p, mapped, lk.MaterialHash, outDir, exportDir)
	r.Counts.Ingested = len(ingested)
	if len(ingested) == 0 {
		r.abort(KindIngestion, "", errors.New("no textures were ingested"))
		return r.finish()
	}
	r.done(len(ingested))
	p.Progress(70)

	// DiscoveringAttributes
	r.enter(StageDiscovering)
	p.Status("Discovering material inputs...")
	m, err := e.Mapper.Discover(ctx, lk.MaterialPrim, ingested)
	for _, u := range m.Unmapped {
		r.issue(KindMapping, string(u.Type), "%s", u.String())
	}
	r.Counts.Mapped = len(m.Attributes)
	if len(m.Attributes) == 0 {
		if err == nil {
			err = fmt.Errorf("none of %d ingested textures matches an input of the material", len(ingested))
		}
		r.abort(kindOf(err, KindMapping), lk.MaterialPrim, err)
		return r.finish()
	}
	if err != nil {
		r.issue(kindOf(err, KindMapping), lk.MaterialPrim, "%v", err)
	}
	r.done(len(m.Attributes))
	p.Progress(80)

	// Committing
	r.enter(StageCommitting)
	p.Status("Updating material textures...")
	bindings := make([]batch.Binding, 0, len(m.Attributes))
	for _, typ := range pbr.All {
		if attr, ok := m.Attributes[typ]; ok {
			bindings = append(bindings, batch.Binding{Attribute: attr, File: ingested[typ]})
		}
	}
	cr := e.Updater.Commit(ctx, bindings)
	for _, s := range cr.Skipped {
		r.issue(KindCommit, "", "%s", s)
	}
	if cr.Err != nil {
		kind := KindCommit
		if !errors.Is(cr.Err, batch.ErrMappingRejected) && !errors.Is(cr.Err, batch.ErrNoValidBindings) {
			kind = kindOf(cr.Err, KindCommit)
		}
		r.abort(kind, "", cr.Err)
		return r.finish()
	}
	r.Counts.Committed = len(cr.Committed)
	for _, b := range cr.Committed {
		r.Committed = append(r.Committed, b.Attribute)
	}
	r.done(len(cr.Committed))
	p.Progress(90)

	// SavingLayer
	r.enter(StageSavingLayer)
	p.Status("Saving Remix layer...")
	id, err := e.Updater.SaveEditTarget(ctx)
	r.LayerID = id
	if err != nil {
		r.issue(KindLayerSave, id, "%v", err)
		r.done(0)
	} else {
		r.done(1)
	}
	return r.finish()
}

func (e *Engine) loadLink() (link.AssetLink, error) {
	if e.Links == nil {
		return link.AssetLink{}, link.ErrNoLink
	}
	return e.Links.Load()
}

func (e *Engine) export(ctx context.Context, dir, hash string) ([]string, error) {
	if e.Exporter == nil {
		return nil, errors.New("no exporter configured")
	}
	files, err := e.Exporter.Export(ctx, ExportRequest{
		Dir:            dir,
		MaterialHash:   hash,
		Format:         e.Settings.ExportFileFormat,
		IncludeOpacity: e.Settings.IncludeOpacityMap,
	})
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("export produced no files")
	}
	return files, nil
}

// ingestAll ingests each mapped file under a forced root "<hash>_<type>"
// that does not collide with earlier outputs. Failures are per type.
func (e *Engine) ingestAll(ctx context.Context, r *Run, p task.ProgressReporter, mapped map[pbr.Type]string, hash, outDir, exportDir string) map[pbr.Type]string {
	ingestDir := e.Ingest.TargetDir(outDir)
	out := map[pbr.Type]string{}
	done := 0
	for _, typ := range pbr.All {
		file, ok := mapped[typ]
		if !ok {
			continue
		}
		p.Status(fmt.Sprintf("Ingesting %s...", typ))

		src := file
		root := NonOverwritingRoot(hash+"_"+string(typ), ingestDir)
		if renamed, err := CopyWithRoot(file, root, typ, exportDir); err != nil {
			logx.Warnf("push: forced root for %s: %v; ingesting the export as-is", typ, err)
		} else {
			src = renamed
		}

		got, err := e.Ingest.Ingest(ctx, typ, src, outDir)
		done++
		p.Progress(20 + 50*done/len(mapped))
		if err != nil {
			r.issue(kindOf(err, KindIngestion), string(typ), "%v", err)
			continue
		}
		out[typ] = got
	}
	return out
}
