package sync

import (
	"context"
	"errors"
	"os"

	"remix-sync/internal/infra/logx"
	"remix-sync/internal/link"
	"remix-sync/internal/task"
)

// Pull resolves the remote selection, creates a local project from its mesh
// and links the project to the material. Resolution and project creation
// failures abort; unwrap and link failures are recorded and the run goes on.
func (e *Engine) Pull(ctx context.Context, p task.ProgressReporter) *Run {
	if p == nil {
		p = task.NopReporter{}
	}
	r := newRun(OpPull)
	logx.Infof("pull %s: started", r.ID)

	r.enter(StageResolving)
	p.Status("Resolving Remix selection...")
	p.Progress(5)
	asset, err := e.Resolver.Resolve(ctx)
	if err != nil {
		r.Material = asset.Material
		r.abort(kindOf(err, KindResolution), "", err)
		return r.finish()
	}
	r.Material, r.MeshFile = asset.Material, asset.MeshFile
	r.done(1)
	p.Progress(35)

	mesh := asset.MeshFile
	if e.Settings.UseTilingMeshOnPull && e.Settings.TilingMeshPath != "" {
		if isFile(e.Settings.TilingMeshPath) {
			logx.Infof("pull: using tiling mesh %s", e.Settings.TilingMeshPath)
			mesh = e.Settings.TilingMeshPath
		} else {
			r.issue(KindResolution, "tiling mesh", "file not found: %s", e.Settings.TilingMeshPath)
		}
	}

	if e.Settings.AutoUnwrapOnPull && e.Unwrapper != nil {
		r.enter(StageUnwrapping)
		p.Status("Unwrapping mesh with Blender...")
		if out, err := e.Unwrapper.Unwrap(ctx, mesh); err != nil {
			r.issue(KindImport, "unwrap", "%v; using the original mesh", err)
			r.done(0)
		} else {
			mesh = out
			r.done(1)
		}
		p.Progress(55)
	}

	r.enter(StageCreating)
	p.Status("Creating project...")
	if e.Projects == nil {
		r.abort(KindImport, "", errors.New("no project creator configured"))
		return r.finish()
	}
	template := e.Settings.ImportTemplatePath
	if template != "" && !isFile(template) {
		logx.Warnf("pull: template %s not found, creating without it", template)
		template = ""
	}
	if err := e.Projects.Create(ctx, mesh, template); err != nil {
		r.abort(KindImport, "", err)
		return r.finish()
	}
	r.done(1)
	p.Progress(85)

	r.enter(StageSavingLink)
	p.Status("Saving link metadata...")
	if e.Links == nil {
		r.issue(KindLink, "", "no link store configured; later pushes will not find the material")
	} else if err := e.Links.Save(link.New(asset.Material, asset.MeshFileOriginal, asset.MeshFile)); err != nil {
		r.issue(KindLink, "", "save link: %v", err)
	} else {
		r.done(1)
	}
	p.Progress(100)

	return r.finish()
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
