// Package sync runs the pull, push and import pipelines between a local
// texturing project and the remote scene service.
package sync

import (
	"context"

	"remix-sync/internal/config"
	"remix-sync/internal/core/attrmap"
	"remix-sync/internal/core/batch"
	"remix-sync/internal/core/ingest"
	"remix-sync/internal/core/pbr"
	"remix-sync/internal/core/resolve"
	"remix-sync/internal/link"
	"remix-sync/internal/remix"
	"remix-sync/internal/task"
)

// RemoteAPI is every control-API call the pipelines make. *remix.Client
// implements it.
type RemoteAPI interface {
	resolve.API
	ingest.API
	attrmap.API
	batch.API
	DefaultDirectory(ctx context.Context) (string, error)
}

// ExportRequest describes one texture export of the local project.
type ExportRequest struct {
	Dir            string
	MaterialHash   string
	Format         string
	IncludeOpacity bool
}

// Exporter writes the project's textures to disk and returns the produced
// files, named "<hash>_<channel>.<ext>".
type Exporter interface {
	Export(ctx context.Context, req ExportRequest) ([]string, error)
}

// ProjectCreator starts a new local project from a mesh. template is empty
// when none is configured.
type ProjectCreator interface {
	Create(ctx context.Context, mesh, template string) error
}

// TextureAssigner places an imported texture into the project channel for
// its type.
type TextureAssigner interface {
	Assign(ctx context.Context, typ pbr.Type, file string) error
}

// Converter turns a DDS file into a PNG.
type Converter interface {
	ConvertToPNG(ctx context.Context, dds, outDir string) (string, error)
}

// Unwrapper produces a UV-unwrapped copy of a mesh.
type Unwrapper interface {
	Unwrap(ctx context.Context, mesh string) (string, error)
}

// Engine wires the pipeline stages together. Settings is a snapshot taken
// when the engine was built; the engine never writes it back.
type Engine struct {
	Settings config.Settings
	API      RemoteAPI

	Resolver *resolve.Resolver
	Ingest   *ingest.Pipeline
	Mapper   *attrmap.Mapper
	Updater  *batch.Updater

	Links     link.Store
	Exporter  Exporter
	Projects  ProjectCreator
	Assigner  TextureAssigner
	Converter Converter
	Unwrapper Unwrapper
}

// Collaborators are the host-side pieces an Engine needs. Any may be nil for
// operations that do not use it.
type Collaborators struct {
	Links     link.Store
	Exporter  Exporter
	Projects  ProjectCreator
	Assigner  TextureAssigner
	Converter Converter
	Unwrapper Unwrapper
}

func NewEngine(s config.Settings, api RemoteAPI, c Collaborators) *Engine {
	return &Engine{
		Settings:  s,
		API:       api,
		Resolver:  resolve.New(api),
		Ingest:    ingest.New(api, s.OutputSubfolder),
		Mapper:    attrmap.New(api, pbr.NewAttributeTable(s.AttributeSuffixes)),
		Updater:   batch.New(api),
		Links:     c.Links,
		Exporter:  c.Exporter,
		Projects:  c.Projects,
		Assigner:  c.Assigner,
		Converter: c.Converter,
		Unwrapper: c.Unwrapper,
	}
}

var _ RemoteAPI = (*remix.Client)(nil)

// PullTask adapts Pull to the task scheduler. The *Run is the task value.
func (e *Engine) PullTask() task.Func {
	return func(ctx context.Context, p task.ProgressReporter) (any, error) {
		return runResult(e.Pull(ctx, p))
	}
}

// PushTask adapts Push to the task scheduler.
func (e *Engine) PushTask() task.Func {
	return func(ctx context.Context, p task.ProgressReporter) (any, error) {
		return runResult(e.Push(ctx, p))
	}
}

// ImportTask adapts ImportTextures to the task scheduler.
func (e *Engine) ImportTask() task.Func {
	return func(ctx context.Context, p task.ProgressReporter) (any, error) {
		return runResult(e.ImportTextures(ctx, p))
	}
}

// runResult reports a failed run as an error so the task emits an error
// event, while still carrying the run for the report.
func runResult(r *Run) (any, error) {
	if r.Outcome == OutcomeFailed {
		return r, &RunError{Run: r}
	}
	return r, nil
}

// RunError is a run that ended in a hard stop.
type RunError struct{ Run *Run }

func (e *RunError) Error() string {
	if is, ok := e.Run.Fatal(); ok {
		return string(e.Run.Op) + " failed: " + is.String()
	}
	return string(e.Run.Op) + " failed"
}
