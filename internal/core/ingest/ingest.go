// Package ingest registers local texture files with the remote ingest service
// and locates the converted file it produces.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"remix-sync/internal/core/pbr"
	"remix-sync/internal/infra/logx"
	"remix-sync/internal/remix"
)

var (
	ErrInputMissing   = errors.New("texture file not found")
	ErrOutputNotFound = errors.New("could not identify output path from ingest result")
	ErrOutputMissing  = errors.New("ingested file missing on disk")
)

// API is the ingest endpoint.
type API interface {
	QueueIngest(ctx context.Context, job any) remix.Result
}

type Pipeline struct {
	API API
	// Subfolder is joined onto the remote project's output directory to form
	// the ingest target directory.
	Subfolder string
}

func New(api API, subfolder string) *Pipeline {
	return &Pipeline{API: api, Subfolder: subfolder}
}

// TargetDir is where converted files for outDir land.
func (p *Pipeline) TargetDir(outDir string) string {
	sub := strings.Trim(strings.TrimSpace(p.Subfolder), `/\`)
	return filepath.Clean(filepath.Join(outDir, filepath.FromSlash(sub)))
}

// Ingest submits local for conversion as typ and returns the absolute path of
// the converted file. The job runs synchronously on the service; the returned
// path is checked for presence before it is reported.
func (p *Pipeline) Ingest(ctx context.Context, typ pbr.Type, local, outDir string) (string, error) {
	st, err := os.Stat(local)
	if err != nil || st.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrInputMissing, local)
	}
	target := p.TargetDir(outDir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create ingest directory %s: %w", target, err)
	}
	absLocal, err := filepath.Abs(local)
	if err != nil {
		return "", fmt.Errorf("absolute path for %s: %w", local, err)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return "", fmt.Errorf("absolute path for %s: %w", target, err)
	}

	validation, known := pbr.ValidationType(typ)
	if !known {
		logx.Warnf("ingest: unknown pbr type %q, validating as %s", typ, validation)
	}
	job := BuildJob(typ, validation, filepath.ToSlash(absLocal), filepath.ToSlash(absTarget))
	logx.Infof("ingest: %s %s", typ, filepath.Base(local))

	res := p.API.QueueIngest(ctx, job)
	if err := res.Err("ingest " + string(typ)); err != nil {
		return "", err
	}

	outputs := OutputPaths(res.Data)
	match, ok := MatchOutput(outputs, InputStem(absLocal), pbr.OutputSuffix(typ))
	if !ok {
		logx.Warnf("ingest: %d outputs, none matching %s", len(outputs), InputStem(absLocal))
		return "", fmt.Errorf("%w: %s", ErrOutputNotFound, filepath.Base(local))
	}

	final := filepath.FromSlash(match)
	if !filepath.IsAbs(final) {
		final = filepath.Join(absTarget, final)
	}
	final = filepath.Clean(final)
	if st, err := os.Stat(final); err != nil || st.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrOutputMissing, final)
	}
	logx.Debugf("ingest: %s -> %s", filepath.Base(local), final)
	return final, nil
}
