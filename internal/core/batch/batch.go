// Package batch commits texture bindings to a remote material in one request
// and asks the service to save the edited layer.
package batch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"remix-sync/internal/infra/logx"
	"remix-sync/internal/remix"
)

var (
	ErrNoValidBindings = errors.New("no valid texture paths to commit")
	// ErrMappingRejected is a 422 from the texture update: the attribute
	// paths most likely do not exist on the target material.
	ErrMappingRejected = errors.New("texture update rejected (422): attribute paths may not exist on the material")
)

type API interface {
	UpdateTextures(ctx context.Context, pairs [][2]string, force bool) remix.Result
	EditTarget(ctx context.Context) (string, error)
	SaveLayer(ctx context.Context, layerID string) remix.Result
}

// Binding pairs a material input attribute with an ingested file.
type Binding struct {
	Attribute string
	File      string
}

// CommitResult reports what was sent. Skipped lists bindings rejected
// locally; they never reach the service.
type CommitResult struct {
	Committed []Binding
	Skipped   []string
	Err       error
}

// OK reports whether the update request succeeded.
func (r CommitResult) OK() bool { return r.Err == nil && len(r.Committed) > 0 }

type Updater struct {
	API   API
	Force bool
}

func New(api API) *Updater { return &Updater{API: api, Force: true} }

// isAbs accepts local absolute paths plus the service's own forms ("/x",
// "C:/x").
func isAbs(p string) bool {
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return true
	}
	return len(p) > 2 && p[1] == ':' && (p[2] == '/' || p[2] == '\\')
}

// Commit sends every binding with an absolute file path in one PUT. Bindings
// with relative or empty paths are skipped and reported; when none remain no
// request is made.
func (u *Updater) Commit(ctx context.Context, bindings []Binding) CommitResult {
	var res CommitResult
	pairs := make([][2]string, 0, len(bindings))
	valid := make([]Binding, 0, len(bindings))
	for _, b := range bindings {
		if b.File == "" || !isAbs(b.File) {
			res.Skipped = append(res.Skipped, fmt.Sprintf("path not absolute for %s: %q", b.Attribute, b.File))
			continue
		}
		attr := strings.ReplaceAll(b.Attribute, `\`, "/")
		file := filepath.ToSlash(b.File)
		pairs = append(pairs, [2]string{attr, file})
		valid = append(valid, Binding{Attribute: attr, File: file})
	}
	if len(pairs) == 0 {
		res.Err = ErrNoValidBindings
		return res
	}

	logx.Infof("batch: updating %d textures", len(pairs))
	r := u.API.UpdateTextures(ctx, pairs, u.Force)
	if !r.Success {
		if r.StatusCode == http.StatusUnprocessableEntity {
			res.Err = fmt.Errorf("%w: %s", ErrMappingRejected, r.Error)
		} else {
			res.Err = r.Err("texture update")
		}
		logx.Errorf("batch: %v", res.Err)
		return res
	}
	res.Committed = valid
	return res
}

// SaveLayer asks the service to persist layerID.
func (u *Updater) SaveLayer(ctx context.Context, layerID string) error {
	if err := u.API.SaveLayer(ctx, layerID).Err("save layer " + layerID); err != nil {
		return err
	}
	logx.Infof("batch: save requested for %s", layerID)
	return nil
}

// SaveEditTarget saves whichever layer currently receives edits and returns
// its id.
func (u *Updater) SaveEditTarget(ctx context.Context) (string, error) {
	id, err := u.API.EditTarget(ctx)
	if err != nil {
		return "", fmt.Errorf("get edit target: %w", err)
	}
	return id, u.SaveLayer(ctx, id)
}
