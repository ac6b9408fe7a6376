package remix

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const ingestEndpoint = "/ingestcraft/mass-validator/queue/material"

// EscapePrim escapes a prim path for use inside a URL path, keeping "/" as the
// separator. Colons are escaped too unless keepColon is set.
func EscapePrim(p string, keepColon bool) string {
	segs := strings.Split(slash(p), "/")
	for i, s := range segs {
		e := url.PathEscape(s)
		if !keepColon {
			e = strings.ReplaceAll(e, ":", "%3A")
		}
		segs[i] = e
	}
	return strings.Join(segs, "/")
}

func (c *Client) assetPath(prim, suffix string) string {
	// prim paths keep their leading slash, so the URL carries "assets//World/..."
	return c.Stage("/assets/" + EscapePrim(prim, false) + suffix)
}

// DefaultDirectory returns the remote project's default output directory as
// an absolute path.
func (c *Client) DefaultDirectory(ctx context.Context) (string, error) {
	const op = "default directory"
	res := c.Request(ctx, http.MethodGet, c.Stage("/assets/default-directory"), RequestOptions{})
	if err := res.Err(op); err != nil {
		return "", err
	}
	m, err := objectOf(res)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	dir, ok := pickString(m, "directory_path", "asset_path")
	if !ok {
		return "", fmt.Errorf("%s: response has no directory path", op)
	}
	abs, err := filepath.Abs(filepath.FromSlash(slash(dir)))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return abs, nil
}

// MaterialForMesh returns the material prim bound to a mesh prim.
func (c *Client) MaterialForMesh(ctx context.Context, meshPrim string) (string, error) {
	const op = "bound material"
	if strings.TrimSpace(meshPrim) == "" {
		return "", errors.New("bound material: mesh prim path is empty")
	}
	res := c.Request(ctx, http.MethodGet, c.assetPath(meshPrim, "/material"), RequestOptions{})
	if err := res.Err(op); err != nil {
		return "", err
	}
	m, err := objectOf(res)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	mat, ok := pickString(m, "asset_path")
	if !ok {
		return "", fmt.Errorf("%s: no material bound to %s", op, meshPrim)
	}
	return slash(mat), nil
}

// FilePaths returns the normalized reference entries of a prim.
func (c *Client) FilePaths(ctx context.Context, prim string) ([]FileRefEntry, error) {
	const op = "file paths"
	if strings.TrimSpace(prim) == "" {
		return nil, errors.New("file paths: prim path is empty")
	}
	res := c.Request(ctx, http.MethodGet, c.assetPath(prim, "/file-paths"), RequestOptions{})
	if err := res.Err(op); err != nil {
		return nil, err
	}
	m, err := objectOf(res)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	list, _ := pickList(m, "reference_paths", "asset_paths")
	return DecodeFilePaths(list), nil
}

// Textures returns the texture inputs currently present on a material.
func (c *Client) Textures(ctx context.Context, material string) ([]TextureAttr, error) {
	const op = "material textures"
	if strings.TrimSpace(material) == "" {
		return nil, errors.New("material textures: material prim is empty")
	}
	res := c.Request(ctx, http.MethodGet, c.assetPath(material, "/textures"), RequestOptions{})
	if err := res.Err(op); err != nil {
		return nil, err
	}
	m, err := objectOf(res)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	list, _ := pickList(m, "textures")
	attrs, err := decodeTextures(list)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return attrs, nil
}

// Selection returns the prim paths currently selected in the remote viewport.
func (c *Client) Selection(ctx context.Context) ([]string, error) {
	const op = "selection"
	params := url.Values{}
	params.Set("selection", "true")
	params.Set("filter_session_assets", "false")
	params.Set("exists", "true")
	res := c.Request(ctx, http.MethodGet, c.Stage("/assets/"), RequestOptions{Params: params})
	if err := res.Err(op); err != nil {
		return nil, err
	}
	m, err := objectOf(res)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	list, _ := pickList(m, "prim_paths", "asset_paths")
	out := make([]string, 0, len(list))
	for _, p := range stringElems(list) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, slash(p))
		}
	}
	return out, nil
}

// QueueIngest submits an ingestion job. The job result is returned as-is for
// the caller to interpret.
func (c *Client) QueueIngest(ctx context.Context, job any) Result {
	return c.Request(ctx, http.MethodPost, ingestEndpoint, RequestOptions{JSON: job})
}

// UpdateTextures binds every [attribute, file] pair in one request.
func (c *Client) UpdateTextures(ctx context.Context, pairs [][2]string, force bool) Result {
	textures := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		textures = append(textures, []string{p[0], p[1]})
	}
	body := map[string]any{"force": force, "textures": textures}
	return c.Request(ctx, http.MethodPut, c.Stage("/textures/"), RequestOptions{JSON: body})
}

// EditTarget returns the id of the layer currently receiving edits, falling
// back to the project endpoint when the layers endpoint has no answer.
func (c *Client) EditTarget(ctx context.Context) (string, error) {
	var lastErr error
	for _, ep := range []string{"/layers/target", "/project/"} {
		res := c.Request(ctx, http.MethodGet, c.Stage(ep), RequestOptions{})
		if err := res.Err("edit target"); err != nil {
			lastErr = err
			continue
		}
		m, err := objectOf(res)
		if err != nil {
			lastErr = fmt.Errorf("edit target: %w", err)
			continue
		}
		if id, ok := pickString(m, "layer_id"); ok && strings.TrimSpace(id) != "" {
			return path.Clean(slash(strings.TrimSpace(id))), nil
		}
	}
	if lastErr == nil {
		lastErr = errors.New("edit target: could not determine edit layer")
	}
	return "", lastErr
}

// SaveLayer asks the service to persist a layer.
func (c *Client) SaveLayer(ctx context.Context, layerID string) Result {
	if strings.TrimSpace(layerID) == "" {
		return Result{Error: "layer id missing"}
	}
	ep := c.Stage("/layers/" + EscapePrim(layerID, true) + "/save")
	return c.Request(ctx, http.MethodPost, ep, RequestOptions{})
}

// Ping is a single-attempt health check with a short timeout.
func (c *Client) Ping(ctx context.Context) Result {
	return c.Request(ctx, http.MethodGet, c.Stage("/project/"), RequestOptions{
		Retries: 1,
		NoDelay: true,
		Timeout: 2 * time.Second,
	})
}
