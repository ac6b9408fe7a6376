// Package tools wraps the external executables the engine shells out to:
// texconv for DDS conversion and Blender for UV unwrapping.
package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"remix-sync/internal/infra/logx"
)

// Output is what a finished process produced.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner starts a process and waits for it. A non-zero exit is reported in
// Output, not as an error; err is reserved for failing to run at all.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// ExecRunner runs processes with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return out, err
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

// Texconv converts DDS textures to PNG.
type Texconv struct {
	Path   string
	Runner Runner
}

func (t Texconv) runner() Runner {
	if t.Runner == nil {
		return ExecRunner{}
	}
	return t.Runner
}

// ConvertToPNG writes <outDir>/<stem>.png from dds and returns its path. An
// empty outDir means next to the input.
func (t Texconv) ConvertToPNG(ctx context.Context, dds, outDir string) (string, error) {
	if t.Path == "" || !isFile(t.Path) {
		return "", fmt.Errorf("texconv path is not configured or invalid: %q", t.Path)
	}
	if !isFile(dds) {
		return "", fmt.Errorf("input DDS file not found: %s", dds)
	}
	if outDir == "" {
		outDir = filepath.Dir(dds)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", outDir, err)
	}
	base := filepath.Base(dds)
	expected := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".png")

	args := []string{"-ft", "png", "-o", outDir, "-y", "-nologo", dds}
	logx.Infof("tools: texconv %s", strings.Join(args, " "))
	out, err := t.runner().Run(ctx, t.Path, args...)
	if err != nil {
		return "", fmt.Errorf("run texconv: %w", err)
	}
	if out.ExitCode != 0 {
		return "", fmt.Errorf("texconv failed (code %d). stdout: %s stderr: %s",
			out.ExitCode, strings.TrimSpace(out.Stdout), strings.TrimSpace(out.Stderr))
	}
	if !isFile(expected) {
		return "", fmt.Errorf("texconv reported success but output missing: %s", expected)
	}
	return expected, nil
}

// UVParams are the smart-UV projection settings passed to the unwrap script.
type UVParams struct {
	AngleLimit      float64
	IslandMargin    float64
	AreaWeight      float64
	StretchToBounds bool
}

// Blender runs the unwrap script in a headless Blender.
type Blender struct {
	Path   string
	Script string
	Suffix string
	UV     UVParams
	Runner Runner
}

// OutputPath is where Unwrap writes the result for mesh.
func (b Blender) OutputPath(mesh string) string {
	ext := filepath.Ext(mesh)
	return strings.TrimSuffix(mesh, ext) + b.Suffix + ext
}

func pyBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

// Unwrap writes an unwrapped copy of mesh and returns its path.
func (b Blender) Unwrap(ctx context.Context, mesh string) (string, error) {
	if b.Path == "" || !isFile(b.Path) {
		return "", fmt.Errorf("blender executable invalid: %q", b.Path)
	}
	if b.Script == "" || !isFile(b.Script) {
		return "", fmt.Errorf("blender unwrap script not found: %q", b.Script)
	}
	out := b.OutputPath(mesh)
	args := []string{
		"--background", "--python", b.Script, "--", mesh, out,
		"--angle_limit", strconv.FormatFloat(b.UV.AngleLimit, 'f', -1, 64),
		"--island_margin", strconv.FormatFloat(b.UV.IslandMargin, 'f', -1, 64),
		"--area_weight", strconv.FormatFloat(b.UV.AreaWeight, 'f', -1, 64),
		"--stretch_to_bounds", pyBool(b.UV.StretchToBounds),
	}
	logx.Infof("tools: blender %s", strings.Join(args, " "))
	runner := b.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	res, err := runner.Run(ctx, b.Path, args...)
	if err != nil {
		return "", fmt.Errorf("run blender: %w", err)
	}
	if res.ExitCode != 0 || strings.Contains(res.Stderr, "Error: Python script fail") {
		return "", fmt.Errorf("blender unwrap failed (code %d): %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	if !isFile(out) {
		return "", fmt.Errorf("blender finished but output missing: %s", out)
	}
	return out, nil
}
