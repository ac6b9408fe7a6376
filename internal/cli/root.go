// Package cli implements the remix-sync command line.
package cli

import (
	"fmt"
	"io"
	"os"
)

// stdout is where commands print and stderr where non-interactive runs log;
// tests swap them.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func Run(args []string) error {
	if len(args) == 0 {
		printRootUsage()
		return nil
	}
	switch args[0] {
	case "pull":
		return runPipeline(opPull, args[1:])
	case "push":
		return runPipeline(opPush, args[1:])
	case "import":
		return runPipeline(opImport, args[1:])
	case "ping":
		return runPing(args[1:])
	case "settings":
		return runSettings(args[1:])
	case "help", "-h", "--help":
		printRootUsage()
		return nil
	default:
		printRootUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func printRootUsage() {
	fmt.Fprintln(stdout, "remix-sync: move meshes and textures between a local project and an RTX Remix session")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Commands:")
	fmt.Fprintln(stdout, "  pull [project-dir]    create a project from the mesh selected in Remix and link it")
	fmt.Fprintln(stdout, "  push [project-dir]    export, ingest and bind the project's textures on the linked material")
	fmt.Fprintln(stdout, "  import [project-dir]  copy the linked material's textures into the project")
	fmt.Fprintln(stdout, "  ping                  check that the Remix control API answers")
	fmt.Fprintln(stdout, "  settings              show or change settings (show | set <key> <value> | path)")
	fmt.Fprintln(stdout)
	fmt.Fprintln(stdout, "Common flags:")
	fmt.Fprintln(stdout, "  --config <file>  settings file (default: user config dir, or $REMIX_SYNC_CONFIG)")
	fmt.Fprintln(stdout, "  --plain          print status lines instead of the interactive view")
	fmt.Fprintln(stdout, "  --debug          debug logging, secrets still redacted")
	fmt.Fprintln(stdout, "  --report <file>  write a JSON report of the run")
}

func stdoutIsTTY() bool {
	f, ok := stdout.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
