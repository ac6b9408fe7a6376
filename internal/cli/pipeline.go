package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"remix-sync/internal/config"
	sync "remix-sync/internal/core/sync"
	"remix-sync/internal/host"
	"remix-sync/internal/infra/logx"
	"remix-sync/internal/link"
	"remix-sync/internal/remix"
	"remix-sync/internal/task"
	"remix-sync/internal/tools"
	"remix-sync/internal/ui"
)

type op string

const (
	opPull   op = "pull"
	opPush   op = "push"
	opImport op = "import"
)

var titles = map[op]string{
	opPull:   "Pull from Remix",
	opPush:   "Push to Remix",
	opImport: "Import Remix textures",
}

type commonFlags struct {
	config string
	plain  bool
	debug  bool
	report string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.config, "config", config.DefaultPath(), "settings file")
	fs.BoolVar(&c.plain, "plain", false, "print status lines instead of the interactive view")
	fs.BoolVar(&c.debug, "debug", false, "debug logging")
	fs.StringVar(&c.report, "report", "", "write a JSON run report to this file")
	return c
}

// loadSettings reads the settings file and configures logging from it. Logs
// go to stderr until an interactive run redirects them.
func loadSettings(c *commonFlags) (config.Settings, error) {
	logx.SetOutput(stderr)
	s, err := config.Load(strings.TrimSpace(c.config))
	if err != nil {
		return s, err
	}
	logx.SetMinLevel(logx.ParseLevel(s.LogLevel))
	if c.debug {
		logx.SetMinLevel(logx.LevelDebug)
		logx.SetVerbose(true)
	}
	return s, nil
}

// newEngine wires the engine to a project directory and the configured
// external tools.
func newEngine(s config.Settings, client *remix.Client, projectDir string) *sync.Engine {
	proj := host.Open(projectDir)
	c := sync.Collaborators{
		Links:    link.NewFileStore(projectDir),
		Exporter: proj,
		Projects: proj,
		Assigner: proj,
	}
	if s.TexconvPath != "" {
		c.Converter = tools.Texconv{Path: s.TexconvPath}
	}
	if s.BlenderExecutablePath != "" && s.BlenderScriptPath != "" {
		c.Unwrapper = tools.Blender{
			Path:   s.BlenderExecutablePath,
			Script: s.BlenderScriptPath,
			Suffix: s.UnwrapOutputSuffix,
			UV: tools.UVParams{
				AngleLimit:      s.UVAngleLimit,
				IslandMargin:    s.UVIslandMargin,
				AreaWeight:      s.UVAreaWeight,
				StretchToBounds: s.UVStretchToBounds,
			},
		}
	}
	return sync.NewEngine(s, client, c)
}

func runPipeline(o op, args []string) error {
	fs := flag.NewFlagSet(string(o), flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	projectDir := "."
	if fs.NArg() > 0 {
		projectDir = fs.Arg(0)
	}
	projectDir, err := filepath.Abs(projectDir)
	if err != nil {
		return err
	}

	s, err := loadSettings(common)
	if err != nil {
		return err
	}
	interactive := !common.plain && stdoutIsTTY()
	if interactive {
		// keep log lines out of the interactive view
		closeLog, err := logToFile(filepath.Join(projectDir, ".remix-sync", "remix-sync.log"))
		if err != nil {
			return err
		}
		defer closeLog()
	}

	client := remix.New(remix.OptionsFromSettings(s))
	engine := newEngine(s, client, projectDir)
	fn := map[op]task.Func{
		opPull:   engine.PullTask(),
		opPush:   engine.PushTask(),
		opImport: engine.ImportTask(),
	}[o]

	sched := task.NewScheduler(s.Workers)
	h := sched.Run(string(o), fn)

	var run *sync.Run
	if interactive {
		final, teaErr := tea.NewProgram(ui.New(titles[o], h.Events(), ui.WithMetrics(client.Metrics().Snapshot)), tea.WithAltScreen()).Run()
		if teaErr != nil {
			return teaErr
		}
		m := final.(ui.Model)
		if !m.Done() {
			fmt.Fprintln(stdout, "waiting for the running task to finish...")
		}
		var value any
		value, err = h.Wait()
		run, _ = value.(*sync.Run)
		if run == nil {
			var re *sync.RunError
			if errors.As(err, &re) {
				run = re.Run
			}
		}
		if run != nil {
			fmt.Fprint(stdout, run.Report())
		}
	} else {
		run, err = ui.RunPlain(stdout, h.Events())
	}

	if mErr := client.Metrics().WriteTextfile(s.MetricsFile); mErr != nil {
		logx.Warnf("%v", mErr)
	}
	if common.report != "" && run != nil {
		if rErr := ui.NewReport(run).Dump(common.report); rErr != nil {
			logx.Warnf("write report: %v", rErr)
		}
	}
	var re *sync.RunError
	if errors.As(err, &re) {
		return fmt.Errorf("%s failed", o)
	}
	return err
}

func logToFile(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logx.SetOutput(f)
	return func() {
		logx.SetOutput(stderr)
		_ = f.Close()
	}, nil
}
