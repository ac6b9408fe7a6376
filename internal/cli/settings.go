package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"remix-sync/internal/config"
	"remix-sync/internal/remix"
)

func runPing(args []string) error {
	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
	common := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	s, err := loadSettings(common)
	if err != nil {
		return err
	}
	client := remix.New(remix.OptionsFromSettings(s))
	res := client.Ping(context.Background())
	if err := res.Err("ping"); err != nil {
		return fmt.Errorf("remix at %s: %w", s.APIBaseURL, err)
	}
	fmt.Fprintf(stdout, "ok: %s answered with status %d\n", s.APIBaseURL, res.StatusCode)
	return nil
}

func runSettings(args []string) error {
	fs := flag.NewFlagSet("settings", flag.ContinueOnError)
	path := fs.String("config", config.DefaultPath(), "settings file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	sub := "show"
	if len(rest) > 0 {
		sub, rest = rest[0], rest[1:]
	}
	file := strings.TrimSpace(*path)

	switch sub {
	case "path":
		fmt.Fprintln(stdout, file)
		return nil
	case "show":
		s, err := config.Load(file)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(s)
		if err != nil {
			return err
		}
		_, err = stdout.Write(data)
		return err
	case "set":
		if len(rest) != 2 {
			return fmt.Errorf("usage: settings set <key> <value>")
		}
		s, err := config.Load(file)
		if err != nil {
			return err
		}
		next := s.Clone()
		if err := config.SetKey(&next, rest[0], rest[1]); err != nil {
			return err
		}
		saved, err := config.NewStore(file, s).Apply(func(cur *config.Settings) { *cur = next })
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(map[string]any{rest[0]: fieldValue(saved, rest[0])})
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "saved %s: %s", file, data)
		return nil
	default:
		return fmt.Errorf("unknown settings command %q (show | set | path)", sub)
	}
}

// fieldValue reads one setting back by its YAML key, after sanitizing.
func fieldValue(s config.Settings, key string) any {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil
	}
	fields := map[string]any{}
	if err := yaml.Unmarshal(data, &fields); err != nil {
		return nil
	}
	return fields[key]
}
