package ingest

import (
	"path"
	"regexp"
	"strings"
)

// OutputPaths collects every path the job result published on the
// ingestion_output channel. The result nests schema -> plugin -> data flow;
// the context plugin and every check plugin of every completed schema are
// searched. When no flow carries output, a top-level "content" list is used.
// Non-string entries are skipped.
func OutputPaths(result any) []string {
	root, _ := result.(map[string]any)
	if root == nil {
		return nil
	}
	var out []string
	schemas, _ := root["completed_schemas"].([]any)
	for _, s := range schemas {
		schema, _ := s.(map[string]any)
		if schema == nil {
			continue
		}
		plugins := []any{schema["context_plugin"]}
		if checks, ok := schema["check_plugins"].([]any); ok {
			plugins = append(plugins, checks...)
		}
		for _, p := range plugins {
			out = append(out, flowOutputs(p)...)
		}
	}
	if len(out) == 0 {
		content, _ := root["content"].([]any)
		out = append(out, strs(content)...)
	}
	return out
}

func flowOutputs(plugin any) []string {
	p, _ := plugin.(map[string]any)
	data, _ := p["data"].(map[string]any)
	flows, _ := data["data_flows"].([]any)
	var out []string
	for _, f := range flows {
		flow, _ := f.(map[string]any)
		if ch, _ := flow["channel"].(string); ch != ChannelOutput {
			continue
		}
		list, _ := flow["output_data"].([]any)
		out = append(out, strs(list)...)
	}
	return out
}

func strs(list []any) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

var channelRe = regexp.MustCompile(`^(.*)\.([A-Za-z])$`)

// OutputStem splits a converted file name such as "foo.n.rtex.dds" into its
// stem ("foo") and one-letter channel marker ("n", possibly empty).
func OutputStem(p string) (stem, channel string) {
	base := path.Base(strings.ReplaceAll(p, `\`, "/"))
	base = trimExt(base, ".dds")
	base = trimExt(base, ".rtex")
	if m := channelRe.FindStringSubmatch(base); m != nil {
		return m[1], strings.ToLower(m[2])
	}
	return base, ""
}

// InputStem is the stem the service derives outputs from: the base name
// without its extension and without a trailing ".rtex".
func InputStem(p string) string {
	base := path.Base(strings.ReplaceAll(p, `\`, "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	return trimExt(base, ".rtex")
}

func trimExt(s, ext string) string {
	if len(s) >= len(ext) && strings.EqualFold(s[len(s)-len(ext):], ext) {
		return s[:len(s)-len(ext)]
	}
	return s
}

// MatchOutput picks the converted file for an input stem. Only .dds outputs
// are considered and stems compare case-insensitively. With a known channel
// marker the first output carrying it wins; otherwise, or when none carries
// it, the first stem match is used.
func MatchOutput(outputs []string, inputStem, channel string) (string, bool) {
	var fallback string
	for _, p := range outputs {
		if !strings.HasSuffix(strings.ToLower(p), ".dds") {
			continue
		}
		stem, ch := OutputStem(p)
		if !strings.EqualFold(stem, inputStem) {
			continue
		}
		if channel == "" || ch == channel {
			return p, true
		}
		if fallback == "" {
			fallback = p
		}
	}
	return fallback, fallback != ""
}
