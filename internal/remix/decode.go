package remix

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// EntryKind tags the shape of one file-paths entry.
type EntryKind int

const (
	EntryUnknown EntryKind = iota
	// EntryPair is [contextPath, [files...]].
	EntryPair
	// EntryList is a flat [file, file, ...].
	EntryList
	// EntrySingle is a lone "file" string.
	EntrySingle
)

func (k EntryKind) String() string {
	switch k {
	case EntryPair:
		return "pair"
	case EntryList:
		return "list"
	case EntrySingle:
		return "single"
	default:
		return "unknown"
	}
}

// FileRefEntry is the normalized form of one file-paths entry. Head is the
// context element of a pair and empty for the other shapes.
type FileRefEntry struct {
	Kind  EntryKind
	Head  string
	Files []string
}

// Paths returns every path carried by the entry, head first, with
// backslashes normalized to forward slashes.
func (e FileRefEntry) Paths() []string {
	out := make([]string, 0, len(e.Files)+1)
	if e.Head != "" {
		out = append(out, slash(e.Head))
	}
	for _, f := range e.Files {
		if f != "" {
			out = append(out, slash(f))
		}
	}
	return out
}

func slash(p string) string { return strings.ReplaceAll(p, `\`, "/") }

// DecodeFilePaths normalizes the heterogeneous entries of a file-paths
// response. Entries of an unrecognized shape are kept as EntryUnknown so the
// caller can log them; they carry no paths.
func DecodeFilePaths(entries []json.RawMessage) []FileRefEntry {
	out := make([]FileRefEntry, 0, len(entries))
	for _, raw := range entries {
		out = append(out, decodeEntry(raw))
	}
	return out
}

func decodeEntry(raw json.RawMessage) FileRefEntry {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return FileRefEntry{Kind: EntrySingle, Files: []string{single}}
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return FileRefEntry{Kind: EntryUnknown}
	}
	if len(list) == 2 {
		var head string
		var files []json.RawMessage
		if json.Unmarshal(list[0], &head) == nil && json.Unmarshal(list[1], &files) == nil {
			return FileRefEntry{Kind: EntryPair, Head: head, Files: stringElems(files)}
		}
		// [[files...], x] and friends: take the nested list's strings
		if json.Unmarshal(list[1], &files) == nil {
			return FileRefEntry{Kind: EntryPair, Files: stringElems(files)}
		}
	}
	return FileRefEntry{Kind: EntryList, Files: stringElems(list)}
}

// stringElems keeps only the string elements of list.
func stringElems(list []json.RawMessage) []string {
	out := make([]string, 0, len(list))
	for _, raw := range list {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}

// pickString returns the first non-empty string field among keys.
func pickString(m map[string]json.RawMessage, keys ...string) (string, bool) {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(raw, &s) == nil && s != "" {
			return s, true
		}
	}
	return "", false
}

// pickList returns the first present list field among keys.
func pickList(m map[string]json.RawMessage, keys ...string) ([]json.RawMessage, bool) {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok {
			continue
		}
		var l []json.RawMessage
		if json.Unmarshal(raw, &l) == nil {
			return l, true
		}
	}
	return nil, false
}

func objectOf(r Result) (map[string]json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := r.Decode(&m); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	return m, nil
}

// TextureAttr is one existing texture input of a material.
type TextureAttr struct {
	Attribute string
	Path      string
}

func decodeTextures(list []json.RawMessage) ([]TextureAttr, error) {
	out := make([]TextureAttr, 0, len(list))
	for _, raw := range list {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) == 0 {
			continue
		}
		var attr, file string
		if json.Unmarshal(pair[0], &attr) != nil || attr == "" {
			continue
		}
		if len(pair) > 1 {
			_ = json.Unmarshal(pair[1], &file)
		}
		out = append(out, TextureAttr{Attribute: slash(attr), Path: file})
	}
	if len(out) == 0 && len(list) > 0 {
		return nil, errors.New("no well-formed texture entries")
	}
	return out, nil
}
