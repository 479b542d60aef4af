// Package snapshot reads and writes the dashboard data files: a JSON
// document and the same object assigned to a JavaScript variable, loaded
// by the static dashboard page.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"veilleboard/internal/models"
)

// Output file names and the default JavaScript variable.
const (
	JSFile          = "dashboard_stats.js"
	JSONFile        = "dashboard_stats.json"
	DefaultVariable = "DASHBOARD_DATA"
)

var (
	ErrNoPayload   = errors.New("snapshot: no payload")
	ErrMalformed   = errors.New("snapshot: malformed payload")
	ErrBadVariable = errors.New("snapshot: invalid JavaScript variable name")
)

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// EncodeJSON renders s with a four-space indent and non-ASCII text kept as is.
func EncodeJSON(s models.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("could not encode snapshot: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// EncodeJS renders s as `var <variable> = {...};`.
func EncodeJS(s models.Snapshot, variable string) ([]byte, error) {
	if variable == "" {
		variable = DefaultVariable
	}
	if !identRe.MatchString(variable) {
		return nil, fmt.Errorf("%w: %q", ErrBadVariable, variable)
	}
	body, err := EncodeJSON(s)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+len(variable)+8)
	out = append(out, "var "...)
	out = append(out, variable...)
	out = append(out, " = "...)
	out = append(out, body...)
	out = append(out, ';')
	return out, nil
}

// Extract returns the JSON object held by data, which is either a JSON
// document or a JavaScript assignment of one.
func Extract(data []byte) ([]byte, error) {
	data = bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF")))
	if len(data) == 0 {
		return nil, ErrNoPayload
	}
	if data[0] != '{' {
		start := bytes.IndexByte(data, '{')
		end := bytes.LastIndexByte(data, '}')
		if start < 0 || end < start {
			return nil, fmt.Errorf("%w: no object found", ErrMalformed)
		}
		data = data[start : end+1]
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrMalformed)
	}
	return data, nil
}

// Decode parses a JSON or JavaScript payload.
func Decode(data []byte) (models.Snapshot, error) {
	obj, err := Extract(data)
	if err != nil {
		return models.Snapshot{}, err
	}
	if !gjson.ParseBytes(obj).IsObject() {
		return models.Snapshot{}, fmt.Errorf("%w: top level is not an object", ErrMalformed)
	}
	var s models.Snapshot
	if err := json.Unmarshal(obj, &s); err != nil {
		return models.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return s, nil
}

// ReadFile decodes the snapshot stored at path.
func ReadFile(path string) (models.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Snapshot{}, err
	}
	s, err := Decode(data)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// PatchKPI sets one KPI in a payload without re-encoding the rest of it.
// A value made of digits is stored as a count; anything else as a string.
// A JavaScript payload stays a JavaScript payload.
func PatchKPI(data []byte, name, value string) ([]byte, error) {
	obj, err := Extract(data)
	if err != nil {
		return nil, err
	}
	path := "kpis." + escapePath(name)

	var patched []byte
	if n, convErr := strconv.Atoi(strings.TrimSpace(value)); convErr == nil {
		patched, err = sjson.SetBytes(obj, path, n)
	} else {
		patched, err = sjson.SetBytes(obj, path, value)
	}
	if err != nil {
		return nil, fmt.Errorf("could not patch %s: %w", name, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return patched, nil
	}
	start := bytes.IndexByte(data, '{')
	end := bytes.LastIndexByte(data, '}')
	out := make([]byte, 0, len(data)+len(patched)-len(obj))
	out = append(out, data[:start]...)
	out = append(out, patched...)
	out = append(out, data[end+1:]...)
	return out, nil
}

// escapePath escapes the gjson/sjson path metacharacters of a key.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// WriteFiles writes both data files into dir, each atomically, and returns their paths.
func WriteFiles(dir string, s models.Snapshot, variable string) ([]string, error) {
	js, err := EncodeJS(s, variable)
	if err != nil {
		return nil, err
	}
	doc, err := EncodeJSON(s)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create %s: %w", dir, err)
	}
	paths := []string{filepath.Join(dir, JSFile), filepath.Join(dir, JSONFile)}
	for i, data := range [][]byte{js, doc} {
		if err := WriteAtomic(paths[i], data); err != nil {
			return nil, fmt.Errorf("could not write %s: %w", paths[i], err)
		}
	}
	return paths, nil
}

// WriteAtomic replaces path with data through a temporary file in the same directory.
func WriteAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
