package register

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
)

// Load reads a register export. The format follows the file extension:
// .csv (comma or semicolon separated) or .json (array of row objects).
// The register is named after the file unless a name is given.
func Load(path string, name string) (*Register, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open register %s: %w", path, err)
	}
	defer f.Close()

	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	reg, err := Parse(name, f, formatOf(path))
	if err != nil {
		return nil, fmt.Errorf("could not parse register %s: %w", path, err)
	}
	reg.Path = path
	return reg, nil
}

func formatOf(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

// Parse decodes a register from r in the given format ("csv" or "json").
func Parse(name string, r io.Reader, format string) (*Register, error) {
	switch format {
	case "csv":
		return parseCSV(name, r)
	case "json":
		return parseJSON(name, r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func parseCSV(name string, r io.Reader) (*Register, error) {
	br := bufio.NewReader(r)
	// Strip a UTF-8 BOM left by spreadsheet exports.
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, []byte{0xEF, 0xBB, 0xBF}) {
		br.Discard(3)
	}
	first, _ := br.Peek(4096)

	cr := csv.NewReader(br)
	cr.Comma = detectDelimiter(first)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		reg := New(name, nil)
		reg.Comma = cr.Comma
		return reg, nil
	}

	reg := New(name, records[0])
	reg.Comma = cr.Comma
	for _, rec := range records[1:] {
		if isBlank(rec) {
			continue
		}
		// Cells past the header get unnamed columns so Save writes them back.
		for len(reg.Header) < len(rec) {
			reg.Header = append(reg.Header, "")
		}
		reg.Rows = append(reg.Rows, rec)
	}
	for i := range reg.Rows {
		for len(reg.Rows[i]) < len(reg.Header) {
			reg.Rows[i] = append(reg.Rows[i], "")
		}
	}
	return reg, nil
}

// detectDelimiter picks ';' when the header line holds more semicolons than commas.
func detectDelimiter(sample []byte) rune {
	line := sample
	if i := bytes.IndexByte(sample, '\n'); i >= 0 {
		line = sample[:i]
	}
	if bytes.Count(line, []byte{';'}) > bytes.Count(line, []byte{','}) {
		return ';'
	}
	return ','
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseJSON(name string, r io.Reader) (*Register, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	reg := New(name, nil)
	if len(bytes.TrimSpace(data)) == 0 {
		return reg, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("expected an array of rows, got %s", root.Type)
	}

	var parseErr error
	root.ForEach(func(_, obj gjson.Result) bool {
		if !obj.IsObject() {
			parseErr = fmt.Errorf("expected row objects, got %s", obj.Type)
			return false
		}
		values := map[string]string{}
		obj.ForEach(func(key, value gjson.Result) bool {
			h := strings.TrimSpace(key.String())
			if reg.Column(h) < 0 {
				reg.Header = append(reg.Header, h)
			}
			if value.Type == gjson.String {
				values[h] = value.String()
			} else if value.Type != gjson.Null {
				values[h] = value.Raw
			}
			return true
		})
		row := make([]string, len(reg.Header))
		for c, h := range reg.Header {
			row[c] = values[h]
		}
		reg.Rows = append(reg.Rows, row)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	// Rows read before a late column appeared are shorter than the header.
	for i := range reg.Rows {
		for len(reg.Rows[i]) < len(reg.Header) {
			reg.Rows[i] = append(reg.Rows[i], "")
		}
	}
	return reg, nil
}

// Save rewrites the register at its Path, atomically.
func (r *Register) Save() error {
	if r.Path == "" {
		return fmt.Errorf("register %s has no path", r.Name)
	}
	var buf bytes.Buffer
	if err := r.Encode(&buf, formatOf(r.Path)); err != nil {
		return err
	}
	return writeAtomic(r.Path, buf.Bytes())
}

// Encode writes the register in the given format.
func (r *Register) Encode(w io.Writer, format string) error {
	switch format {
	case "csv":
		cw := csv.NewWriter(w)
		if r.Comma != 0 {
			cw.Comma = r.Comma
		}
		if err := cw.Write(r.Header); err != nil {
			return err
		}
		for _, row := range r.Rows {
			out := make([]string, len(r.Header))
			copy(out, row)
			if err := cw.Write(out); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	case "json":
		return r.encodeJSON(w)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// encodeJSON writes an array of objects whose keys follow the header order.
func (r *Register) encodeJSON(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteString("[")
	for i, row := range r.Rows {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n    {")
		for c, h := range r.Header {
			if c > 0 {
				buf.WriteString(", ")
			}
			k, err := json.Marshal(h)
			if err != nil {
				return err
			}
			v, err := json.Marshal(cellAt(row, c))
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteString(": ")
			buf.Write(v)
		}
		buf.WriteString("}")
	}
	buf.WriteString("\n]\n")
	_, err := w.Write(buf.Bytes())
	return err
}

// RowJSON returns one row as a JSON object in header order.
func (r *Register) RowJSON(row int) ([]byte, error) {
	i, err := r.index(row)
	if err != nil {
		return nil, err
	}
	single := &Register{Name: r.Name, Header: r.Header, Rows: [][]string{r.Rows[i]}}
	var buf bytes.Buffer
	if err := single.encodeJSON(&buf); err != nil {
		return nil, err
	}
	obj := gjson.GetBytes(buf.Bytes(), "0")
	return []byte(obj.Raw), nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
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
