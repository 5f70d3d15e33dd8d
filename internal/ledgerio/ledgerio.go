// Package ledgerio reads and writes the ledger file format: comma separated
// rows in a configurable charset, every cell quoted on output.
package ledgerio

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html/charset"
)

const (
	// HeaderRow is the row holding the column labels
	HeaderRow = 0
	// FirstDataRow is the first row holding a link
	FirstDataRow = 1
	// NoteColumn holds the annotation written to failed rows
	NoteColumn = 2
)

// Decode converts data from encoding, a WHATWG label such as "utf-8" or
// "gbk" (empty means utf-8), and parses its rows
func Decode(data []byte, encoding string) ([][]string, error) {
	if encoding == "" {
		encoding = "utf-8"
	}
	decoded, err := charset.NewReader(bytes.NewReader(data), "text/csv; charset="+encoding)
	if err != nil {
		return nil, fmt.Errorf("decoding as %s: %w", encoding, err)
	}
	return ParseRows(decoded)
}

// ParseRows splits comma separated lines, dropping blank lines and
// trimming whitespace and stray quotes around every field
func ParseRows(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make([]string, len(record))
		blank := true
		for i, field := range record {
			row[i] = trimField(field)
			if row[i] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func trimField(field string) string {
	field = strings.TrimSpace(field)
	field = strings.TrimPrefix(field, "\ufeff")
	if len(field) >= 2 && strings.HasPrefix(field, `"`) && strings.HasSuffix(field, `"`) {
		field = field[1 : len(field)-1]
	}
	return strings.TrimSpace(field)
}

// EncodeRows joins rows with newlines, quoting every cell
func EncodeRows(rows [][]string) string {
	var b strings.Builder
	for i, row := range rows {
		if i > 0 {
			b.WriteString("\n")
		}
		for j, cell := range row {
			if j > 0 {
				b.WriteString(",")
			}
			b.WriteString(`"`)
			b.WriteString(strings.ReplaceAll(cell, `"`, `""`))
			b.WriteString(`"`)
		}
	}
	return b.String()
}

// Encode renders rows in encoding
func Encode(rows [][]string, encoding string) ([]byte, error) {
	content := []byte(EncodeRows(rows))
	if isUTF8Label(encoding) {
		return content, nil
	}
	enc, _ := charset.Lookup(encoding)
	if enc == nil {
		return nil, fmt.Errorf("unknown ledger encoding %q", encoding)
	}
	encoded, err := enc.NewEncoder().Bytes(content)
	if err != nil {
		return nil, fmt.Errorf("encoding ledger as %s: %w", encoding, err)
	}
	return encoded, nil
}

func isUTF8Label(label string) bool {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "utf-8", "utf8":
		return true
	}
	return false
}

// WriteFileAtomic replaces path with data through a temp file and rename,
// so readers see either the old or the new content
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	return os.Rename(tmpName, path)
}
