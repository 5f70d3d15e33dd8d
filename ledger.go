package main

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aktagon/link-harvester/internal/ledgerio"
	"go.uber.org/zap"
)

// Ledger is the in-memory copy of the link file. Rows keep their file order;
// only Annotate writes back.
type Ledger struct {
	path     string
	encoding string
	rows     [][]string
	logger   *zap.Logger
}

// LoadLedger reads the ledger at path. encoding is a WHATWG label such as
// "utf-8" or "gbk"; empty means utf-8.
func LoadLedger(path, encoding string, logger *zap.Logger) (*Ledger, error) {
	logger = orNop(logger)
	if encoding == "" {
		encoding = "utf-8"
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrLedgerNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading ledger %s: %w", path, err)
	}

	rows, err := ledgerio.Decode(data, encoding)
	if err != nil {
		return nil, fmt.Errorf("reading ledger %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyLedger, path)
	}

	logger.Info("Ledger loaded", zap.String("path", path), zap.Int("rows", len(rows)))
	return &Ledger{path: path, encoding: encoding, rows: rows, logger: logger}, nil
}

// Path returns the file backing the ledger
func (l *Ledger) Path() string {
	return l.path
}

// Len returns the number of rows, header included
func (l *Ledger) Len() int {
	return len(l.rows)
}

// Row returns a copy of the fields of row index
func (l *Ledger) Row(index int) ([]string, error) {
	if index < 0 || index >= len(l.rows) {
		return nil, fmt.Errorf("%w: row %d, ledger has %d rows", ErrIndexOutOfRange, index, len(l.rows))
	}
	return append([]string(nil), l.rows[index]...), nil
}

// Link returns column 0 of row index
func (l *Ledger) Link(index int) (string, error) {
	row, err := l.Row(index)
	if err != nil {
		return "", err
	}
	if len(row) == 0 {
		return "", nil
	}
	return row[0], nil
}

// Note returns the annotation column of row index, empty if absent
func (l *Ledger) Note(index int) string {
	if index < 0 || index >= len(l.rows) || len(l.rows[index]) <= ledgerio.NoteColumn {
		return ""
	}
	return l.rows[index][ledgerio.NoteColumn]
}

// Items returns the work items from startRow to the end of the ledger
func (l *Ledger) Items(startRow int) []WorkItem {
	if startRow < 0 {
		startRow = 0
	}
	var items []WorkItem
	for i := startRow; i < len(l.rows); i++ {
		row := l.rows[i]
		item := WorkItem{Index: i}
		if len(row) > 0 {
			item.Link = row[0]
		}
		if len(row) > 1 {
			item.Label = row[1]
		}
		if len(row) > ledgerio.NoteColumn {
			item.Note = row[ledgerio.NoteColumn]
		}
		items = append(items, item)
	}
	return items
}

// Annotate sets the note column of row index and rewrites the whole file
func (l *Ledger) Annotate(index int, note string) error {
	if index < 0 || index >= len(l.rows) {
		return fmt.Errorf("%w: row %d, ledger has %d rows", ErrIndexOutOfRange, index, len(l.rows))
	}
	for len(l.rows[index]) <= ledgerio.NoteColumn {
		l.rows[index] = append(l.rows[index], "")
	}
	l.rows[index][ledgerio.NoteColumn] = note

	if err := l.save(); err != nil {
		return fmt.Errorf("annotating row %d: %w", index, err)
	}
	l.logger.Info("Ledger row annotated", zap.Int("row", index), zap.String("note", note))
	return nil
}

// ClearNotes blanks the note column of every data row that has one and
// saves. The header row keeps its label.
func (l *Ledger) ClearNotes() (int, error) {
	cleared := 0
	for i := ledgerio.FirstDataRow; i < len(l.rows); i++ {
		row := l.rows[i]
		if len(row) > ledgerio.NoteColumn && row[ledgerio.NoteColumn] != "" {
			row[ledgerio.NoteColumn] = ""
			cleared++
		}
	}
	if cleared == 0 {
		return 0, nil
	}
	return cleared, l.save()
}

// save writes every row with every cell quoted, via a temp file and rename
func (l *Ledger) save() error {
	content, err := ledgerio.Encode(l.rows, l.encoding)
	if err != nil {
		return err
	}
	return ledgerio.WriteFileAtomic(l.path, content, 0644)
}

// ValidateLink reports whether link parses as an absolute URI
func ValidateLink(link string) bool {
	link = strings.TrimSpace(link)
	if link == "" || strings.ContainsAny(link, " \t\n") {
		return false
	}
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.IsAbs() && (u.Host != "" || u.Opaque != "")
}

// SeedSampleLedger writes an example ledger to path
func SeedSampleLedger(path string) error {
	sample := [][]string{
		{"链接", "标题", "备注"},
		{"https://www.bilibili.com/video/BV1234567890", "示例视频1"},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "示例视频2"},
		{"https://www.bilibili.com/video/BV0987654321", "示例视频3"},
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating ledger directory: %w", err)
		}
	}
	return ledgerio.WriteFileAtomic(path, []byte(ledgerio.EncodeRows(sample)), 0644)
}
