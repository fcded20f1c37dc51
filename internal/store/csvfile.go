package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CSVDir stores each table as a CSV file with a header row inside one
// directory. This is the layout the legacy deployment left behind.
type CSVDir struct {
	dir string
}

// OpenCSV prepares dir (creating it if needed) as a CSV backend.
func OpenCSV(dir string) (*CSVDir, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &CSVDir{dir: dir}, nil
}

func (c *CSVDir) path(t Table) string {
	name := t.File
	if name == "" {
		name = t.Name + ".csv"
	}
	return filepath.Join(c.dir, name)
}

func (c *CSVDir) Ensure(ctx context.Context, t Table) error {
	if _, err := os.Stat(c.path(t)); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return c.SaveAll(ctx, t, nil)
}

func (c *CSVDir) LoadAll(_ context.Context, t Table) ([]Row, error) {
	f, err := os.Open(c.path(t))
	if errors.Is(err, os.ErrNotExist) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header %s: %w", t.File, err)
	}
	if len(header) > 0 {
		header[0] = trimBOM(header[0])
	}

	rows := []Row{}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", t.File, err)
		}
		row := make(Row, len(t.Columns))
		for _, col := range t.Columns {
			row[col] = ""
		}
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// SaveAll writes to a temporary file in the same directory and renames it
// over the table, so readers see either the old or the new contents.
func (c *CSVDir) SaveAll(_ context.Context, t Table, rows []Row) error {
	target := c.path(t)
	tmp, err := os.CreateTemp(c.dir, "."+filepath.Base(target)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(t.Columns); err != nil {
		tmp.Close()
		return err
	}
	rec := make([]string, len(t.Columns))
	for _, row := range rows {
		for i, col := range t.Columns {
			rec[i] = row[col]
		}
		if err := w.Write(rec); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

func (c *CSVDir) Close() error { return nil }

func trimBOM(s string) string {
	if len(s) >= 3 && s[0] == 0xEF && s[1] == 0xBB && s[2] == 0xBF {
		return s[3:]
	}
	return s
}
