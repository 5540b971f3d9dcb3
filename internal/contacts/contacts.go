// Package contacts reads recipient lists from CSV files.
package contacts

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"wablast/internal/model"
)

var (
	ErrMissingNumberColumn = errors.New("contact file must have a column header named 'number'")
	ErrUnsupportedFormat   = errors.New("unsupported contact file type (expected .csv)")
	ErrInvalidGroupName    = errors.New("invalid contact group name")
)

// Source yields an ordered recipient list.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]model.Recipient, error)
}

// File is a CSV contact file on disk.
type File struct {
	Path string
}

func (f File) Name() string { return filepath.Base(f.Path) }

// Load parses the file. Rows with an empty number are skipped.
func (f File) Load(ctx context.Context) ([]model.Recipient, error) {
	if !strings.EqualFold(filepath.Ext(f.Path), ".csv") {
		return nil, ErrUnsupportedFormat
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Parse(ctx, fh)
}

// Parse reads CSV with a header row. The "number" column is required, "name" is optional.
func Parse(ctx context.Context, r io.Reader) ([]model.Recipient, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingNumberColumn
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	numberIdx, nameIdx := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))) {
		case "number":
			numberIdx = i
		case "name":
			nameIdx = i
		}
	}
	if numberIdx < 0 {
		return nil, ErrMissingNumberColumn
	}

	var out []model.Recipient
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if numberIdx >= len(rec) || strings.TrimSpace(rec[numberIdx]) == "" {
			continue
		}
		r := model.Recipient{Number: strings.TrimSpace(rec[numberIdx])}
		if nameIdx >= 0 && nameIdx < len(rec) {
			r.Name = strings.TrimSpace(rec[nameIdx])
		}
		out = append(out, r)
	}
	return out, nil
}

// Group describes a stored contact group file.
type Group struct {
	Name     string `json:"name"`
	Progress int    `json:"progress"`
}

// Dir is the directory of named contact groups.
type Dir struct {
	Path string
}

// Groups lists the stored group file names in lexical order.
func (d Dir) Groups() ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Group resolves a stored group by file name.
func (d Dir) Group(name string) (File, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return File{}, ErrInvalidGroupName
	}
	return File{Path: filepath.Join(d.Path, name)}, nil
}

// Save stores a group file, replacing any existing file with the same name.
func (d Dir) Save(name string, r io.Reader) error {
	f, err := d.Group(name)
	if err != nil {
		return err
	}
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return ErrUnsupportedFormat
	}
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return err
	}
	out, err := os.Create(f.Path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Delete removes a stored group file. Missing files are not an error.
func (d Dir) Delete(name string) error {
	f, err := d.Group(name)
	if err != nil {
		return err
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
