// Package report persists campaign delivery ledgers and aggregate send counts.
package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"wablast/internal/model"
	"wablast/internal/notify"
)

// Prefix and extension shared by every report file.
const (
	Prefix = "report-"
	Ext    = ".csv"
)

var ErrInvalidName = errors.New("invalid report name")

var header = []string{"number", "name", "status"}

// StatsStore persists the per-day sent counters.
type StatsStore interface {
	AddSent(ctx context.Context, day string, n int) error
	Stats(ctx context.Context) (model.Stats, error)
	ResetStats(ctx context.Context) error
}

// Writer appends report rows to CSV files under Dir and rolls up send counts.
type Writer struct {
	Dir    string
	Stats  StatsStore
	Sink   notify.Sink
	Logger *zap.Logger

	// Now returns the process-local time used for the daily bucket.
	Now func() time.Time

	mu sync.Mutex
}

func NewWriter(dir string, stats StatsStore, sink notify.Sink, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{Dir: dir, Stats: stats, Sink: sink, Logger: logger, Now: time.Now}
}

// GroupReportID is the stable report name for a contact group, shared by every run against it.
func GroupReportID(group string) string {
	return Prefix + strings.TrimSuffix(group, filepath.Ext(group)) + Ext
}

// UploadReportID is a per-run report name for ad-hoc uploads.
func UploadReportID(t time.Time) string {
	return fmt.Sprintf("%supload-%d%s", Prefix, t.UnixMilli(), Ext)
}

// SaveReport appends rows to the report file, writing the header only when the file is new.
// It is a no-op for an empty id or no rows.
func (w *Writer) SaveReport(ctx context.Context, id string, rows []model.ReportRow) error {
	if id == "" || len(rows) == 0 {
		return nil
	}
	path, err := w.path(id)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}
	isNew := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		isNew = true
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open report: %w", err)
	}
	cw := csv.NewWriter(f)
	if isNew {
		_ = cw.Write(header)
	}
	for _, r := range rows {
		_ = cw.Write([]string{r.Number, r.Name, r.Status})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	w.emit(notify.Log(fmt.Sprintf("SAVING REPORT: %s with %d entries.", id, len(rows))))
	w.Logger.Info("report saved", zap.String("report", id), zap.Int("rows", len(rows)))
	return nil
}

// UpdateStats adds sent to the total and to today's entry, then notifies observers.
func (w *Writer) UpdateStats(ctx context.Context, sent int) error {
	day := w.Now().Format("2006-01-02")
	if err := w.Stats.AddSent(ctx, day, sent); err != nil {
		return fmt.Errorf("update stats: %w", err)
	}
	w.emit(notify.Event{Type: notify.TypeStatsUpdated})
	return nil
}

// ReadStats returns the aggregate counters with TotalCampaigns set to the number of report files.
func (w *Writer) ReadStats(ctx context.Context) (model.Stats, error) {
	st, err := w.Stats.Stats(ctx)
	if err != nil {
		return model.Stats{}, err
	}
	names, err := w.List()
	if err != nil {
		return model.Stats{}, err
	}
	st.TotalCampaigns = len(names)
	return st, nil
}

// ResetStats zeroes the counters and deletes every report file.
func (w *Writer) ResetStats(ctx context.Context) error {
	if err := w.Stats.ResetStats(ctx); err != nil {
		return err
	}
	names, err := w.List()
	if err != nil {
		return err
	}
	for _, n := range names {
		if err := w.Delete(n); err != nil {
			return err
		}
	}
	w.emit(notify.Event{Type: notify.TypeStatsUpdated})
	return nil
}

// List returns the report file names in lexical order.
func (w *Writer) List() ([]string, error) {
	entries, err := os.ReadDir(w.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), Prefix) && strings.HasSuffix(e.Name(), Ext) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Read parses a report file back into rows.
func (w *Writer) Read(id string) ([]model.ReportRow, error) {
	path, err := w.path(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	rows := []model.ReportRow{}
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read report: %w", err)
		}
		if first {
			first = false
			continue
		}
		var r model.ReportRow
		if len(rec) > 0 {
			r.Number = rec[0]
		}
		if len(rec) > 1 {
			r.Name = rec[1]
		}
		if len(rec) > 2 {
			r.Status = rec[2]
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// Delete removes a report file. Missing files are not an error.
func (w *Writer) Delete(id string) error {
	path, err := w.path(id)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (w *Writer) path(id string) (string, error) {
	if id != filepath.Base(id) || !strings.HasPrefix(id, Prefix) || !strings.HasSuffix(id, Ext) {
		return "", ErrInvalidName
	}
	return filepath.Join(w.Dir, id), nil
}

func (w *Writer) emit(e notify.Event) {
	if w.Sink != nil {
		w.Sink.Emit(e)
	}
}
