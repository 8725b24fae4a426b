// Package requestlog persists sanitized request/response records as one JSON file
// per UTC calendar day.
package requestlog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/silentengine/silentengine/pkg/metrics"
	"github.com/silentengine/silentengine/pkg/models"
	"github.com/silentengine/silentengine/pkg/privacy"
)

const (
	filePrefix = "requests-"
	fileSuffix = ".json"
	archiveDir = "archive"

	defaultMaxInMemory = 1000
	defaultFlushEvery  = 10
)

// Options configures a Logger.
type Options struct {
	Dir         string
	MaxInMemory int
	FlushEvery  int
	Filter      *privacy.Filter
	Logger      *slog.Logger
	Now         func() time.Time
}

// Logger buffers request records in memory and flushes them to the current day's
// partition. Append never returns an error; write failures are logged and the
// buffer is kept for the next flush.
type Logger struct {
	mu          sync.Mutex
	dir         string
	maxInMemory int
	flushEvery  int
	filter      *privacy.Filter
	log         *slog.Logger
	now         func() time.Time

	buf     []models.RequestLog
	day     string // partition the buffer belongs to
	spilled int    // records of day trimmed from buf that exist only on disk
	pending int    // appends since the last flush

	// stale holds earlier days whose rollover flush failed. They are retried
	// on every flush until written.
	stale []partition

	writeErrs rate.Sometimes
}

// partition is the unwritten state of one day.
type partition struct {
	day     string
	buf     []models.RequestLog
	spilled int
}

// New creates the log directory if needed and loads today's partition into the buffer.
func New(opts Options) (*Logger, error) {
	if opts.Dir == "" {
		return nil, errors.New("requestlog: dir is required")
	}
	if opts.MaxInMemory <= 0 {
		opts.MaxInMemory = defaultMaxInMemory
	}
	if opts.FlushEvery <= 0 {
		opts.FlushEvery = defaultFlushEvery
	}
	if opts.Filter == nil {
		opts.Filter = privacy.New(models.PrivacyConfig{}, true)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	l := &Logger{
		dir:         opts.Dir,
		maxInMemory: opts.MaxInMemory,
		flushEvery:  opts.FlushEvery,
		filter:      opts.Filter,
		log:         opts.Logger.With("component", "requestlog"),
		now:         opts.Now,
		writeErrs:   rate.Sometimes{First: 1, Interval: time.Minute},
	}
	l.day = dayOf(l.now())
	l.hydrate()
	return l, nil
}

func (l *Logger) hydrate() {
	path := l.partitionPath(l.day)
	recs, err := readPartition(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.log.Warn("could not load logs, starting fresh", "file", path, "error", err)
		}
		return
	}
	l.buf = recs
	if over := len(l.buf) - l.maxInMemory; over > 0 {
		l.spilled = over
		l.buf = l.buf[over:]
	}
	l.log.Info("loaded request logs", "count", len(recs), "file", path)
}

// Append sanitizes and records one request outcome.
func (l *Logger) Append(req models.GenerateRequest, resp models.GenerateResponse, errMsg string, fallbackUsed bool) {
	now := l.now()
	entry := models.RequestLog{
		ID:           resp.RequestID,
		Timestamp:    now.UTC(),
		Request:      req.Clone(),
		Response:     resp,
		Error:        errMsg,
		FallbackUsed: fallbackUsed,
	}
	entry.Request.Prompt = l.filter.Sanitize(req.Prompt, privacy.ContentPrompt)
	entry.Response.Content = l.filter.Sanitize(resp.Content, privacy.ContentResponse)

	l.mu.Lock()
	defer l.mu.Unlock()

	if day := dayOf(now); day != l.day {
		l.rollLocked(day)
	}

	l.buf = append(l.buf, entry)
	l.pending++

	if len(l.buf) > l.maxInMemory {
		_ = l.flushStaleLocked()
		if err := l.flushCurrentLocked(); err == nil {
			keep := l.maxInMemory / 2
			trim := len(l.buf) - keep
			l.spilled += trim
			l.buf = append([]models.RequestLog(nil), l.buf[trim:]...)
		}
		return
	}

	if l.pending >= l.flushEvery {
		_ = l.flushLocked()
	}
}

// Flush writes the buffer, and any earlier day still pending, to their partitions.
func (l *Logger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLocked()
}

// Close flushes any buffered records.
func (l *Logger) Close() error {
	return l.Flush()
}

// flushLocked writes any stale days left by a failed rollover, then the current buffer.
func (l *Logger) flushLocked() error {
	staleErr := l.flushStaleLocked()
	return errors.Join(staleErr, l.flushCurrentLocked())
}

// rollLocked moves the logger to day. If the old day cannot be written its
// buffer is kept in stale instead of being dropped.
func (l *Logger) rollLocked(day string) {
	if err := l.flushCurrentLocked(); err != nil {
		l.stale = append(l.stale, partition{day: l.day, buf: l.buf, spilled: l.spilled})
	}
	l.day = day
	l.buf = nil
	l.spilled = 0
	l.pending = 0
}

func (l *Logger) flushCurrentLocked() error {
	if len(l.buf) == 0 && l.spilled == 0 {
		l.pending = 0
		return nil
	}
	path := l.partitionPath(l.day)

	recs, err := partitionView(path, l.buf, l.spilled)
	if err == nil {
		err = writePartition(path, recs)
	}
	if err != nil {
		l.writeFailed(path, len(l.buf), err)
		return err
	}
	l.pending = 0
	l.log.Debug("saved request logs", "count", len(recs), "file", path)
	return nil
}

func (l *Logger) flushStaleLocked() error {
	if len(l.stale) == 0 {
		return nil
	}
	var errs []error
	kept := l.stale[:0]
	for _, p := range l.stale {
		path := l.partitionPath(p.day)
		recs, err := partitionView(path, p.buf, p.spilled)
		if err == nil {
			err = writePartition(path, recs)
		}
		if err != nil {
			l.writeFailed(path, len(p.buf), err)
			errs = append(errs, err)
			kept = append(kept, p)
			continue
		}
		l.log.Info("saved request logs of previous day", "count", len(recs), "file", path)
	}
	clear(l.stale[len(kept):])
	l.stale = kept
	return errors.Join(errs...)
}

func (l *Logger) writeFailed(path string, buffered int, err error) {
	metrics.LogWriteErrors.Inc()
	l.writeErrs.Do(func() {
		l.log.Error("error saving logs", "file", path, "buffered", buffered, "error", err)
	})
}

// partitionView returns the full contents of a partition: the spilled prefix
// read back from disk followed by buf.
func partitionView(path string, buf []models.RequestLog, spilled int) ([]models.RequestLog, error) {
	if spilled == 0 {
		return append([]models.RequestLog(nil), buf...), nil
	}
	onDisk, err := readPartition(path)
	if err != nil {
		return nil, fmt.Errorf("read spilled records: %w", err)
	}
	if len(onDisk) < spilled {
		return nil, fmt.Errorf("partition %s has %d records, expected at least %d", path, len(onDisk), spilled)
	}
	out := make([]models.RequestLog, 0, spilled+len(buf))
	out = append(out, onDisk[:spilled]...)
	return append(out, buf...), nil
}

// QueryRange returns the records of every day partition from start to end
// (inclusive, UTC days) in day order. Unreadable partitions are skipped.
func (l *Logger) QueryRange(ctx context.Context, start, end time.Time) ([]models.RequestLog, error) {
	var out []models.RequestLog
	last := dayStart(end)
	for d := dayStart(start); !d.After(last); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		day := d.Format(time.DateOnly)
		path := l.partitionPath(day)

		recs, err := l.readDay(day, path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				l.log.Warn("could not read partition", "file", path, "error", err)
			}
			continue
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (l *Logger) readDay(day, path string) ([]models.RequestLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if day == l.day {
		return partitionView(path, l.buf, l.spilled)
	}
	for _, p := range l.stale {
		if p.day == day {
			return partitionView(path, p.buf, p.spilled)
		}
	}
	return readPartition(path)
}

// Archive moves partitions last modified more than olderThanDays ago into the
// archive subdirectory, keeping their names. It returns the number moved.
func (l *Logger) Archive(olderThanDays int) (int, error) {
	dest := filepath.Join(l.dir, archiveDir)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return 0, fmt.Errorf("create archive dir: %w", err)
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return 0, fmt.Errorf("list log dir: %w", err)
	}

	cutoff := l.now().AddDate(0, 0, -olderThanDays)
	moved := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			l.log.Warn("stat partition failed", "file", name, "error", err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Rename(filepath.Join(l.dir, name), filepath.Join(dest, name)); err != nil {
			l.log.Warn("archive partition failed", "file", name, "error", err)
			continue
		}
		moved++
		l.log.Info("archived partition", "file", name)
	}
	return moved, nil
}

// Dir returns the partition directory.
func (l *Logger) Dir() string {
	return l.dir
}

func (l *Logger) partitionPath(day string) string {
	return filepath.Join(l.dir, filePrefix+day+fileSuffix)
}

func readPartition(path string) ([]models.RequestLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var recs []models.RequestLog
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return recs, nil
}

// writePartition replaces path atomically via a temp file in the same directory.
func writePartition(path string, recs []models.RequestLog) error {
	if recs == nil {
		recs = []models.RequestLog{}
	}
	data, err := json.MarshalIndent(recs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace partition: %w", err)
	}
	return nil
}

func dayOf(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

func dayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
