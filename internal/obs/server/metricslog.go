// Package server wires the observability components (C1-C10) into one
// process lifecycle.
package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gastown/gt/internal/obs/model"
)

// MetricsLog appends per-minute samples to an NDJSON file, rotated daily,
// grounded on internal/mrqueue.EventLogger's append-only-file pattern.
type MetricsLog struct {
	dir string
	mu  sync.Mutex
	day string
	f   *os.File
}

// NewMetricsLog returns a MetricsLog writing into dir (e.g. state_dir).
func NewMetricsLog(dir string) *MetricsLog {
	return &MetricsLog{dir: dir}
}

// Append writes sample as one NDJSON line, rotating to a new dated file
// when the day changes.
func (l *MetricsLog) Append(sample model.MetricsSample) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	day := sample.Timestamp.Format("2006-01-02")
	if day != l.day || l.f == nil {
		if l.f != nil {
			l.f.Close()
		}
		if err := os.MkdirAll(l.dir, 0o755); err != nil {
			return fmt.Errorf("creating metrics dir: %w", err)
		}
		path := filepath.Join(l.dir, fmt.Sprintf("metrics-%s.ndjson", day))
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("opening metrics log: %w", err)
		}
		l.f = f
		l.day = day
	}

	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshaling metrics sample: %w", err)
	}
	if _, err := l.f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing metrics sample: %w", err)
	}
	return nil
}

// Close releases the currently open log file handle, if any.
func (l *MetricsLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}

// ReadRecent reads every sample across every metrics-*.ndjson file in dir,
// tolerating a truncated trailing line in the most recent file.
func ReadRecent(dir string) ([]model.MetricsSample, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []model.MetricsSample
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var sample model.MetricsSample
			if err := json.Unmarshal(line, &sample); err != nil {
				continue // tolerate truncated trailing line
			}
			out = append(out, sample)
		}
		f.Close()
	}
	return out, nil
}
