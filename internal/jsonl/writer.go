package jsonl

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
	"k8s.io/utils/clock"
)

const dayLayout = "2006-01-02"

// DailyWriter appends newline-delimited JSON records to <dir>/<prefix>-<day>.jsonl,
// switching files when the UTC day changes. Each Write call issues a single
// append so a crash can truncate at most the batch being written.
type DailyWriter struct {
	dir    string
	prefix string
	clock  clock.PassiveClock

	mu   sync.Mutex
	day  string
	file *os.File
}

func NewDailyWriter(dir, prefix string, clk clock.PassiveClock) (*DailyWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating output directory %s", dir)
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &DailyWriter{dir: dir, prefix: prefix, clock: clk}, nil
}

// FileName returns the name of the file records written at the current
// instant go to.
func (w *DailyWriter) FileName() string {
	return FileName(w.prefix, w.clock.Now().UTC().Format(dayLayout))
}

// FileName builds the name of a day file.
func FileName(prefix, day string) string {
	return fmt.Sprintf("%s-%s.jsonl", prefix, day)
}

// Write encodes each record on its own line and appends them to the current
// day file.
func (w *DailyWriter) Write(records ...interface{}) error {
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return errors.Wrap(err, "encoding record")
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := w.current()
	if err != nil {
		return err
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return errors.Wrapf(err, "appending to %s", f.Name())
	}
	return nil
}

func (w *DailyWriter) current() (*os.File, error) {
	day := w.clock.Now().UTC().Format(dayLayout)
	if w.file != nil && w.day == day {
		return w.file, nil
	}
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}

	path := filepath.Join(w.dir, FileName(w.prefix, day))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	w.file, w.day = f, day
	return f, nil
}

func (w *DailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
