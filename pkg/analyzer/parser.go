package analyzer

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/voluzi/traceclaw/pkg/eventlog"
	"github.com/voluzi/traceclaw/pkg/openclaw"
	"github.com/voluzi/traceclaw/pkg/sample"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 4 << 20

// FileKind tells how the records of a trace file are read.
type FileKind int

const (
	KindUnknown FileKind = iota
	// KindEvents is an event file written by the event logger or the log
	// follower. Every line is expected to be an event.
	KindEvents
	// KindResources holds persisted resource samples.
	KindResources
	// KindOpenClawLog is a raw OpenClaw log, where lines without an event
	// type are ordinary log output.
	KindOpenClawLog
)

func (k FileKind) String() string {
	switch k {
	case KindEvents:
		return "events"
	case KindResources:
		return "resources"
	case KindOpenClawLog:
		return "openclaw_log"
	default:
		return "unknown"
	}
}

func (k FileKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Classify decides the kind of a trace file. The file name is looked at
// first; when it is inconclusive the first non-blank line is sniffed.
func Classify(name string, firstLine []byte) FileKind {
	base := strings.ToLower(filepath.Base(name))
	switch {
	case strings.Contains(base, "resource"):
		return KindResources
	case strings.HasPrefix(base, eventlog.Prefix):
		return KindEvents
	case strings.Contains(base, "openclaw"):
		return KindOpenClawLog
	}

	line := bytes.TrimSpace(firstLine)
	if len(line) == 0 {
		return KindUnknown
	}
	var m map[string]interface{}
	if err := json.Unmarshal(line, &m); err != nil {
		return KindUnknown
	}
	if isResourceRecord(m) {
		return KindResources
	}
	if openclaw.EventType(m) != "" {
		if _, nested := m["payload"]; nested {
			return KindEvents
		}
		return KindOpenClawLog
	}
	return KindUnknown
}

func isResourceRecord(m map[string]interface{}) bool {
	if _, ok := m[sample.KeyCategory]; ok {
		return true
	}
	// legacy {"name", "value"} samples carry no event type key
	_, hasValue := m["value"].(float64)
	_, hasName := m["name"].(string)
	_, hasType := m["type"]
	_, hasEventType := m["event_type"]
	return hasValue && hasName && !hasType && !hasEventType
}

// IsTraceFile reports whether name looks like a JSONL trace file, plain or
// gzip compressed.
func IsTraceFile(name string) bool {
	name = strings.TrimSuffix(strings.ToLower(name), ".gz")
	return strings.HasSuffix(name, ".jsonl") || strings.HasSuffix(name, ".log")
}

// FileStats reports how one file was read.
type FileStats struct {
	Name    string   `json:"name"`
	Kind    FileKind `json:"kind"`
	Records int      `json:"records"`
	// Skipped counts malformed lines.
	Skipped int `json:"skipped"`
	// Ignored counts well-formed lines of an OpenClaw log that are not
	// events.
	Ignored int    `json:"ignored,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ParseStats collects per-file statistics of a LoadTraceDir run.
type ParseStats struct {
	Files        []FileStats `json:"files"`
	Unclassified []string    `json:"unclassified,omitempty"`
}

// Skipped is the total number of malformed lines.
func (s ParseStats) Skipped() int {
	n := 0
	for _, f := range s.Files {
		n += f.Skipped
	}
	return n
}

// LoadTraceDir reads every trace file of dir. Events and resources are each
// sorted by timestamp, keeping file then line order for equal timestamps.
// Malformed lines are skipped and counted; a missing directory yields no data.
func LoadTraceDir(dir string) ([]openclaw.Event, []sample.Sample, ParseStats, error) {
	var (
		events    []openclaw.Event
		resources []sample.Sample
		stats     ParseStats
	)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.WithField("dir", dir).Warn("trace directory does not exist")
			return nil, nil, stats, nil
		}
		return nil, nil, stats, errors.Wrapf(err, "reading trace directory %s", dir)
	}

	// ReadDir returns entries sorted by file name.
	for _, entry := range entries {
		if entry.IsDir() || !IsTraceFile(entry.Name()) {
			continue
		}
		fs := readFile(filepath.Join(dir, entry.Name()), &events, &resources)
		if fs.Kind == KindUnknown && fs.Error == "" {
			stats.Unclassified = append(stats.Unclassified, fs.Name)
			continue
		}
		stats.Files = append(stats.Files, fs)
	}

	slices.SortStableFunc(events, func(a, b openclaw.Event) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	slices.SortStableFunc(resources, func(a, b sample.Sample) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return events, resources, stats, nil
}

func readFile(path string, events *[]openclaw.Event, resources *[]sample.Sample) FileStats {
	fs := FileStats{Name: filepath.Base(path)}

	r, closeFn, err := open(path)
	if err != nil {
		log.WithError(err).WithField("file", fs.Name).Warn("skipping unreadable trace file")
		fs.Error = err.Error()
		return fs
	}
	defer closeFn()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if fs.Kind == KindUnknown {
			if fs.Kind = Classify(fs.Name, line); fs.Kind == KindUnknown {
				// keep sniffing past malformed lines
				if !json.Valid(line) {
					fs.Skipped++
					continue
				}
				return fs
			}
		}

		var m map[string]interface{}
		if err := json.Unmarshal(line, &m); err != nil {
			fs.Skipped++
			continue
		}

		switch fs.Kind {
		case KindResources:
			s, err := sample.FromRecord(m)
			if err != nil {
				fs.Skipped++
				continue
			}
			*resources = append(*resources, s)

		default:
			e, err := openclaw.FromMap(m)
			if errors.Is(err, openclaw.ErrNotEvent) && fs.Kind == KindOpenClawLog {
				fs.Ignored++
				continue
			}
			if err != nil {
				fs.Skipped++
				continue
			}
			*events = append(*events, e)
		}
		fs.Records++
	}
	if err := scanner.Err(); err != nil {
		log.WithError(err).WithField("file", fs.Name).Warn("trace file truncated")
		fs.Error = err.Error()
	}
	if fs.Kind == KindUnknown {
		fs.Kind = Classify(fs.Name, nil)
	}

	if fs.Skipped > 0 {
		log.WithFields(log.Fields{"file": fs.Name, "skipped": fs.Skipped}).Warn("skipped malformed trace lines")
	}
	return fs
}

func open(path string) (io.Reader, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return f, func() { f.Close() }, nil
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrap(err, "opening gzip stream")
	}
	return gz, func() {
		gz.Close()
		f.Close()
	}, nil
}
