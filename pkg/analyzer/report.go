package analyzer

import (
	"os"
	"path/filepath"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/traceclaw/pkg/openclaw"
	"github.com/voluzi/traceclaw/pkg/sample"
)

// Report file names written under the summary output directory.
const (
	SessionSummaryFile  = "session_summary.json"
	SessionsSummaryFile = "sessions_summary.json"
	TimelineFile        = "timeline.json"
	ActionTimelineFile  = "action_timeline.json"
)

// Report is the result of one analysis run.
type Report struct {
	Summary  SessionSummary      `json:"summary"`
	Sessions MultiSessionSummary `json:"sessions"`
	Timeline []TimelineEntry     `json:"-"`
	Actions  []ActionTimelineRow `json:"-"`
	Stats    ParseStats          `json:"parse_stats"`
}

// Analyze builds every view of the loaded trace data.
func Analyze(events []openclaw.Event, resources []sample.Sample, stats ParseStats, opts Options) Report {
	return Report{
		Summary:  SummarizeSession(events, resources, ""),
		Sessions: SummarizeMultiSession(GroupBySession(events, resources, opts.window())),
		Timeline: BuildTimeline(events, resources),
		Actions:  BuildActionTimeline(events, resources, opts),
		Stats:    stats,
	}
}

// Save writes the report files into dir and returns their paths.
func (r Report) Save(dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating %s", dir)
	}

	summary := struct {
		SessionSummary
		ParseStats ParseStats `json:"parse_stats"`
	}{r.Summary, r.Stats}

	files := []struct {
		name string
		v    interface{}
	}{
		{SessionSummaryFile, summary},
		{SessionsSummaryFile, r.Sessions},
		{TimelineFile, nonNil(r.Timeline)},
		{ActionTimelineFile, nonNil(r.Actions)},
	}

	var written []string
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := SaveJSON(path, f.v); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	log.WithFields(log.Fields{"dir": dir, "files": len(written)}).Debug("analysis reports written")
	return written, nil
}

// SaveJSON writes v as indented JSON to path, creating parent directories.
func SaveJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", path)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "encoding %s", filepath.Base(path))
	}
	return errors.Wrapf(os.WriteFile(path, append(b, '\n'), 0644), "writing %s", path)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
