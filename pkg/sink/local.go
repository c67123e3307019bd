package sink

import (
	"context"

	"k8s.io/utils/clock"

	"github.com/voluzi/traceclaw/internal/jsonl"
	"github.com/voluzi/traceclaw/pkg/collector"
	"github.com/voluzi/traceclaw/pkg/sample"
)

// ResourcePrefix names the daily resource files: resources-YYYY-MM-DD.jsonl.
const ResourcePrefix = "resources"

// Local appends every sample as one JSON line to a file named by day. A
// failed append drops the batch for this sink only. Records are never
// rewritten, so a retry may duplicate lines.
type Local struct {
	writer *jsonl.DailyWriter
}

var _ collector.Sink = (*Local)(nil)

func NewLocal(dir string, clk clock.PassiveClock) (*Local, error) {
	w, err := jsonl.NewDailyWriter(dir, ResourcePrefix, clk)
	if err != nil {
		return nil, err
	}
	return &Local{writer: w}, nil
}

func (l *Local) Name() string {
	return "local"
}

func (l *Local) Export(_ context.Context, batch sample.Batch) error {
	records := make([]interface{}, len(batch))
	for i, s := range batch {
		records[i] = s.Record()
	}
	return l.writer.Write(records...)
}

// FileName is the file the next batch is appended to.
func (l *Local) FileName() string {
	return l.writer.FileName()
}

func (l *Local) Close() error {
	return l.writer.Close()
}
