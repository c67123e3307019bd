package dataexporter

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/c2h5oh/datasize"
	log "github.com/sirupsen/logrus"
)

type progressReader struct {
	r            io.Reader
	bytesCounter *atomic.Int64
}

func newReaderWithBytesCounter(r io.Reader, bytesCounter *atomic.Int64) *progressReader {
	return &progressReader{
		r:            r,
		bytesCounter: bytesCounter,
	}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	pr.bytesCounter.Add(int64(n))
	return n, err
}

// reportProgress logs the archived byte count every period until ctx is
// done. Nothing is logged while the count does not move.
func reportProgress(ctx context.Context, period time.Duration, written *atomic.Int64, dirSize datasize.ByteSize, target string) {
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var last int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := written.Load(); n != last {
				log.WithFields(log.Fields{
					"compressed": datasize.ByteSize(n).HumanReadable(),
					"dir-size":   dirSize.HumanReadable(),
					"target":     target,
				}).Info("exporting trace directory")
				last = n
			}
		}
	}
}
