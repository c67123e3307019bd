package dataexporter

import (
	"context"
	"fmt"
	"strings"

	"github.com/c2h5oh/datasize"
)

type Provider string

const (
	File Provider = "file"
	GCS  Provider = "gcs"
)

// Exporter ships a tar.gz archive of a trace directory to a destination.
type Exporter interface {
	Provider() Provider
	Export(ctx context.Context, dir string, target Target, opts ...ExportOption) (datasize.ByteSize, error)
}

// Target is a parsed export destination. For files Path is the archive
// path; for GCS Bucket and Path name the object.
type Target struct {
	Provider Provider
	Bucket   string
	Path     string
}

func (t Target) String() string {
	if t.Provider == GCS {
		return fmt.Sprintf("gs://%s/%s", t.Bucket, t.Path)
	}
	return t.Path
}

// ParseTarget reads "file:PATH" or "gcs:BUCKET/OBJECT". A value without a
// provider prefix is a file path. Archive names always end in .tar.gz.
func ParseTarget(s string) (Target, error) {
	provider, rest, found := strings.Cut(s, ":")
	if !found {
		provider, rest = string(File), s
	}

	var t Target
	switch Provider(provider) {
	case File:
		t = Target{Provider: File, Path: rest}
	case GCS:
		rest = strings.TrimPrefix(rest, "//")
		bucket, object, _ := strings.Cut(rest, "/")
		if bucket == "" || object == "" {
			return Target{}, fmt.Errorf("gcs target must be gcs:BUCKET/OBJECT, got %q", s)
		}
		t = Target{Provider: GCS, Bucket: bucket, Path: object}
	default:
		return Target{}, fmt.Errorf("unsupported provider: %s", provider)
	}

	if t.Path == "" {
		return Target{}, fmt.Errorf("empty export target %q", s)
	}
	if !strings.HasSuffix(t.Path, ".tar.gz") {
		t.Path += ".tar.gz"
	}
	return t, nil
}

func FromProvider(ctx context.Context, p Provider) (Exporter, error) {
	switch p {
	case File:
		return &FileExporter{}, nil
	case GCS:
		return NewGcsExporter(ctx)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", p)
	}
}
