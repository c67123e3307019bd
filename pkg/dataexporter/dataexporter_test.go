package dataexporter

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Target
		wantErr bool
	}{
		{"file", "file:/tmp/out", Target{Provider: File, Path: "/tmp/out.tar.gz"}, false},
		{"bare path", "out.tar.gz", Target{Provider: File, Path: "out.tar.gz"}, false},
		{"gcs", "gcs:bucket/traces/run-1", Target{Provider: GCS, Bucket: "bucket", Path: "traces/run-1.tar.gz"}, false},
		{"gcs url form", "gcs://bucket/run", Target{Provider: GCS, Bucket: "bucket", Path: "run.tar.gz"}, false},
		{"gcs without object", "gcs:bucket", Target{}, true},
		{"empty file", "file:", Target{}, true},
		{"unsupported provider", "s3:bucket/x", Target{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTarget(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTarget() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTarget() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestTargetString(t *testing.T) {
	target := Target{Provider: GCS, Bucket: "b", Path: "x.tar.gz"}
	if got := target.String(); got != "gs://b/x.tar.gz" {
		t.Errorf("String() = %q", got)
	}
}

func TestFromProvider(t *testing.T) {
	if _, err := FromProvider(context.Background(), Provider("unsupported")); err == nil {
		t.Error("expected error for unsupported provider")
	}
	exp, err := FromProvider(context.Background(), File)
	if err != nil {
		t.Fatalf("FromProvider() error = %v", err)
	}
	if exp.Provider() != File {
		t.Errorf("Provider() = %s, want %s", exp.Provider(), File)
	}
	// GCS needs credentials, so it is not exercised here
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()

	subDir := filepath.Join(tmpDir, "subdir")
	_ = os.WriteFile(filepath.Join(tmpDir, "file1.txt"), []byte("hello"), 0644)
	_ = os.WriteFile(filepath.Join(tmpDir, "file2.txt"), []byte("world!!!"), 0644)
	_ = os.MkdirAll(subDir, 0755)
	_ = os.WriteFile(filepath.Join(subDir, "file3.txt"), []byte("nested content"), 0644)

	size, err := GetDirSize(tmpDir)
	if err != nil {
		t.Fatalf("GetDirSize() error = %v", err)
	}
	if size != 27 {
		t.Errorf("GetDirSize() = %d, want 27", size)
	}

	size, err = GetDirSize(t.TempDir())
	if err != nil {
		t.Fatalf("GetDirSize() error = %v", err)
	}
	if size != 0 {
		t.Errorf("GetDirSize() = %d, want 0 for empty directory", size)
	}
}

func readArchive(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	gzReader, err := gzip.NewReader(r)
	if err != nil {
		t.Fatalf("failed to create gzip reader: %v", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	found := make(map[string]string)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("failed to read tar: %v", err)
		}
		content, err := io.ReadAll(tarReader)
		if err != nil {
			t.Fatalf("failed to read tar content: %v", err)
		}
		found[header.Name] = string(content)
	}
	return found
}

func writeTree(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for relPath, content := range files {
		fullPath := filepath.Join(dir, relPath)
		_ = os.MkdirAll(filepath.Dir(fullPath), 0755)
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}
	}
}

func TestCompressTarGz(t *testing.T) {
	tmpDir := t.TempDir()
	testContent := map[string]string{
		"events-2026-03-01.jsonl":    `{"event_type":"tool.call"}`,
		"summary/timeline.json":      "[]",
		"resources-2026-03-01.jsonl": `{"category":"system.cpu.usage_percent"}`,
	}
	writeTree(t, tmpDir, testContent)

	var buf bytes.Buffer
	if err := compressTarGz(context.Background(), tmpDir, &buf, nil); err != nil {
		t.Fatalf("compressTarGz() error = %v", err)
	}

	found := readArchive(t, &buf)
	for relPath, expectedContent := range testContent {
		actualContent, ok := found[relPath]
		if !ok {
			t.Errorf("missing file in archive: %s", relPath)
			continue
		}
		if actualContent != expectedContent {
			t.Errorf("file %s content = %q, want %q", relPath, actualContent, expectedContent)
		}
	}
}

func TestCompressTarGz_Filter(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"events.jsonl": "a",
		"notes.txt":    "b",
	})

	var buf bytes.Buffer
	err := compressTarGz(context.Background(), tmpDir, &buf, func(rel string) bool {
		return strings.HasSuffix(rel, ".jsonl")
	})
	if err != nil {
		t.Fatalf("compressTarGz() error = %v", err)
	}

	found := readArchive(t, &buf)
	if len(found) != 1 || found["events.jsonl"] != "a" {
		t.Errorf("unexpected archive content: %v", found)
	}
}

func TestCompressTarGz_EmptyDir(t *testing.T) {
	var buf bytes.Buffer
	if err := compressTarGz(context.Background(), t.TempDir(), &buf, nil); err != nil {
		t.Fatalf("compressTarGz() error = %v", err)
	}
	if found := readArchive(t, &buf); len(found) != 0 {
		t.Errorf("expected empty archive, got %v", found)
	}
}

func TestCompressTarGz_NonExistentDir(t *testing.T) {
	var buf bytes.Buffer
	if err := compressTarGz(context.Background(), "/nonexistent/dir", &buf, nil); err == nil {
		t.Error("expected error for non-existent directory")
	}
}

func TestFileExporter(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"events-2026-03-01.jsonl": strings.Repeat("x", 1024)})

	target, err := ParseTarget("file:" + filepath.Join(t.TempDir(), "out", "trace"))
	if err != nil {
		t.Fatalf("ParseTarget() error = %v", err)
	}

	size, err := (&FileExporter{}).Export(context.Background(), src, target, WithReportPeriod(time.Millisecond))
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if size == 0 {
		t.Error("Export() reported an empty archive")
	}

	f, err := os.Open(target.Path)
	if err != nil {
		t.Fatalf("archive not written: %v", err)
	}
	defer f.Close()

	info, _ := f.Stat()
	if uint64(info.Size()) != size.Bytes() {
		t.Errorf("archive size = %d, reported %d", info.Size(), size.Bytes())
	}
	if found := readArchive(t, f); len(found["events-2026-03-01.jsonl"]) != 1024 {
		t.Errorf("unexpected archive content: %v", found)
	}

	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(target.Path), ".*"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}

func TestFileExporter_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	_ = os.WriteFile(file, []byte("x"), 0644)

	_, err := (&FileExporter{}).Export(context.Background(), file, Target{Provider: File, Path: file + ".tar.gz"})
	if err == nil {
		t.Error("expected error when exporting a regular file")
	}
}

func TestExportOptions(t *testing.T) {
	opts := newExportOptions(nil)
	if opts.ChunkSize.String() != "16MB" {
		t.Errorf("default ChunkSize = %s, want 16MB", opts.ChunkSize.String())
	}
	if opts.BufferSize.String() != "1MB" {
		t.Errorf("default BufferSize = %s, want 1MB", opts.BufferSize.String())
	}
	if opts.ReportPeriod != time.Second {
		t.Errorf("default ReportPeriod = %v, want %v", opts.ReportPeriod, time.Second)
	}

	opts = newExportOptions([]ExportOption{
		WithChunkSize("8MB"),
		WithBufferSize("64KB"),
		WithReportPeriod(time.Minute),
		WithFilter(func(string) bool { return false }),
	})
	if opts.ChunkSize.String() != "8MB" || opts.BufferSize.String() != "64KB" {
		t.Errorf("sizes not applied: %s %s", opts.ChunkSize, opts.BufferSize)
	}
	if opts.ReportPeriod != time.Minute || opts.Filter == nil {
		t.Error("options not applied")
	}
}
