package export_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"devicelink/internal/export"
	"devicelink/internal/testsupport"
)

type fakeS3 struct {
	keys    []string
	bodies  []string
	objects map[string]bool
	deleted []string
	err     error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.keys = append(f.keys, *in.Bucket+"/"+*in.Key)
	f.bodies = append(f.bodies, string(body))
	if f.objects == nil {
		f.objects = make(map[string]bool)
	}
	f.objects[*in.Key] = true
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.err != nil {
		return nil, f.err
	}
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, aws.ToString(in.Prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	return out, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, obj := range in.Delete.Objects {
		delete(f.objects, aws.ToString(obj.Key))
		f.deleted = append(f.deleted, aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func TestPartName(t *testing.T) {
	if got := export.PartName(7); got != "part-000007.csv" {
		t.Fatalf("PartName got %q want %q", got, "part-000007.csv")
	}
}

func TestDirSinkWritesPartition(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	sink := export.NewDirSink(dir)
	loc, err := export.WritePartition(context.Background(), sink, 3,
		[]string{"report_id", "brand"}, [][]string{{"r1", "X, Y"}, {"r2", ""}})
	if err != nil {
		t.Fatalf("WritePartition: %v", err)
	}
	if loc != filepath.Join(dir, "part-000003.csv") {
		t.Fatalf("location got %q", loc)
	}
	records := testsupport.ReadCSV(t, loc)
	if len(records) != 3 || records[1][1] != "X, Y" || records[2][1] != "" {
		t.Fatalf("unexpected records %q", records)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the partition in %s, got %d entries", dir, len(entries))
	}
}

func TestS3SinkUploadsUnderPrefix(t *testing.T) {
	client := &fakeS3{}
	sink := export.NewS3Sink(client, "bucket", "devicelink/run")
	loc, err := export.WritePartition(context.Background(), sink, 0, []string{"a"}, [][]string{{"1"}})
	if err != nil {
		t.Fatalf("WritePartition: %v", err)
	}
	if loc != "s3://bucket/devicelink/run/part-000000.csv" {
		t.Fatalf("location got %q", loc)
	}
	if len(client.keys) != 1 || client.keys[0] != "bucket/devicelink/run/part-000000.csv" {
		t.Fatalf("unexpected keys %v", client.keys)
	}
	if client.bodies[0] != "a\n1\n" {
		t.Fatalf("body got %q", client.bodies[0])
	}
}

func TestS3SinkReportsFailure(t *testing.T) {
	sink := export.NewS3Sink(&fakeS3{err: errors.New("denied")}, "bucket", "")
	if _, err := export.WritePartition(context.Background(), sink, 1, []string{"a"}, nil); err == nil {
		t.Fatal("expected upload error")
	}
}

func TestNewSinkUsesConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithExportDir())
	sink, err := export.NewSink(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	if _, ok := sink.(*export.DirSink); !ok {
		t.Fatalf("expected DirSink, got %T", sink)
	}

	cfg.Export.S3Bucket = "bucket"
	cfg.Export.S3Endpoint = "http://127.0.0.1:9000"
	cfg.S3.AccessKey = "key"
	cfg.S3.SecretKey = "secret"
	sink, err = export.NewSink(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewSink s3: %v", err)
	}
	if got := sink.Location("part-000000.csv"); got != "s3://bucket/devicelink/part-000000.csv" {
		t.Fatalf("location got %q", got)
	}
}

func TestDirSinkClearRemovesOnlyPartitions(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "out")
	sink := export.NewDirSink(dir)

	if n, err := sink.Clear(ctx); err != nil || n != 0 {
		t.Fatalf("Clear on missing dir got %d, %v want 0, nil", n, err)
	}
	for chunk := range 3 {
		if _, err := export.WritePartition(ctx, sink, chunk, []string{"a"}, [][]string{{"1"}}); err != nil {
			t.Fatalf("WritePartition: %v", err)
		}
	}
	readme := filepath.Join(dir, "README.txt")
	if err := os.WriteFile(readme, []byte("keep"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	n, err := sink.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 3 {
		t.Fatalf("removed got %d want 3", n)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "README.txt" {
		t.Fatalf("unexpected entries after Clear: %v", entries)
	}
}

func TestS3SinkClearStaysUnderPrefix(t *testing.T) {
	ctx := context.Background()
	client := &fakeS3{objects: map[string]bool{
		"exports/part-000000.csv":        true,
		"exports/part-000001.csv":        true,
		"exports/notes.txt":              true,
		"exports/nested/part-000000.csv": true,
		"other/part-000000.csv":          true,
	}}
	sink := export.NewS3Sink(client, "bucket", "exports")

	n, err := sink.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 2 {
		t.Fatalf("removed got %d want 2", n)
	}
	sort.Strings(client.deleted)
	want := []string{"exports/part-000000.csv", "exports/part-000001.csv"}
	if strings.Join(client.deleted, ",") != strings.Join(want, ",") {
		t.Fatalf("deleted got %v want %v", client.deleted, want)
	}
	for _, keep := range []string{"exports/notes.txt", "exports/nested/part-000000.csv", "other/part-000000.csv"} {
		if !client.objects[keep] {
			t.Fatalf("expected %s to survive Clear", keep)
		}
	}
}
