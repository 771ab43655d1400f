package preflight

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sys/unix"

	"devicelink/internal/config"
	"devicelink/internal/relation"
)

// HeadBucketAPI is the slice of the S3 client the bucket check needs.
type HeadBucketAPI interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckInput opens an input and reads its header.
func CheckInput(ctx context.Context, name string, in config.Input) Result {
	if in.Path == "" {
		return Result{Name: name, Detail: "path not set"}
	}
	if err := unix.Access(in.Path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", in.Path, err)}
	}
	src, err := relation.Open(in)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", in.Path, err)}
	}
	if c, ok := src.(io.Closer); ok {
		defer c.Close()
	}
	header, err := src.Columns(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", in.Path, err)}
	}
	format := in.Format
	if format == "" {
		format = relation.DetectFormat(in.Path)
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s, %d columns)", in.Path, format, len(header))}
}

// CheckBucket verifies the export bucket exists and the credentials reach it.
// It uses a 10-second timeout and a single attempt.
func CheckBucket(ctx context.Context, client HeadBucketAPI, bucket string) Result {
	const name = "Export bucket"
	if bucket == "" {
		return Result{Name: name, Detail: "missing bucket"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := client.HeadBucket(checkCtx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}, func(o *s3.Options) {
		o.RetryMaxAttempts = 1
	})
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", bucket, summarizeError(err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", bucket)}
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "unreachable (timeout)"
	}
	return err.Error()
}
