package worker

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectPutter is the part of the S3
// client used to upload signatures.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// parseS3URL splits an s3://bucket/key output into
// its bucket and key, ok is false for any other
// kind of output.
func parseS3URL(output string) (bucket, key string, ok bool, err error) {
	if !strings.HasPrefix(output, "s3://") {
		return "", "", false, nil
	}

	parsed, err := url.Parse(output)
	if err != nil {
		return "", "", true, fmt.Errorf("parse S3 URL: %w", err)
	}

	bucket, key = parsed.Host, strings.TrimPrefix(parsed.Path, "/")
	if bucket == "" || key == "" {
		return "", "", true, fmt.Errorf("S3 URL %q must name a bucket and key", output)
	}

	return bucket, key, true, nil
}

func (worker *Worker) writeOutput(ctx context.Context, data []byte) error {
	bucket, key, isS3, err := parseS3URL(worker.target.Output)
	switch {
	case err != nil:
		return err

	case isS3:
		return worker.uploadOutput(ctx, bucket, key, data)

	default:
		return os.WriteFile(worker.target.Output, data, 0644)
	}
}

func (worker *Worker) uploadOutput(ctx context.Context, bucket, key string, data []byte) error {
	if worker.putter == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}

		worker.putter = s3.NewFromConfig(cfg)
	}

	worker.logger.Debug().Str("bucket", bucket).Str("key", key).Int("size", len(data)).Msg("Uploading signature to S3")
	_, err := worker.putter.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}

	return nil
}
