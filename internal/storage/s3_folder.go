package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pat-drk/schedsync/internal/events"
)

// S3Folder implements Folder over an S3 bucket prefix, for teams whose
// shared folder lives in object storage instead of a cloud-drive
// directory. Same eventual-consistency caveats apply.
type S3Folder struct {
	client *s3.Client
	bucket string
	prefix string
	logger *events.Logger
}

// NewS3Folder creates a folder over s3://bucket/prefix using ambient
// AWS credentials.
func NewS3Folder(ctx context.Context, bucket, prefix string, logger *events.Logger) (*S3Folder, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}

	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &S3Folder{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		logger: logger.WithField("component", "s3_folder"),
	}, nil
}

// List returns the entries under the folder prefix.
func (f *S3Folder) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry

	paginator := s3.NewListObjectsV2Paginator(f.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(f.bucket),
		Prefix: aws.String(f.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}

			name := strings.TrimPrefix(*obj.Key, f.prefix)
			if name == "" || strings.Contains(name, "/") {
				// The folder is flat; nested keys are not entries.
				continue
			}

			entries = append(entries, Entry{
				Name:    name,
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}

	return entries, nil
}

// Read retrieves an entry's contents.
func (f *S3Folder) Read(ctx context.Context, name string) ([]byte, error) {
	if err := validateEntryName(name); err != nil {
		return nil, err
	}

	result, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.prefix + name),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NoSuchKey") {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("s3 get entry: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read entry body: %w", err)
	}

	return data, nil
}

// Write creates or replaces an entry.
func (f *S3Folder) Write(ctx context.Context, name string, data []byte) error {
	if err := validateEntryName(name); err != nil {
		return err
	}

	f.logger.WithFields(map[string]interface{}{
		"name": name,
		"size": len(data),
	}).Debug("Writing folder entry")

	input := &s3.PutObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.prefix + name),
		Body:   bytes.NewReader(data),
	}
	if strings.HasSuffix(name, ".json") {
		input.ContentType = aws.String("application/json")
	}

	if _, err := f.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3 put entry: %w", err)
	}

	return nil
}

// Delete removes an entry. S3 treats deleting a missing key as success,
// which matches the folder contract.
func (f *S3Folder) Delete(ctx context.Context, name string) error {
	if err := validateEntryName(name); err != nil {
		return err
	}

	f.logger.WithField("name", name).Debug("Deleting folder entry")

	_, err := f.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(f.prefix + name),
	})
	if err != nil {
		return fmt.Errorf("s3 delete entry: %w", err)
	}

	return nil
}

func validateEntryName(name string) error {
	if name == "" {
		return fmt.Errorf("invalid entry name: empty")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid entry name %q: must be a plain filename", name)
	}
	return nil
}
