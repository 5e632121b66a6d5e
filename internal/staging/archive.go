// Copyright (c) 2025 Dropvault. All rights reserved.
// Use of this source code is governed by the Dropvault License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package staging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/zstd"
)

// Archiver copies a completed staging entry's assembled file to long-term
// object storage; the staging HTTP server calls it as soon as the entry's
// checksum has been verified.
type Archiver struct {
	bucket      string
	region      string
	prefix      string
	compression string
	uploader    *manager.Uploader
	logger      *slog.Logger
}

// NewArchiver builds an S3 archiver. With an empty endpoint/access key it
// resolves credentials and region from the ambient AWS chain (instance
// profile, env vars, shared config); set endpoint/accessKeyID/secretAccessKey
// to target a self-hosted S3-compatible backend (e.g. MinIO) instead.
// compression is "none" or "zstd"; zstd recompresses the assembled file
// before upload to cut archival storage cost.
func NewArchiver(ctx context.Context, bucket, region, prefix, endpoint, accessKeyID, secretAccessKey, compression string, logger *slog.Logger) (*Archiver, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if accessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for archival: %w", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return &Archiver{
		bucket:      bucket,
		region:      region,
		prefix:      prefix,
		compression: compression,
		uploader:    manager.NewUploader(client),
		logger:      logger,
	}, nil
}

// Archive uploads the assembled file for a completed staging entry to
// s3://bucket/prefix/id, optionally zstd-compressed.
func (a *Archiver) Archive(ctx context.Context, id, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening staged file for archival: %w", err)
	}
	defer f.Close()

	key := a.prefix + id
	var body io.Reader = f
	if a.compression == "zstd" {
		key += ".zst"
		compressed, err := compressZstd(f)
		if err != nil {
			return fmt.Errorf("compressing staged file for archival: %w", err)
		}
		body = bytes.NewReader(compressed)
	}

	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("uploading %s to s3://%s/%s: %w", id, a.bucket, key, err)
	}
	a.logger.Info("archived staging entry", "id", id, "bucket", a.bucket, "key", key)
	return nil
}

func compressZstd(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
