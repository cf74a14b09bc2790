// Package archive mirrors raw source-asset payloads to S3 cold storage
// once they have been processed, keeping the hot store (Postgres or
// SQLite) lean while preserving the full fetched history for replay
// and audit.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/sourcingengine/core/pkg/sourcing/contracts"
)

// Config configures the S3-backed archiver.
type Config struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint, for MinIO/LocalStack in dev
	Prefix   string
}

// Archiver uploads raw source-asset payloads to S3 and returns the
// reference string stored back on the asset row.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// New builds an Archiver from cfg.
func New(ctx context.Context, cfg Config) (*Archiver, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("archive: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Archiver{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// Archive uploads asset's raw payload and returns the S3 key used,
// the value callers persist as SourceAsset.ArchiveRef.
func (a *Archiver) Archive(ctx context.Context, asset contracts.SourceAsset) (string, error) {
	data, err := json.Marshal(asset.RawPayload)
	if err != nil {
		return "", fmt.Errorf("archive: marshal asset %d payload: %w", asset.ID, err)
	}

	key := a.key(asset)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("archive: put asset %d: %w", asset.ID, err)
	}
	return key, nil
}

// Fetch retrieves a previously archived payload by its stored
// reference, used when an operator needs to replay history that has
// aged out of the hot store.
func (a *Archiver) Fetch(ctx context.Context, ref string) (map[string]any, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: get %s: %w", ref, err)
	}
	defer result.Body.Close()

	var payload map[string]any
	if err := json.NewDecoder(result.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("archive: decode %s: %w", ref, err)
	}
	return payload, nil
}

func (a *Archiver) key(asset contracts.SourceAsset) string {
	return fmt.Sprintf("%s%s/%s/%d.json", a.prefix, asset.SourceType, asset.ExternalID, asset.ID)
}
