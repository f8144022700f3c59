// Package storage provides S3-compatible object storage for database backups.
package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/Saul-Punybz/regionwatch/internal/config"
)

const backupPrefix = "backups/"

// ErrNotConfigured is returned by operations that need a bucket when no S3
// endpoint is set.
var ErrNotConfigured = errors.New("storage: not configured")

// Client wraps an S3-compatible object storage client.
type Client struct {
	s3     *s3.Client
	bucket string
	now    func() time.Time
}

// BackupObject describes one stored backup.
type BackupObject struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// NewClient creates a new S3-compatible storage client for any S3-compatible
// endpoint (path-style addressing).
func NewClient(ctx context.Context, cfg config.S3Config) (*Client, error) {
	if cfg.Endpoint == "" {
		slog.Warn("storage: S3 endpoint not configured, backups disabled")
		return &Client{bucket: cfg.Bucket, now: time.Now}, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &Client{
		s3:     client,
		bucket: cfg.Bucket,
		now:    time.Now,
	}, nil
}

// Configured returns true if the S3 client has a valid connection configured.
func (c *Client) Configured() bool {
	return c.s3 != nil
}

// BackupKey returns the object key for a backup taken at t.
func BackupKey(t time.Time) string {
	return backupPrefix + "regionwatch_backup_" + t.UTC().Format("20060102_150405") + ".json.gz"
}

// StoreBackup gzip-compresses data and uploads it under a timestamped key.
// The SHA-256 of the uncompressed data is stored as object metadata.
func (c *Client) StoreBackup(ctx context.Context, data []byte) (string, error) {
	if c.s3 == nil {
		return "", ErrNotConfigured
	}

	body, err := gzipCompress(data)
	if err != nil {
		return "", fmt.Errorf("storage: compress backup: %w", err)
	}

	key := BackupKey(c.now())
	_, err = c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          &c.bucket,
		Key:             &key,
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
		Metadata:        map[string]string{"sha256": sha256sum(data)},
	})
	if err != nil {
		return "", fmt.Errorf("storage: upload %s: %w", key, err)
	}

	slog.Info("storage: backup uploaded", "key", key, "raw", len(data), "compressed", len(body))
	return key, nil
}

// ListBackups returns the stored backups, newest first.
func (c *Client) ListBackups(ctx context.Context) ([]BackupObject, error) {
	if c.s3 == nil {
		return nil, ErrNotConfigured
	}

	var out []BackupObject
	p := s3.NewListObjectsV2Paginator(c.s3, &s3.ListObjectsV2Input{
		Bucket: &c.bucket,
		Prefix: aws.String(backupPrefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage: list backups: %w", err)
		}
		for _, obj := range page.Contents {
			b := BackupObject{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				b.LastModified = *obj.LastModified
			}
			out = append(out, b)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// PruneBackups deletes all but the keep newest backups and returns the keys
// removed.
func (c *Client) PruneBackups(ctx context.Context, keep int) ([]string, error) {
	backups, err := c.ListBackups(ctx)
	if err != nil {
		return nil, err
	}

	var removed []string
	for _, b := range expiredBackups(backups, keep) {
		key := b.Key
		if _, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &c.bucket, Key: &key}); err != nil {
			return removed, fmt.Errorf("storage: delete %s: %w", key, err)
		}
		removed = append(removed, key)
		slog.Info("storage: old backup removed", "key", key)
	}
	return removed, nil
}

// FetchBackup downloads and decompresses one backup.
func (c *Client) FetchBackup(ctx context.Context, key string) ([]byte, error) {
	if c.s3 == nil {
		return nil, ErrNotConfigured
	}
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &c.bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", key, err)
	}
	if !strings.HasSuffix(key, ".gz") {
		return data, nil
	}
	return gzipDecompress(data)
}

// sortNewestFirst orders by modification time, then by key; backup keys embed
// a sortable timestamp.
func sortNewestFirst(b []BackupObject) {
	sort.Slice(b, func(i, j int) bool {
		if !b[i].LastModified.Equal(b[j].LastModified) {
			return b[i].LastModified.After(b[j].LastModified)
		}
		return b[i].Key > b[j].Key
	})
}

// expiredBackups returns the backups beyond the keep newest. b must already be
// sorted newest first.
func expiredBackups(b []BackupObject, keep int) []BackupObject {
	if keep < 1 {
		keep = 1
	}
	if len(b) <= keep {
		return nil
	}
	return b[keep:]
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
