package usage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/MarcosDelSer/laya-backbone-sub001/internal/models"
	"github.com/MarcosDelSer/laya-backbone-sub001/internal/utils"
)

// ArchiveSink receives persisted usage records for long-term retention
// outside the queryable store. Writes happen on the worker goroutine,
// never on the request path.
type ArchiveSink interface {
	WriteBatch(ctx context.Context, records []*models.UsageLogRecord) error
	Close() error
}

// NoopSink discards batches. Used when archiving is not configured.
type NoopSink struct{}

func (NoopSink) WriteBatch(ctx context.Context, records []*models.UsageLogRecord) error {
	return nil
}

func (NoopSink) Close() error { return nil }

const (
	defaultArchiveMaxSize  = 10 << 20 // bytes per file before rotation
	defaultArchiveMaxFiles = 10
)

// FileArchiver appends usage records to JSON Lines files with
// size-based rotation.
type FileArchiver struct {
	fileTemplate string
	maxSize      int64
	maxFiles     int

	mu          sync.Mutex
	file        *os.File
	writer      *bufio.Writer
	currentSize int64
}

// NewFileArchiver creates an archiver writing usage-<timestamp>.jsonl
// files under dir.
func NewFileArchiver(dir string, maxSize int64, maxFiles int) (*FileArchiver, error) {
	if maxSize <= 0 {
		maxSize = defaultArchiveMaxSize
	}
	if maxFiles <= 0 {
		maxFiles = defaultArchiveMaxFiles
	}

	a := &FileArchiver{
		fileTemplate: filepath.Join(dir, "usage-%s.jsonl"),
		maxSize:      maxSize,
		maxFiles:     maxFiles,
	}
	if err := a.openFile(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *FileArchiver) newFileName() string {
	timestamp := time.Now().UTC().Format("20060102150405")
	return fmt.Sprintf(a.fileTemplate, timestamp)
}

// openFile opens (or creates) the active archive file and prepares the
// buffered writer. Callers hold the mutex except during construction.
func (a *FileArchiver) openFile() error {
	name := a.newFileName()
	if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return fmt.Errorf("failed to create archive directory: %w", err)
	}

	file, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return err
	}

	a.file = file
	a.writer = bufio.NewWriter(file)
	a.currentSize = fi.Size()
	return nil
}

// rotateIfNeeded switches to a fresh file when adding n bytes would
// cross the size limit. Called with the mutex held.
func (a *FileArchiver) rotateIfNeeded(n int) error {
	if a.currentSize+int64(n) < a.maxSize {
		return nil
	}

	if err := a.writer.Flush(); err != nil {
		return err
	}
	if err := a.file.Close(); err != nil {
		return err
	}
	return a.openFile()
}

// cleanupOldFiles removes the oldest rotated files beyond maxFiles.
func (a *FileArchiver) cleanupOldFiles() {
	pattern := fmt.Sprintf(a.fileTemplate, "*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return
	}

	sort.Slice(matches, func(i, j int) bool {
		fi, err1 := os.Stat(matches[i])
		fj, err2 := os.Stat(matches[j])
		if err1 != nil || err2 != nil {
			return false
		}
		return fi.ModTime().Before(fj.ModTime())
	})

	excess := len(matches) - a.maxFiles
	for i := 0; i < excess; i++ {
		_ = os.Remove(matches[i])
	}
}

// WriteBatch appends one JSON line per record and flushes.
func (a *FileArchiver) WriteBatch(ctx context.Context, records []*models.UsageLogRecord) error {
	if len(records) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		line := append(data, '\n')

		if err := a.rotateIfNeeded(len(line)); err != nil {
			return fmt.Errorf("archive rotation failed: %w", err)
		}
		if _, err := a.writer.Write(line); err != nil {
			return fmt.Errorf("archive write failed: %w", err)
		}
		a.currentSize += int64(len(line))
	}

	if err := a.writer.Flush(); err != nil {
		return fmt.Errorf("archive flush failed: %w", err)
	}
	a.cleanupOldFiles()
	return nil
}

// Close flushes and closes the active file.
func (a *FileArchiver) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file == nil {
		return nil
	}
	if err := a.writer.Flush(); err != nil {
		return err
	}
	return a.file.Close()
}

// S3Archiver uploads each batch as one JSON Lines object, partitioned
// by date.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	source string
	logger *utils.Logger
}

// NewS3Archiver creates an archiver uploading to the given bucket. The
// source string distinguishes instances writing to the same bucket and
// defaults to the hostname.
func NewS3Archiver(ctx context.Context, bucket, region, prefix, source string) (*S3Archiver, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if source == "" {
		source, err = os.Hostname()
		if err != nil {
			source = "llmproxy"
		}
	}

	return &S3Archiver{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		source: source,
		logger: utils.NewLogger("s3-archiver"),
	}, nil
}

// WriteBatch uploads the batch as one object.
// Key format: <prefix>/2025/11/30/<source>-20251130-143022-123456789.jsonl
func (a *S3Archiver) WriteBatch(ctx context.Context, records []*models.UsageLogRecord) error {
	if len(records) == 0 {
		return nil
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("%04d/%02d/%02d/%s-%s-%d.jsonl",
		now.Year(), now.Month(), now.Day(),
		a.source, now.Format("20060102-150405"), now.Nanosecond())
	if a.prefix != "" {
		key = a.prefix + "/" + key
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			a.logger.Error("failed to encode usage record", "error", err)
			continue
		}
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload usage batch to S3: %w", err)
	}

	a.logger.Info("archived usage batch", "key", key, "count", len(records), "bytes", buf.Len())
	return nil
}

// Close is a no-op; the S3 client holds no resources needing release.
func (a *S3Archiver) Close() error {
	return nil
}
