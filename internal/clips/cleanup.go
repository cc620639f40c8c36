package clips

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/oszuidwest/drowsiguard/internal/eventlog"
	"github.com/oszuidwest/drowsiguard/internal/types"
	"github.com/oszuidwest/drowsiguard/internal/util"
)

// startCleanupScheduler starts the daily cleanup scheduler.
func (m *Manager) startCleanupScheduler() {
	m.wg.Go(func() {
		for {
			// Calculate duration until next 03:00
			now := time.Now()
			next := time.Date(now.Year(), now.Month(), now.Day(), 3, 0, 0, 0, now.Location())
			if now.After(next) {
				next = next.Add(24 * time.Hour)
			}

			slog.Info("cleanup scheduler: next run scheduled", "at", next.Format(time.DateTime))

			select {
			case <-time.After(next.Sub(now)):
				m.RunCleanup(time.Now())
			case <-m.cleanupStopCh:
				slog.Info("cleanup scheduler stopped")
				return
			}
		}
	})
}

// RunCleanup removes clips older than the retention period.
func (m *Manager) RunCleanup(now time.Time) {
	cfg := m.cfg.Snapshot()

	// Skip if retention is 0 (keep forever)
	if cfg.ClipRetentionDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -cfg.ClipRetentionDays)

	slog.Info("cleanup: starting daily clip cleanup", "retention_days", cfg.ClipRetentionDays)

	if cfg.ClipsToLocal() {
		deleted := cleanupLocalClips(cfg.ClipsPath, cutoff)
		m.logCleanup(deleted, types.StorageLocal)
	}

	if cfg.ClipsToS3() && cfg.ClipS3.IsConfigured() {
		deleted := cleanupS3Clips(&cfg.ClipS3, cutoff)
		m.logCleanup(deleted, types.StorageS3)
	}

	slog.Info("cleanup: daily clip cleanup completed")
}

func (m *Manager) logCleanup(deleted int, storage types.StorageMode) {
	if m.events == nil || deleted == 0 {
		return
	}
	m.events.LogClip(eventlog.CleanupCompleted, &eventlog.ClipDetails{
		FilesDeleted: deleted,
		StorageType:  string(storage),
	})
}

// cleanupLocalClips removes clip directories older than cutoff.
func cleanupLocalClips(root string, cutoff time.Time) int {
	if root == "" {
		return 0
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("cleanup: failed to read clip directory", "path", root, "error", err)
		}
		return 0
	}

	var deleted int
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || !strings.HasPrefix(name, clipPrefix) {
			continue
		}

		clipDate, ok := util.ExtractDateFromName(name)
		if !ok || !clipDate.Before(cutoff) {
			continue
		}

		dir := filepath.Join(root, name)
		if err := os.RemoveAll(dir); err != nil {
			slog.Warn("cleanup: failed to delete clip", "path", dir, "error", err)
			continue
		}
		deleted++
		slog.Debug("cleanup: deleted clip", "clip", name)
	}

	if deleted > 0 {
		slog.Info("cleanup: deleted local clips", "count", deleted)
	}
	return deleted
}

// cleanupS3Clips removes clip objects older than cutoff.
func cleanupS3Clips(cfg *types.S3Config, cutoff time.Time) int {
	client := createS3Client(cfg)

	ctx, cancel := context.WithTimeoutCause(
		context.Background(),
		5*time.Minute,
		errors.New("s3 cleanup timeout"),
	)
	defer cancel()

	var deleted int
	var continuationToken *string

	for {
		input := &s3.ListObjectsV2Input{
			Bucket: aws.String(cfg.Bucket),
			Prefix: aws.String(cfg.Prefix + clipPrefix),
		}
		if continuationToken != nil {
			input.ContinuationToken = continuationToken
		}

		output, err := client.ListObjectsV2(ctx, input)
		if err != nil {
			slog.Warn("cleanup: failed to list S3 objects", "bucket", cfg.Bucket, "error", err)
			return deleted
		}

		for _, obj := range output.Contents {
			key := aws.ToString(obj.Key)

			// Listing is limited to the clip prefix, so the first date is the clip date.
			clipDate, ok := util.ExtractDateFromName(strings.TrimPrefix(key, cfg.Prefix))
			if !ok || !clipDate.Before(cutoff) {
				continue
			}

			_, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(cfg.Bucket),
				Key:    obj.Key,
			})
			if err != nil {
				slog.Warn("cleanup: failed to delete S3 object", "key", key, "error", err)
				continue
			}
			deleted++
			slog.Debug("cleanup: deleted S3 object", "key", key)
		}

		if !aws.ToBool(output.IsTruncated) {
			break
		}
		continuationToken = output.NextContinuationToken
	}

	if deleted > 0 {
		slog.Info("cleanup: deleted S3 objects", "count", deleted)
	}
	return deleted
}
