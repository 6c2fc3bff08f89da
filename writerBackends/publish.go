package writerbackends

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"m3u8conv/job"
	"m3u8conv/logger"
)

// Publish copies the file at filePath to the target described by accessInfo["type"].
// objectName is the name the file gets at the destination.
func Publish(ctx context.Context, accessInfo map[string]string, filePath, objectName string) error {
	reader, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filepath.Base(filePath), err)
	}
	defer reader.Close()

	return write(ctx, accessInfo, reader, objectName)
}

func write(ctx context.Context, accessInfo map[string]string, reader io.Reader, objectName string) error {
	switch backendType := accessInfo["type"]; backendType {
	case "directServe":
		if err := UploadToDirectServe(ctx, accessInfo, reader, objectName); err != nil {
			return fmt.Errorf("failed to upload to direct serve: %w", err)
		}
	case "s3":
		if err := UploadToS3WithCreds(ctx, accessInfo, reader, objectName); err != nil {
			return fmt.Errorf("failed to upload to S3: %w", err)
		}
	case "gcs":
		if err := UploadToGCSWithJSON(ctx, accessInfo, reader, objectName); err != nil {
			return fmt.Errorf("failed to upload to GCS: %w", err)
		}
	case "sftp":
		if err := UploadToSFTPWithCreds(ctx, accessInfo, reader, objectName); err != nil {
			return fmt.Errorf("failed to upload to SFTP: %w", err)
		}
	default:
		return fmt.Errorf("unknown backend type: %s", backendType)
	}
	return nil
}

// objectKey joins an optional prefix from accessInfo with the object name
func objectKey(prefix, objectName string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return objectName
	}
	return prefix + "/" + objectName
}

// Publisher pushes finished artifacts to the targets a job asked for
type Publisher struct {
	// Lookup resolves a publish key to its stored credentials
	Lookup func(key string) (map[string]string, error)
	// DirectServeDir is the server-controlled root for directServe targets
	DirectServeDir string
}

// Hook is a job.FinishHook that publishes completed artifacts
func (p *Publisher) Hook(ctx context.Context, rec job.Record) {
	if rec.Status != job.StatusCompleted || rec.Artifact == nil || len(rec.PublishKeys) == 0 {
		return
	}

	for _, key := range rec.PublishKeys {
		accessInfo, err := p.Lookup(key)
		if err != nil {
			logger.Errorf("Job %s: failed to load publish target: %v", rec.ID, err)
			continue
		}

		info := make(map[string]string, len(accessInfo)+1)
		for k, v := range accessInfo {
			info[k] = v
		}
		if info["type"] == "directServe" {
			info["baseDir"] = p.DirectServeDir
		}

		if err := Publish(ctx, info, rec.OutputPath, rec.Artifact.Filename); err != nil {
			logger.Errorf("Job %s: publish to %s failed: %v", rec.ID, info["type"], err)
			// Don't fail the job for publishing errors
			continue
		}
		logger.Infof("Job %s: published %s to %s", rec.ID, rec.Artifact.Filename, info["type"])
	}
}
