package writerbackends

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"m3u8conv/logger"
)

// UploadToDirectServe writes content under baseDir/folder on the local file system,
// where the HTTP server serves it directly.
func UploadToDirectServe(ctx context.Context, accessInfo map[string]string, reader io.Reader, filename string) error {
	baseDir := accessInfo["baseDir"]
	folder := accessInfo["folder"]

	if baseDir == "" {
		return fmt.Errorf("direct serve directory not configured")
	}
	if strings.Contains(folder, "..") || strings.ContainsAny(filename, `/\`) {
		return fmt.Errorf("invalid folder or filename")
	}

	fullDir := filepath.Join(baseDir, folder)
	fullPath := filepath.Join(fullDir, filename)

	if err := os.MkdirAll(fullDir, 0o755); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", filename, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("failed to write to file %s: %w", filename, err)
	}

	logger.Infof("Saved '%s' to direct serve folder '%s'", filename, folder)
	return nil
}
