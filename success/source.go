package success

import (
	"os"
	"path/filepath"

	"m3u8conv/engine"
	"m3u8conv/job"
)

// historySource keeps remote URLs but only the base name of local uploads
func historySource(src job.Source) string {
	if src.Kind == engine.SourceLocalFile {
		return filepath.Base(src.Locator)
	}
	return src.Locator
}

func fileSize(path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
