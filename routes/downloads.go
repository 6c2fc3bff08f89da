package routes

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"m3u8conv/logger"
)

// DownloadHandler serves finished artifacts from the output directory.
// ?download=1 asks the browser to save the file instead of playing it.
func (s *Server) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.PathValue("filename")
	if !safeFilename(name) {
		http.NotFound(w, r)
		return
	}

	file, err := os.Open(filepath.Join(s.deps.OutputDir, name))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	disposition := "inline"
	if r.URL.Query().Get("download") == "1" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, name))
	if strings.EqualFold(filepath.Ext(name), ".mp4") {
		w.Header().Set("Content-Type", "video/mp4")
	}

	logger.Debugf("Serving %s (%s) to %s", name, disposition, r.RemoteAddr)
	http.ServeContent(w, r, name, info.ModTime(), file)
}

// safeFilename accepts only plain names inside the output directory
func safeFilename(name string) bool {
	if name == "" || name != filepath.Base(name) {
		return false
	}
	if strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return false
	}
	return true
}
