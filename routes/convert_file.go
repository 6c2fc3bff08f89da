package routes

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"m3u8conv/engine"
	"m3u8conv/job"
	"m3u8conv/logger"
	"m3u8conv/models"
	"m3u8conv/playlist"
)

const uploadField = "m3u8File"

var (
	playlistExtensions = map[string]bool{".m3u8": true, ".m3u": true}
	playlistMediaTypes = map[string]bool{
		"application/vnd.apple.mpegurl": true,
		"application/x-mpegurl":         true,
		"audio/mpegurl":                 true,
		"audio/x-mpegurl":               true,
	}
)

// ConvertFileHandler accepts an uploaded playlist, inspects it, and starts a conversion
func (s *Server) ConvertFileHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Convert file request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)

	if r.Method != http.MethodPost {
		logger.Warnf("Invalid method for convert-file endpoint: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// leave room for multipart framing and the small text fields
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.MaxUploadBytes+64<<10)
	if err := r.ParseMultipartForm(s.deps.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.deps.Metrics.Rejected("too_large")
			writeError(w, http.StatusRequestEntityTooLarge, "Playlist file is too large")
			return
		}
		s.deps.Metrics.Rejected("invalid_body")
		writeError(w, http.StatusBadRequest, "Failed to parse multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		s.deps.Metrics.Rejected("missing_file")
		writeError(w, http.StatusBadRequest, "No playlist file uploaded")
		return
	}
	defer file.Close()

	if header.Size > s.deps.MaxUploadBytes {
		s.deps.Metrics.Rejected("too_large")
		writeError(w, http.StatusRequestEntityTooLarge, "Playlist file is too large")
		return
	}
	if !isPlaylistUpload(header.Filename, header.Header.Get("Content-Type")) {
		s.deps.Metrics.Rejected("invalid_type")
		writeError(w, http.StatusBadRequest, "Only .m3u8 playlist files are accepted")
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.deps.MaxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}
	if int64(len(data)) > s.deps.MaxUploadBytes {
		s.deps.Metrics.Rejected("too_large")
		writeError(w, http.StatusRequestEntityTooLarge, "Playlist file is too large")
		return
	}

	doc, err := playlist.Inspect(string(data))
	if err != nil {
		if errors.Is(err, playlist.ErrPlaylist) {
			logger.Debugf("Rejected uploaded playlist %s: %v", header.Filename, err)
			s.deps.Metrics.Rejected("invalid_playlist")
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to inspect playlist")
		return
	}

	baseURL := strings.TrimSpace(r.FormValue("baseUrl"))
	if baseURL != "" && !playlist.IsRemote(baseURL) {
		s.deps.Metrics.Rejected("invalid_options")
		writeError(w, http.StatusBadRequest, "baseUrl must be an absolute http(s) URL")
		return
	}

	spec := job.Spec{
		CallbackURL: strings.TrimSpace(r.FormValue("callbackUrl")),
		PublishKeys: splitKeys(r.FormValue("publishKeys")),
	}
	if err := s.validateExtras(spec); err != nil {
		s.deps.Metrics.Rejected("invalid_options")
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	contents := doc.Raw
	if !doc.IsMaster() && baseURL != "" {
		contents = playlist.Rebase(contents, baseURL)
	}

	savedPath, err := s.saveUpload(contents)
	if err != nil {
		logger.Errorf("Failed to save uploaded playlist: %v", err)
		writeError(w, http.StatusInternalServerError, "server storage is not writable, retry later")
		return
	}

	summary := &models.PlaylistSummary{Kind: string(doc.Kind)}
	spec.Source = job.Source{Kind: engine.SourceLocalFile, Locator: savedPath, TempPath: savedPath}

	if best, ok := doc.Best(); ok {
		source, err := selectRendition(best.Locator, baseURL, s.deps.UploadDir)
		if err != nil {
			removeUpload(savedPath)
			s.deps.Metrics.Rejected("invalid_playlist")
			writeError(w, http.StatusBadRequest, validationMessage(err))
			return
		}
		spec.Source = source
		spec.Source.TempPath = savedPath
		summary.Selected = best.Locator
		summary.Bandwidth = best.Bandwidth
		logger.Infof("Master playlist %s: selected rendition %s (%d bps)", header.Filename, best.Locator, best.Bandwidth)
	}

	s.submit(w, spec, summary)
}

// selectRendition turns the chosen rendition locator into a job source.
// Local renditions must stay inside uploadDir.
func selectRendition(locator, baseURL, uploadDir string) (job.Source, error) {
	switch {
	case playlist.IsRemote(locator):
		return job.Source{Kind: engine.SourceRemote, Locator: locator}, nil
	case baseURL != "":
		return job.Source{Kind: engine.SourceRemote, Locator: playlist.Resolve(baseURL, locator)}, nil
	}

	if filepath.IsAbs(locator) || strings.HasPrefix(locator, "/") || strings.HasPrefix(locator, `\`) {
		return job.Source{}, validationError("rendition %q must be relative to the uploaded playlist", locator)
	}
	resolved := playlist.Resolve(uploadDir, locator)
	rel, err := filepath.Rel(filepath.Clean(uploadDir), resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return job.Source{}, validationError("rendition %q points outside the upload directory", locator)
	}
	return job.Source{Kind: engine.SourceLocalFile, Locator: resolved}, nil
}

func removeUpload(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warnf("Failed to remove rejected upload %s: %v", path, err)
	}
}

func (s *Server) saveUpload(contents string) (string, error) {
	if err := os.MkdirAll(s.deps.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.deps.UploadDir, uuid.NewString()+".m3u8")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}
	return path, nil
}

func isPlaylistUpload(filename, contentType string) bool {
	if playlistExtensions[strings.ToLower(filepath.Ext(filename))] {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return playlistMediaTypes[strings.ToLower(mediaType)]
}

func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
