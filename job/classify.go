package job

import (
	"regexp"
	"strings"
)

const (
	msgIncompatible = "incompatible playlist or unreachable segments"
	msgMissingFiles = "referenced media segments not found"
	msgPermission   = "server permission error, retry"
)

var (
	incompatibleMarkers = []string{
		"invalid argument",
		"invalid data found",
		"protocol not found",
		"connection refused",
		"connection reset",
		"connection timed out",
		"failed to resolve",
		"server returned",
		"http error",
		"network is unreachable",
		"i/o timeout",
		"end of file",
	}
	missingMarkers = []string{
		"no such file or directory",
		"does not exist",
		"enoent",
		// segments gone on the origin
		"server returned 404",
		"server returned 410",
		"http error 404",
		"http error 410",
	}
	permissionMarkers = []string{
		"permission denied",
		"operation not permitted",
		"eacces",
		"eperm",
	}

	absolutePath = regexp.MustCompile(`(^|[\s'"(=])(?:[A-Za-z]:)?[/\\](?:[^\s/\\'"]+[/\\])+([^\s/\\'"]+)`)
)

// ClassifyEngineError maps a raw engine failure message to the text shown to users
func ClassifyEngineError(message string) string {
	lower := strings.ToLower(message)

	switch {
	case containsAny(lower, permissionMarkers):
		return msgPermission
	case containsAny(lower, missingMarkers):
		return msgMissingFiles
	case containsAny(lower, incompatibleMarkers):
		return msgIncompatible
	}

	scrubbed := strings.TrimSpace(scrubPaths(message))
	if scrubbed == "" {
		return "conversion failed"
	}
	return scrubbed
}

// scrubPaths reduces absolute filesystem paths to their base names
func scrubPaths(message string) string {
	return absolutePath.ReplaceAllString(message, "${1}${2}")
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
