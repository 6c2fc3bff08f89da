package job

import (
	"errors"
	"strings"
	"testing"
)

func TestClassifyEngineError(t *testing.T) {
	tests := []struct {
		message  string
		expected string
	}{
		{"https://cdn.example.com/a.m3u8: Invalid data found when processing input", msgIncompatible},
		{"Protocol 'ftp' not on whitelist 'file,http'! Protocol not found", msgIncompatible},
		{"HTTP error 403 Forbidden", msgIncompatible},
		{"Failed to resolve hostname cdn.invalid: Name or service not known", msgIncompatible},
		{"/var/tmp/uploads/seg0.ts: No such file or directory", msgMissingFiles},
		{"https://cdn.example.com/seg3.ts: Server returned 404 Not Found", msgMissingFiles},
		{"https://cdn.example.com/seg3.ts: Server returned 410 Gone", msgMissingFiles},
		{"HTTP error 404 Not Found", msgMissingFiles},
		{"https://cdn.example.com/seg3.ts: Server returned 5XX Server Error reply", msgIncompatible},
		{"/srv/downloads/converted_1.mp4: Permission denied", msgPermission},
	}

	for _, tt := range tests {
		if got := ClassifyEngineError(tt.message); got != tt.expected {
			t.Errorf("ClassifyEngineError(%q): expected %q, got %q", tt.message, tt.expected, got)
		}
	}
}

func TestClassifyScrubsPaths(t *testing.T) {
	got := ClassifyEngineError("muxer failed writing /srv/app/downloads/converted_1_abc.mp4 at offset 12")

	if strings.Contains(got, "/srv/app") {
		t.Errorf("Expected directories to be removed, got %q", got)
	}
	if !strings.Contains(got, "converted_1_abc.mp4") {
		t.Errorf("Expected base name to be kept, got %q", got)
	}
}

func TestClassifyKeepsURLs(t *testing.T) {
	msg := "unexpected codec in https://cdn.example.com/live/seg1.ts"
	if got := ClassifyEngineError(msg); got != msg {
		t.Errorf("Expected URL to be kept, got %q", got)
	}
}

func TestClassifyEmptyMessage(t *testing.T) {
	if got := ClassifyEngineError("   "); got != "conversion failed" {
		t.Errorf("Expected fallback message, got %q", got)
	}
}

func TestSetupErrorsWrapErrSetup(t *testing.T) {
	for _, err := range []error{ErrSourceNotFound, ErrStorage} {
		if !errors.Is(err, ErrSetup) {
			t.Errorf("Expected %v to wrap ErrSetup", err)
		}
	}
	if got := userMessage(ErrSourceNotFound); got != "uploaded playlist could not be found" {
		t.Errorf("Unexpected source message %q", got)
	}
	if got := userMessage(ErrStorage); got != "server storage is not writable, retry later" {
		t.Errorf("Unexpected storage message %q", got)
	}
}
