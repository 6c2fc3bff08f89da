package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testMaster = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720
high/index.m3u8
`

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writePlaylist(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "playlist.m3u8")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("Failed to write playlist: %v", err)
	}
	return path
}

func TestInspectMaster(t *testing.T) {
	path := writePlaylist(t, testMaster)

	out, err := runCommand(t, "inspect", "--base-url", "https://cdn.example.com/show/master.m3u8", path)
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if !strings.Contains(out, "Kind: master (2 renditions)") {
		t.Errorf("Expected master summary, got:\n%s", out)
	}
	if !strings.Contains(out, "https://cdn.example.com/show/high/index.m3u8") {
		t.Errorf("Expected resolved locator in output, got:\n%s", out)
	}

	var selected string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "*") {
			selected = line
		}
	}
	if !strings.Contains(selected, "2500000") {
		t.Errorf("Expected the highest bandwidth rendition to be marked, got %q", selected)
	}
}

func TestInspectMedia(t *testing.T) {
	path := writePlaylist(t, "#EXTM3U\n#EXTINF:10,\nseg0.ts\n")

	out, err := runCommand(t, "inspect", path)
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if strings.TrimSpace(out) != "Kind: media" {
		t.Errorf("Expected media summary, got %q", out)
	}
}

func TestInspectInvalid(t *testing.T) {
	path := writePlaylist(t, "not a playlist")

	if _, err := runCommand(t, "inspect", path); err == nil {
		t.Fatalf("Expected an error for an invalid playlist")
	}
	if _, err := runCommand(t, "inspect", filepath.Join(t.TempDir(), "missing.m3u8")); err == nil {
		t.Fatalf("Expected an error for a missing file")
	}
	if _, err := runCommand(t, "inspect"); err == nil {
		t.Fatalf("Expected an error when no file is given")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.HasPrefix(out, "m3u8conv ") || !strings.Contains(out, "go:") {
		t.Errorf("Unexpected version output:\n%s", out)
	}
}

func TestRenderTable(t *testing.T) {
	if got := renderTable(nil, nil, nil); got != "" {
		t.Errorf("Expected empty output without headers, got %q", got)
	}

	got := renderTable([]string{"Name", "Size"}, [][]string{{"a"}, {"b", "2"}}, []columnAlignment{alignLeft, alignRight})
	for _, want := range []string{"Name", "Size", "a", "b", "2"} {
		if !strings.Contains(got, want) {
			t.Errorf("Expected table to contain %q, got:\n%s", want, got)
		}
	}
}

func TestCleanupHistoryWithoutStores(t *testing.T) {
	// closed stores only log errors
	cleanupHistory(time.Hour)
}
