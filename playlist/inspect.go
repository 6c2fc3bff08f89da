package playlist

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the classification of a playlist document
type Kind string

const (
	KindMedia  Kind = "media"
	KindMaster Kind = "master"
)

const (
	headerTag     = "#EXTM3U"
	streamInfTag  = "#EXT-X-STREAM-INF"
	segmentInfTag = "#EXTINF"
)

// Segment file extensions that count as segment markers in a media playlist
var segmentExtensions = []string{".ts", ".m4s", ".mp4", ".aac", ".m4a", ".mp3", ".vtt"}

var (
	// ErrPlaylist is the parent of every inspection failure
	ErrPlaylist = errors.New("playlist error")

	ErrInvalidPlaylist = fmt.Errorf("%w: missing #EXTM3U header", ErrPlaylist)
	ErrNoStreamsFound  = fmt.Errorf("%w: master playlist has no streams", ErrPlaylist)
	ErrEmptyPlaylist   = fmt.Errorf("%w: media playlist has no segments", ErrPlaylist)
)

// Rendition is one alternative stream referenced from a master playlist
type Rendition struct {
	Bandwidth  int    `json:"bandwidth"`
	Resolution string `json:"resolution,omitempty"`
	Locator    string `json:"locator"`
}

// Document is the parsed form of a playlist
type Document struct {
	Raw        string
	Kind       Kind
	Renditions []Rendition // master only, in document order
}

// Inspect parses raw playlist text and classifies it. It has no side effects.
func Inspect(raw string) (*Document, error) {
	lines := splitLines(raw)

	first := ""
	for _, line := range lines {
		if line != "" {
			first = line
			break
		}
	}
	if first != headerTag {
		return nil, ErrInvalidPlaylist
	}

	doc := &Document{Raw: raw, Kind: KindMedia}
	for _, line := range lines {
		if strings.HasPrefix(line, streamInfTag) {
			doc.Kind = KindMaster
			break
		}
	}

	if doc.Kind == KindMaster {
		doc.Renditions = parseRenditions(lines)
		if len(doc.Renditions) == 0 {
			return nil, ErrNoStreamsFound
		}
		return doc, nil
	}

	if !hasSegments(lines) {
		return nil, ErrEmptyPlaylist
	}
	return doc, nil
}

// Best returns the rendition with the highest bandwidth. Ties resolve to the
// first such rendition in document order.
func (d *Document) Best() (Rendition, bool) {
	if d == nil || len(d.Renditions) == 0 {
		return Rendition{}, false
	}
	best := d.Renditions[0]
	for _, r := range d.Renditions[1:] {
		if r.Bandwidth > best.Bandwidth {
			best = r
		}
	}
	return best, true
}

// IsMaster reports whether the document references renditions rather than segments
func (d *Document) IsMaster() bool {
	return d != nil && d.Kind == KindMaster
}

func splitLines(raw string) []string {
	raw = strings.TrimPrefix(raw, "\ufeff")
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSpace(scanner.Text()))
	}
	return lines
}

func parseRenditions(lines []string) []Rendition {
	var renditions []Rendition
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !strings.HasPrefix(line, streamInfTag) {
			continue
		}
		attrs := parseAttributes(strings.TrimPrefix(strings.TrimPrefix(line, streamInfTag), ":"))

		bandwidth, err := strconv.Atoi(attrs["BANDWIDTH"])
		if err != nil {
			bandwidth = 0
		}

		// the locator is the next line that is neither blank nor a tag/comment
		locator := ""
		for j := i + 1; j < len(lines); j++ {
			next := lines[j]
			if next == "" || strings.HasPrefix(next, "#") {
				if strings.HasPrefix(next, streamInfTag) {
					break
				}
				continue
			}
			locator = next
			i = j
			break
		}
		if locator == "" {
			continue
		}

		renditions = append(renditions, Rendition{
			Bandwidth:  bandwidth,
			Resolution: attrs["RESOLUTION"],
			Locator:    locator,
		})
	}
	return renditions
}

// parseAttributes splits an attribute list, honoring quoted values that contain commas
func parseAttributes(list string) map[string]string {
	attrs := make(map[string]string)
	var parts []string
	var current strings.Builder
	quoted := false
	for _, r := range list {
		switch {
		case r == '"':
			quoted = !quoted
			current.WriteRune(r)
		case r == ',' && !quoted:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	parts = append(parts, current.String())

	for _, part := range parts {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		attrs[key] = strings.Trim(strings.TrimSpace(value), `"`)
	}
	return attrs
}

func hasSegments(lines []string) bool {
	for _, line := range lines {
		if strings.HasPrefix(line, segmentInfTag) {
			return true
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		uri := strings.ToLower(line)
		if idx := strings.IndexAny(uri, "?#"); idx >= 0 {
			uri = uri[:idx]
		}
		for _, ext := range segmentExtensions {
			if strings.HasSuffix(uri, ext) {
				return true
			}
		}
	}
	return false
}
