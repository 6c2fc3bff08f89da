package playlist

import (
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
)

// IsRemote reports whether a locator is an absolute http(s) URL
func IsRemote(locator string) bool {
	u, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// Resolve resolves a rendition locator against base, which is either an
// http(s) URL or a local directory. Absolute locators are returned unchanged.
func Resolve(base, locator string) string {
	locator = strings.TrimSpace(locator)
	if IsRemote(locator) || base == "" {
		return locator
	}

	if IsRemote(base) {
		baseURL, err := url.Parse(base)
		if err != nil {
			return locator
		}
		ref, err := url.Parse(locator)
		if err != nil {
			return locator
		}
		return baseURL.ResolveReference(ref).String()
	}

	if filepath.IsAbs(locator) {
		return filepath.Clean(locator)
	}
	return filepath.Join(base, filepath.FromSlash(locator))
}

var uriAttribute = regexp.MustCompile(`URI="([^"]*)"`)

// Rebase rewrites every relative URI in raw (segment lines and URI attributes
// such as EXT-X-KEY and EXT-X-MAP) against baseURL. Line endings are normalized to \n.
func Rebase(raw, baseURL string) string {
	if !IsRemote(baseURL) {
		return raw
	}

	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
		case strings.HasPrefix(trimmed, "#"):
			lines[i] = uriAttribute.ReplaceAllStringFunc(line, func(m string) string {
				inner := uriAttribute.FindStringSubmatch(m)[1]
				return `URI="` + Resolve(baseURL, inner) + `"`
			})
		default:
			lines[i] = Resolve(baseURL, trimmed)
		}
	}
	return strings.Join(lines, "\n")
}
