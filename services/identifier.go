package services

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// identifierRegexp matches a purely numeric final path segment at the very
// end of the URL. A trailing slash or query string defeats the match.
var identifierRegexp = regexp.MustCompile(`/(\d+)$`)

// ExtractIdentifier returns the catalog key encoded in a listing URL.
// ok is false when the URL does not end in /<digits>, or the number is zero
// or does not fit in an int64.
func ExtractIdentifier(rawURL string) (id int64, ok bool) {
	match := identifierRegexp.FindStringSubmatch(rawURL)
	if len(match) < 2 {
		return 0, false
	}
	id, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Slug returns the lowercased descriptive path segment of a listing URL:
// the last segment that is not purely numeric, so the identifier segment
// of ".../iphone-13-pro-256gb/12345" is skipped.
func Slug(rawURL string) string {
	if strings.TrimSpace(rawURL) == "" {
		return ""
	}

	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}

	segments := strings.Split(path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := strings.TrimSpace(segments[i])
		if seg == "" || isDigits(seg) {
			continue
		}
		return strings.ToLower(seg)
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
