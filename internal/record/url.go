package record

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
)

// LooksLikeURL is a heuristic check for values resembling a URL or hostname.
func LooksLikeURL(value string) bool {
	text := strings.ToLower(strings.TrimSpace(value))
	if text == "" {
		return false
	}
	if strings.HasPrefix(text, "http://") || strings.HasPrefix(text, "https://") || strings.HasPrefix(text, "www.") {
		return true
	}
	if strings.Contains(text, " ") || !strings.Contains(text, ".") {
		return false
	}
	host, _, _ := strings.Cut(text, "/")
	if !strings.Contains(host, ".") || strings.HasSuffix(host, ".") {
		return false
	}
	return strings.IndexFunc(host, unicode.IsLetter) >= 0
}

// NormalizeURL turns value into an absolute https URL without a trailing
// slash. It returns false when value does not look like a URL.
func NormalizeURL(value string) (string, bool) {
	text := strings.TrimSpace(value)
	if !LooksLikeURL(text) {
		return "", false
	}
	lower := strings.ToLower(text)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		text = "https://" + text
	}
	return strings.TrimRight(text, "/"), true
}

// CandidateURLs returns normalized, deduplicated URL candidates from row. A
// nil fields slice scans every column in sorted order.
func CandidateURLs(row Row, fields []string) []string {
	if len(row) == 0 {
		return nil
	}
	if fields == nil {
		fields = Columns(row)
	}
	seen := make(map[string]struct{})
	var urls []string
	for _, col := range fields {
		v, ok := row[col]
		if !ok || v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			s = fmt.Sprint(v)
		}
		u, ok := NormalizeURL(s)
		if !ok {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}

// Host extracts the lowercase hostname from rawURL, dropping a leading
// "www.".
func Host(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		if n, ok := NormalizeURL(rawURL); ok && n != rawURL {
			return Host(n)
		}
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
