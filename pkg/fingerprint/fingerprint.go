// Package fingerprint derives technology identifiers from HTTP server
// banners and counts known-outdated versions among them. The outdated count
// feeds the risk model; the technology list itself is informational asset
// metadata.
package fingerprint

import (
	"sort"
	"strings"
)

// outdatedCatalog maps version prefixes to the reason the release is
// considered outdated. Matching is case-insensitive substring on the
// normalized technology string.
var outdatedCatalog = map[string]string{
	"nginx/1.10":   "nginx 1.10 is end of life",
	"nginx/1.12":   "nginx 1.12 is end of life",
	"apache/2.2":   "Apache 2.2 is end of life",
	"apache/2.4.6": "Apache 2.4.6 has known CVEs",
	"php/5.":       "PHP 5.x is end of life",
	"openssl/1.0":  "OpenSSL 1.0 is end of life",
	"iis/6.0":      "IIS 6.0 is end of life",
	"iis/7.0":      "IIS 7.0 is end of life",
}

// catalogPatterns holds the catalog keys in sorted order so a string that
// matches several entries always reports the same one.
var catalogPatterns = func() []string {
	patterns := make([]string, 0, len(outdatedCatalog))
	for p := range outdatedCatalog {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)
	return patterns
}()

// FromServerHeader extracts technology strings from an HTTP Server header.
// A header like "nginx/1.18.0 (Ubuntu) OpenSSL/1.0.2k" yields
// ["nginx/1.18.0", "OpenSSL/1.0.2k"]; parenthesized platform notes are
// dropped. An empty header yields nil.
func FromServerHeader(server string) []string {
	server = strings.TrimSpace(server)
	if server == "" {
		return nil
	}

	var techs []string
	for _, token := range strings.Fields(server) {
		if strings.HasPrefix(token, "(") {
			continue
		}
		token = strings.Trim(token, "();,")
		if token == "" {
			continue
		}
		techs = append(techs, token)
	}
	return techs
}

// OutdatedCount returns how many of the given technology strings match the
// known-outdated catalog. Each technology counts at most once even when it
// matches several catalog entries.
func OutdatedCount(technologies []string) int {
	count := 0
	for _, tech := range technologies {
		if _, reason := Outdated(tech); reason != "" {
			count++
		}
	}
	return count
}

// Outdated reports whether a single technology string matches the outdated
// catalog, returning the matched pattern and the reason. Empty strings mean
// no match.
func Outdated(technology string) (pattern, reason string) {
	lower := strings.ToLower(technology)
	for _, p := range catalogPatterns {
		if strings.Contains(lower, p) {
			return p, outdatedCatalog[p]
		}
	}
	return "", ""
}
