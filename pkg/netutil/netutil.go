// Package netutil provides utilities for validating and normalizing scan
// targets and port specifications.
//
// It includes functions to:
//   - Normalize user-supplied domain input (scheme, port, path, wildcard and
//     case noise) into a bare lowercase hostname.
//   - Validate domain name syntax without touching the network.
//   - Reduce a hostname to its registrable domain (eTLD+1) for scope checks.
//   - Decide whether a discovered hostname is in scope for a scan root.
//   - Parse and expand port strings (including ranges) into sorted, unique
//     integer slices.
//   - Filter out IPs that are not useful scan subjects (multicast,
//     unspecified, link-local).
package netutil

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// NormalizeDomain cleans user-supplied domain input into a bare lowercase
// hostname: scheme prefixes, paths, ports, a leading wildcard label and a
// trailing dot are stripped. Returns an error when what remains is not a
// syntactically valid domain name.
func NormalizeDomain(input string) (string, error) {
	host := strings.TrimSpace(strings.ToLower(input))
	if host == "" {
		return "", fmt.Errorf("domain is empty")
	}

	for _, scheme := range []string{"https://", "http://"} {
		host = strings.TrimPrefix(host, scheme)
	}
	if idx := strings.IndexAny(host, "/?#"); idx >= 0 {
		host = host[:idx]
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "*.")
	host = strings.TrimSuffix(host, ".")

	if !IsValidDomain(host) {
		return "", fmt.Errorf("invalid domain name: %q", input)
	}
	return host, nil
}

// IsValidDomain checks domain name syntax: dot-separated labels of at most
// 63 characters, alphanumeric with interior hyphens, an alphabetic TLD of at
// least two characters, and a 253 character total limit. IP addresses are
// not valid domains here.
func IsValidDomain(host string) bool {
	if host == "" || len(host) > 253 {
		return false
	}
	if net.ParseIP(host) != nil {
		return false
	}

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if r != '-' && !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && !(r >= 'A' && r <= 'Z') {
				return false
			}
		}
	}

	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if !(r >= 'a' && r <= 'z') && !(r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

// RegistrableDomain reduces a hostname to its registrable domain (eTLD+1).
// Hosts that do not map onto the public suffix list (internal names, bare
// TLDs) fall back to the input unchanged.
func RegistrableDomain(host string) string {
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return registrable
}

// InScope reports whether a discovered hostname belongs to the scan root:
// the root itself or any name under it.
func InScope(host, root string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	root = strings.ToLower(strings.TrimSuffix(root, "."))
	if host == "" || root == "" {
		return false
	}
	return host == root || strings.HasSuffix(host, "."+root)
}

// FilterScannableIPs removes addresses that are not useful scan subjects
// (multicast, unspecified, link-local) and deduplicates the rest, keeping
// input order. Loopback is left in: local test setups resolve to it.
func FilterScannableIPs(ips []string) []string {
	var result []string
	seen := make(map[string]struct{}, len(ips))

	for _, ipStr := range ips {
		trimmed := strings.TrimSpace(ipStr)
		if trimmed == "" {
			continue
		}
		ip := net.ParseIP(trimmed)
		if ip == nil ||
			ip.IsMulticast() ||
			ip.IsUnspecified() ||
			ip.IsLinkLocalUnicast() ||
			ip.IsLinkLocalMulticast() {
			continue
		}
		canonical := ip.String()
		if _, found := seen[canonical]; !found {
			result = append(result, canonical)
			seen[canonical] = struct{}{}
		}
	}
	return result
}

// ParsePortString parses a comma-separated string of ports and port ranges
// into a slice of unique integers, sorted.
// Example: "80,443,1000-1002,22" -> [22, 80, 443, 1000, 1001, 1002]
func ParsePortString(portStr string) ([]int, error) {
	if strings.TrimSpace(portStr) == "" {
		return []int{}, nil
	}

	seenPorts := make(map[int]struct{})
	var ports []int

	parts := strings.SplitSeq(portStr, ",")
	for part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if strings.Contains(part, "-") { // Port range
			rangeParts := strings.SplitN(part, "-", 2)
			if len(rangeParts) != 2 {
				return nil, fmt.Errorf("invalid port range format: '%s'", part)
			}
			start, err := strconv.Atoi(strings.TrimSpace(rangeParts[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid start port in range '%s': %w", part, err)
			}
			end, err := strconv.Atoi(strings.TrimSpace(rangeParts[1]))
			if err != nil {
				return nil, fmt.Errorf("invalid end port in range '%s': %w", part, err)
			}
			if start < 1 || start > 65535 || end < 1 || end > 65535 {
				return nil, fmt.Errorf("port numbers in range '%s' must be between 1 and 65535", part)
			}
			if start > end {
				return nil, fmt.Errorf("start port %d cannot be greater than end port %d in range '%s'", start, end, part)
			}
			for i := start; i <= end; i++ {
				if _, found := seenPorts[i]; !found {
					ports = append(ports, i)
					seenPorts[i] = struct{}{}
				}
			}
		} else {
			port, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid port number '%s': %w", part, err)
			}
			if port < 1 || port > 65535 {
				return nil, fmt.Errorf("port number '%d' must be between 1 and 65535", port)
			}
			if _, found := seenPorts[port]; !found {
				ports = append(ports, port)
				seenPorts[port] = struct{}{}
			}
		}
	}
	sort.Ints(ports)
	return ports, nil
}
