package discover

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

//go:embed wordlist.txt
var wordlistFS embed.FS

var (
	builtinOnce   sync.Once
	builtinLabels []string
)

// BuiltinWordlist returns the embedded brute-force label list. The result is
// a copy; callers may reorder or trim it freely.
func BuiltinWordlist() []string {
	builtinOnce.Do(func() {
		data, err := wordlistFS.ReadFile("wordlist.txt")
		if err != nil {
			// The file is embedded at build time; failing to read it is a
			// broken binary, not a runtime condition.
			panic(fmt.Sprintf("discover: embedded wordlist: %v", err))
		}
		builtinLabels = parseLabels(bytes.NewReader(data))
	})

	out := make([]string, len(builtinLabels))
	copy(out, builtinLabels)
	return out
}

// LoadWordlist reads candidate labels from path, one per line, ignoring
// blanks and # comments. An empty path returns the builtin list.
func LoadWordlist(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return BuiltinWordlist(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wordlist %s: %w", path, err)
	}
	defer f.Close()

	labels := parseLabels(f)
	if len(labels) == 0 {
		return nil, fmt.Errorf("wordlist %s: no usable labels", path)
	}
	return labels, nil
}

func parseLabels(r io.Reader) []string {
	seen := make(map[string]struct{})
	var labels []string

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		label := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if label == "" || strings.HasPrefix(label, "#") {
			continue
		}
		if !validLabel(label) {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	}
	return labels
}

// validLabel checks DNS label syntax: 63 chars max, alphanumeric with
// interior hyphens. Dotted entries are allowed so lists can carry
// multi-level candidates like "dev.api".
func validLabel(label string) bool {
	if len(label) > 253 {
		return false
	}
	for _, part := range strings.Split(label, ".") {
		if part == "" || len(part) > 63 {
			return false
		}
		if part[0] == '-' || part[len(part)-1] == '-' {
			return false
		}
		for _, r := range part {
			if r != '-' && !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') {
				return false
			}
		}
	}
	return true
}
