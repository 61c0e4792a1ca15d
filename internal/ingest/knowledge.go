package ingest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadKnowledge loads knowledge snippets, one per line
func ReadKnowledge(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open knowledge file: %w", err)
	}
	defer func() { _ = f.Close() }()

	snippets, err := ParseKnowledge(f)
	if err != nil {
		return nil, fmt.Errorf("read knowledge file %s: %w", path, err)
	}
	return snippets, nil
}

// ParseKnowledge skips blank lines, # comments and repeated snippets
func ParseKnowledge(r io.Reader) ([]string, error) {
	seen := make(map[string]bool)
	var snippets []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		snippets = append(snippets, line)
	}
	return snippets, scanner.Err()
}
