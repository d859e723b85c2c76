// Package sessionlist loads session lists from files.
package sessionlist

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/verte-zerg/touchsync/internal/session"
)

// Load reads one session id per line from the provided file path.
// Blank lines and lines starting with # are ignored.
func Load(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			// Best-effort close for read-only session list.
			_ = cerr
		}
	}()

	var ids []string
	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if _, err := session.Parse(text); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		ids = append(ids, text)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("session list is empty")
	}
	return ids, nil
}

// Merge concatenates lists, keeping the first occurrence of every id.
func Merge(lists ...[]string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, list := range lists {
		for _, id := range list {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
