package logtail

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Entry is one line of the sync log split into its component tag and text.
type Entry struct {
	Component string // "cache", "fallback", "poller"; empty for untagged lines
	Text      string
}

func (e Entry) String() string {
	if e.Component == "" {
		return e.Text
	}
	return "[" + e.Component + "] " + e.Text
}

// Parse splits a "[component] rest" line. Lines without a leading tag keep
// their full text.
func Parse(line string) Entry {
	if strings.HasPrefix(line, "[") {
		if end := strings.Index(line, "] "); end > 1 {
			return Entry{Component: line[1:end], Text: line[end+2:]}
		}
	}
	return Entry{Text: line}
}

// Read returns the last maxLines entries of the log at path whose component
// matches. An empty component matches every line; maxLines <= 0 returns every
// matching line. A missing file is not an error.
func Read(path string, maxLines int, component string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	var all []Entry
	var ring []Entry
	if maxLines > 0 {
		ring = make([]Entry, maxLines)
	}
	count, idx := 0, 0

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		entry := Parse(scanner.Text())
		if component != "" && entry.Component != component {
			continue
		}
		if ring == nil {
			all = append(all, entry)
			continue
		}
		ring[idx] = entry
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	if ring == nil {
		return all, nil
	}

	entries := make([]Entry, count)
	if count == maxLines {
		for i := range count {
			entries[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(entries, ring[:count])
	}
	return entries, nil
}
