package sshcli

import (
	"regexp"
	"strings"
)

// Record is one line of key=value CLI output
type Record map[string]string

// fieldPattern matches key="quoted value" or key=bare-value
var fieldPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_-]*)=(?:"([^"]*)"|(\S*))`)

// ParseRecords parses CLI output with one record per line of key=value pairs.
// Blank lines and lines without any pair are skipped.
func ParseRecords(output string) []Record {
	var records []Record
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rec := ParseRecord(line); len(rec) > 0 {
			records = append(records, rec)
		}
	}
	return records
}

// ParseRecord parses a single line of key=value pairs
func ParseRecord(line string) Record {
	matches := fieldPattern.FindAllStringSubmatch(line, -1)
	if len(matches) == 0 {
		return nil
	}
	rec := make(Record, len(matches))
	for _, m := range matches {
		if m[2] != "" || strings.HasPrefix(m[0], m[1]+`="`) {
			rec[m[1]] = m[2]
		} else {
			rec[m[1]] = m[3]
		}
	}
	return rec
}

// List splits a comma-separated field, dropping empty entries
func (r Record) List(key string) []string {
	var out []string
	for _, v := range strings.Split(r[key], ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
