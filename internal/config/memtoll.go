package config

import (
	"fmt"
	"strconv"
	"strings"
)

// suffixMultiplier implements the memtoll suffix table named in the
// design notes (spec §9 open question, resolved): binary multiples only,
// accepting both the canonical Redis-style suffixes and the lowercase/
// B-less forms real Redis config files also accept.
var suffixMultiplier = map[string]int64{
	"b": 1,
	"k": 1024, "kb": 1024,
	"m": 1024 * 1024, "mb": 1024 * 1024,
	"g": 1024 * 1024 * 1024, "gb": 1024 * 1024 * 1024,
}

// ParseMemory parses a size string such as "100mb", "512M", or a bare
// integer (bytes) into a byte count.
func ParseMemory(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("config: empty memory value")
	}
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
		i++
	}
	numPart := s[:i]
	suffix := strings.ToLower(strings.TrimSpace(s[i:]))
	if numPart == "" {
		return 0, fmt.Errorf("config: invalid memory value %q", s)
	}
	n, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, fmt.Errorf("config: invalid memory value %q: %w", s, err)
	}
	if suffix == "" {
		return int64(n), nil
	}
	mult, ok := suffixMultiplier[suffix]
	if !ok {
		return 0, fmt.Errorf("config: unknown memory suffix %q in %q", suffix, s)
	}
	return int64(n * float64(mult)), nil
}
