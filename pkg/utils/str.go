package utils

import (
	"regexp"
	"strings"
)

// SplitByMultipleDelimiters splits s on any of the given delimiters
func SplitByMultipleDelimiters(s string, delimiters ...string) []string {
	if len(delimiters) == 0 {
		return []string{s}
	}
	delimiterPattern := "[" + regexp.QuoteMeta(strings.Join(delimiters, "")) + "]"
	re := regexp.MustCompile(delimiterPattern)
	return re.Split(s, -1)
}

// SplitAddrs turns a ';' or ',' separated address list into trimmed, non-empty entries
func SplitAddrs(s string) []string {
	parts := SplitByMultipleDelimiters(s, ";", ",")
	addrs := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			addrs = append(addrs, p)
		}
	}
	return addrs
}
