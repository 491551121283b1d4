package vdg

import (
	"encoding/json"
	"strconv"
	"strings"
)

// lookup walks doc along a dotted path. Numeric segments index arrays.
func lookup(doc any, path string) (any, bool) {
	cur := doc
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, cur != nil
}

// firstString returns the first non-empty value found along paths.
func firstString(doc any, paths ...string) string {
	for _, p := range paths {
		v, ok := lookup(doc, p)
		if !ok {
			continue
		}
		var s string
		switch val := v.(type) {
		case string:
			s = strings.TrimSpace(val)
		case json.Number:
			s = val.String()
		case bool:
			s = strconv.FormatBool(val)
		}
		if s != "" {
			return s
		}
	}
	return ""
}

// firstInt returns the first positive integer found along paths. Strings such
// as "1596" or "1596cc" are accepted.
func firstInt(doc any, paths ...string) int {
	for _, p := range paths {
		v, ok := lookup(doc, p)
		if !ok {
			continue
		}
		var n int
		switch val := v.(type) {
		case json.Number:
			if i, err := val.Int64(); err == nil {
				n = int(i)
			} else if f, err := val.Float64(); err == nil {
				n = int(f)
			}
		case string:
			n = leadingInt(val)
		}
		if n > 0 {
			return n
		}
	}
	return 0
}

func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}
