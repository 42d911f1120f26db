package common

import "strings"

// SplitList flattens values that may themselves be comma-separated, trimming
// whitespace and dropping empty and repeated entries. Order of first
// appearance is kept.
func SplitList(values ...string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}
