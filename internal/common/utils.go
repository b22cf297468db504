package common

import "strings"

// CleanList trims every entry, drops empty ones and removes duplicates while
// keeping first-seen order. Entries may themselves be comma separated.
func CleanList(items ...string) []string {
	seen := make(map[string]struct{}, len(items))
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, ok := seen[part]; ok {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}

// Missing returns the entries of want that are not in have.
func Missing(want, have []string) []string {
	set := make(map[string]struct{}, len(have))
	for _, h := range have {
		set[h] = struct{}{}
	}
	var out []string
	for _, w := range want {
		if _, ok := set[w]; !ok {
			out = append(out, w)
		}
	}
	return out
}
