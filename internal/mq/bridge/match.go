// Package bridge redirects published topics to other topics.
//
// Bridges are matched on topic strings, not on encoded topic IDs, so a
// bridge pattern never consumes vocabulary and its targets need not be
// registered topics. Patterns use the same wildcards as subscriptions.
package bridge

import "strings"

// Match reports whether pattern accepts the published name. Levels are
// compared in order: "#" accepts the rest, "+" accepts any one level and
// other levels must be equal. Without "#", both must have the same depth.
// A leading separator is ignored on both sides.
func Match(pattern, name string) bool {
	ps := split(pattern)
	ns := split(name)

	for i, p := range ps {
		if p == "#" {
			return true
		}
		if i >= len(ns) {
			return false
		}
		if p != "+" && p != ns[i] {
			return false
		}
	}
	return len(ps) == len(ns)
}

func split(name string) []string {
	return strings.Split(strings.TrimPrefix(name, "/"), "/")
}
