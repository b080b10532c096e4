package web

import "strings"

// zipPrefix is the only directory the static server ever exposes.
const zipPrefix = "zips"

// isAcceptablePath checks that the request path starts with /zips/ and does
// not try to get out of this hierarchy, even through combinations like
// /zips/../../etc/passwd.
func isAcceptablePath(path string) bool {
	if !strings.HasPrefix(path, "/") {
		return false
	}
	parts := strings.Split(path[1:], "/")
	if len(parts) < 2 || parts[0] != zipPrefix {
		return false
	}
	for _, p := range parts[1:] {
		if p == ".." {
			return false
		}
	}
	return true
}
