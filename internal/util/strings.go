package util

import "strings"

// SafeTruncate returns at most maxLen bytes of s. Credentials are logged through
// this helper so that only a short, non-replayable prefix ends up in the logs.
//
// A negative maxLen yields "".
//
//	SafeTruncate("9f2c1d0e7a6b", 8) // "9f2c1d0e"
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeURL strips trailing slashes so that "https://gw.example.com/" and
// "https://gw.example.com" produce identical endpoint URLs.
func NormalizeURL(url string) string {
	return strings.TrimRight(url, "/")
}

// JoinURL appends path to base, collapsing the slash between them.
func JoinURL(base, path string) string {
	return NormalizeURL(base) + "/" + strings.TrimLeft(path, "/")
}
