package stats

import (
	"regexp"
	"strings"
)

// requestLinePattern matches "METHOD /path " at the start of a request line.
var requestLinePattern = regexp.MustCompile(`^(GET|POST|PUT|PATCH|DELETE)\s(/\S*)\s`)

// ExtractSection returns the section of a request line: "/" followed by the
// first path component. "GET /api/user HTTP/1.0" yields "/api" and a bare "/"
// path yields "/".
func ExtractSection(request string) (string, error) {
	matches := requestLinePattern.FindStringSubmatch(request)
	if matches == nil {
		return "", &UnparsableRequestError{Request: request}
	}

	path := matches[2]
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	first, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	return "/" + first, nil
}
