package realmcookie

import "strings"

// Parsed is a minimally parsed Set-Cookie header.
type Parsed struct {
	Name  string
	Value string
	Path  string
}

// ParseSetCookie extracts the value and Path attribute of a named cookie from
// a raw Set-Cookie header line.
//
// The header is treated as an ordinary attribute list split on ";" and "=",
// tolerant of attribute order and unknown attributes. A line that does not
// carry the named cookie, or that is malformed, returns ok=false; callers
// treat that the same as the cookie being absent.
func ParseSetCookie(line, name string) (Parsed, bool) {
	parsed := Parsed{Name: name}
	found := false
	for _, part := range strings.Split(line, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasEq := strings.Cut(part, "=")
		if !hasEq {
			continue
		}
		key = strings.TrimSpace(key)
		switch {
		case key == name:
			parsed.Value = strings.TrimSpace(value)
			found = true
		case strings.EqualFold(key, "Path"):
			parsed.Path = strings.TrimSpace(value)
		}
	}
	if !found || parsed.Value == "" {
		return Parsed{}, false
	}
	return parsed, true
}
