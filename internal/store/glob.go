// Copyright 2026 The Ferrous Authors. Licensed under LGPL-3.0-or-later.

package store

// MatchGlob implements the KEYS/SCAN/PSUBSCRIBE pattern language:
// '*' (any run), '?' (single byte), '[...]' (character class,
// optionally negated with a leading '^', supporting 'a-z' ranges),
// and '\' to escape the next character literally.
func MatchGlob(pattern, s string) bool {
	return matchGlob([]byte(pattern), []byte(s))
}

func matchGlob(p, s []byte) bool {
	for len(p) > 0 {
		switch p[0] {
		case '*':
			for len(p) > 1 && p[1] == '*' {
				p = p[1:]
			}
			if len(p) == 1 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if matchGlob(p[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			s = s[1:]
			p = p[1:]
		case '[':
			if len(s) == 0 {
				return false
			}
			end := indexClose(p)
			if end < 0 {
				return matchLiteral(p[0], s[0]) && matchGlob(p[1:], s[1:])
			}
			class := p[1:end]
			negate := false
			if len(class) > 0 && class[0] == '^' {
				negate = true
				class = class[1:]
			}
			if classMatches(class, s[0]) == negate {
				return false
			}
			s = s[1:]
			p = p[end+1:]
		case '\\':
			if len(p) > 1 {
				p = p[1:]
			}
			if len(s) == 0 || !matchLiteral(p[0], s[0]) {
				return false
			}
			s = s[1:]
			p = p[1:]
		default:
			if len(s) == 0 || !matchLiteral(p[0], s[0]) {
				return false
			}
			s = s[1:]
			p = p[1:]
		}
	}
	return len(s) == 0
}

func matchLiteral(p, c byte) bool { return p == c }

func indexClose(p []byte) int {
	for i := 1; i < len(p); i++ {
		if p[i] == ']' {
			return i
		}
	}
	return -1
}

func classMatches(class []byte, c byte) bool {
	for i := 0; i < len(class); i++ {
		if i+2 < len(class) && class[i+1] == '-' {
			if class[i] <= c && c <= class[i+2] {
				return true
			}
			i += 2
			continue
		}
		if class[i] == c {
			return true
		}
	}
	return false
}
