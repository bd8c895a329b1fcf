package rule

import "strings"

// MatchGlob reports whether s matches the glob pattern, case-insensitively.
// Supported syntax: '*' matches any run of non-'/' characters, '**' matches
// any run of any characters (including '/'), '?' matches exactly one
// character, every other rune is literal.
func MatchGlob(pattern, s string) bool {
	return matchHere([]rune(strings.ToLower(pattern)), []rune(strings.ToLower(s)))
}

// matchHere is a backtracking glob matcher extended with '**'.
func matchHere(p, s []rune) bool {
	for len(p) > 0 {
		switch p[0] {
		case '*':
			if len(p) > 1 && p[1] == '*' {
				return matchStar(p[2:], s, true)
			}
			return matchStar(p[1:], s, false)
		case '?':
			if len(s) == 0 {
				return false
			}
			p, s = p[1:], s[1:]
		default:
			if len(s) == 0 || s[0] != p[0] {
				return false
			}
			p, s = p[1:], s[1:]
		}
	}
	return len(s) == 0
}

// matchStar tries consuming an increasing prefix of s for a '*'/'**' token,
// then matches the remaining pattern against the remaining suffix. When
// acrossSlash is false (single '*'), the run stops at the first '/'.
func matchStar(p, s []rune, acrossSlash bool) bool {
	for i := 0; ; i++ {
		if matchHere(p, s[i:]) {
			return true
		}
		if i >= len(s) {
			return false
		}
		if !acrossSlash && s[i] == '/' {
			return false
		}
	}
}
