package tree

import (
	"fmt"
	"strings"
)

// Glob is a compiled subscription pattern over '/'-separated segments.
//
//	*    within a segment: any run of characters; alone: exactly one segment
//	?    exactly one character within a segment
//	**   as a whole segment: zero or more segments (recursive descent)
type Glob struct {
	raw  string
	segs []string
}

// ParseGlob validates and compiles raw. A concrete path is a valid glob
// that happens to contain no wildcards.
func ParseGlob(raw string) (Glob, error) {
	segs, _, err := splitPath(raw)
	if err != nil {
		return Glob{}, fmt.Errorf("%w: %v", ErrInvalidGlob, err)
	}
	for i, seg := range segs {
		if strings.Contains(seg, "**") && seg != "**" {
			return Glob{}, fmt.Errorf("%w: ** must be a whole segment in %q", ErrInvalidGlob, raw)
		}
		// Collapsing adjacent ** keeps the matcher linear.
		if seg == "**" && i > 0 && segs[i-1] == "**" {
			return Glob{}, fmt.Errorf("%w: adjacent ** segments in %q", ErrInvalidGlob, raw)
		}
	}
	return Glob{raw: raw, segs: segs}, nil
}

// MustGlob is ParseGlob for compile-time-constant patterns in tests.
func MustGlob(raw string) Glob {
	g, err := ParseGlob(raw)
	if err != nil {
		panic(err)
	}
	return g
}

func (g Glob) String() string { return g.raw }

// Matches reports whether the glob matches the whole path.
func (g Glob) Matches(p Path) bool {
	return matchSegs(g.segs, p.Segments())
}

func matchSegs(pat, segs []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			// Zero-or-more segments: try every suffix.
			for skip := 0; skip <= len(segs); skip++ {
				if matchSegs(pat[1:], segs[skip:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 || !matchSegment(pat[0], segs[0]) {
			return false
		}
		pat, segs = pat[1:], segs[1:]
	}
	return len(segs) == 0
}

// matchSegment matches one pattern segment against one path segment,
// honoring '*' and '?' within the segment.
func matchSegment(pat, name string) bool {
	// Fast path for the common literal case.
	if !strings.ContainsAny(pat, "*?") {
		return pat == name
	}
	return matchWild(pat, name)
}

func matchWild(pat, s string) bool {
	if pat == "" {
		return s == ""
	}
	switch pat[0] {
	case '*':
		for i := 0; i <= len(s); i++ {
			if matchWild(pat[1:], s[i:]) {
				return true
			}
		}
		return false
	case '?':
		return s != "" && matchWild(pat[1:], s[1:])
	default:
		return s != "" && s[0] == pat[0] && matchWild(pat[1:], s[1:])
	}
}
