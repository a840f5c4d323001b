package tree

import (
	"fmt"
	"strings"
	"unicode"
)

// Paths are stricter than a typical filesystem:
//   - always absolute, '/'-separated
//   - no empty segments ("//") and no '.'-prefixed segments
//   - no whitespace and none of  \ : ,
//   - glob characters (* ? [ ] !) are reserved for Glob
//
// Glob shares the same segment rules but admits the glob characters.
type Path struct {
	segs []string
}

// Root is the path "/".
var Root = Path{}

// ParsePath validates raw and returns it as a Path.
func ParsePath(raw string) (Path, error) {
	segs, hasGlob, err := splitPath(raw)
	if err != nil {
		return Path{}, err
	}
	if hasGlob {
		return Path{}, fmt.Errorf("%w: glob character in path %q", ErrInvalidPath, raw)
	}
	return Path{segs: segs}, nil
}

// MustPath is ParsePath for compile-time-constant paths in tests.
func MustPath(raw string) Path {
	p, err := ParsePath(raw)
	if err != nil {
		panic(err)
	}
	return p
}

func splitPath(raw string) (segs []string, hasGlob bool, err error) {
	if !strings.HasPrefix(raw, "/") {
		return nil, false, fmt.Errorf("%w: not absolute: %q", ErrInvalidPath, raw)
	}
	if raw == "/" {
		return nil, false, nil
	}
	for _, seg := range strings.Split(raw[1:], "/") {
		glob, err := validateSegment(seg, true)
		if err != nil {
			return nil, false, fmt.Errorf("%w in %q", err, raw)
		}
		hasGlob = hasGlob || glob
		segs = append(segs, seg)
	}
	return segs, hasGlob, nil
}

// ValidateName checks a single child or attribute name.
func ValidateName(name string) error {
	if glob, err := validateSegment(name, false); err != nil {
		return err
	} else if glob {
		return fmt.Errorf("%w: glob character in name %q", ErrInvalidPath, name)
	}
	return nil
}

func validateSegment(seg string, allowGlob bool) (hasGlob bool, err error) {
	if seg == "" {
		return false, fmt.Errorf("%w: empty segment", ErrInvalidPath)
	}
	if strings.HasPrefix(seg, ".") {
		return false, fmt.Errorf("%w: dotfile segment %q", ErrInvalidPath, seg)
	}
	for _, c := range seg {
		switch {
		case c == '\\' || c == ':' || c == ',':
			return false, fmt.Errorf("%w: character %q", ErrInvalidPath, c)
		case unicode.IsSpace(c):
			return false, fmt.Errorf("%w: whitespace in segment %q", ErrInvalidPath, seg)
		case !unicode.IsPrint(c):
			return false, fmt.Errorf("%w: unprintable character in segment %q", ErrInvalidPath, seg)
		case c == '*' || c == '?' || c == '[' || c == ']' || c == '!':
			if !allowGlob {
				return false, fmt.Errorf("%w: glob character %q", ErrInvalidPath, c)
			}
			hasGlob = true
		}
	}
	return hasGlob, nil
}

func (p Path) String() string {
	if len(p.segs) == 0 {
		return "/"
	}
	return "/" + strings.Join(p.segs, "/")
}

func (p Path) Segments() []string { return p.segs }

func (p Path) IsRoot() bool { return len(p.segs) == 0 }

// Base returns the final segment, or "" for the root.
func (p Path) Base() string {
	if len(p.segs) == 0 {
		return ""
	}
	return p.segs[len(p.segs)-1]
}

// Parent returns the path with the final segment removed. The parent of
// the root is the root.
func (p Path) Parent() Path {
	if len(p.segs) == 0 {
		return p
	}
	return Path{segs: p.segs[:len(p.segs)-1]}
}

// Child extends the path by one validated segment.
func (p Path) Child(name string) (Path, error) {
	if err := ValidateName(name); err != nil {
		return Path{}, err
	}
	segs := make([]string, 0, len(p.segs)+1)
	segs = append(segs, p.segs...)
	segs = append(segs, name)
	return Path{segs: segs}, nil
}

// ResolveRelative resolves a formula-context path reference against
// base (the node owning the formula). Supported shapes:
//
//	/abs/olute    absolute, returned as-is
//	./sibling     relative to base
//	../uncle      relative to base's parent, ".." may repeat
func ResolveRelative(base Path, ref string) (Path, error) {
	if strings.HasPrefix(ref, "/") {
		return ParsePath(ref)
	}
	cur := base
	rest := ref
	switch {
	case rest == "." || strings.HasPrefix(rest, "./"):
		rest = strings.TrimPrefix(rest, ".")
		rest = strings.TrimPrefix(rest, "/")
	case rest == ".." || strings.HasPrefix(rest, "../"):
		for rest == ".." || strings.HasPrefix(rest, "../") {
			if cur.IsRoot() {
				return Path{}, fmt.Errorf("%w: %q escapes the root", ErrInvalidPath, ref)
			}
			cur = cur.Parent()
			rest = strings.TrimPrefix(rest, "..")
			rest = strings.TrimPrefix(rest, "/")
		}
	default:
		return Path{}, fmt.Errorf("%w: relative reference %q must start with ./ or ../", ErrInvalidPath, ref)
	}
	if rest == "" {
		return cur, nil
	}
	for _, seg := range strings.Split(rest, "/") {
		next, err := cur.Child(seg)
		if err != nil {
			return Path{}, err
		}
		cur = next
	}
	return cur, nil
}
