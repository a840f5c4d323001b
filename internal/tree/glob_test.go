package tree

import "testing"

func TestGlobMatches(t *testing.T) {
	cases := []struct {
		glob string
		path string
		want bool
	}{
		// * matches exactly one segment.
		{"/*", "/a", true},
		{"/*", "/a/b", false},
		{"/room/*/switch", "/room/bedroom/switch", true},
		{"/room/*/switch", "/room/switch", false},

		// ** matches zero or more segments.
		{"/room/**/raw-state", "/room/bedroom/closet/motion/raw-state", true},
		{"/room/**/raw-state", "/room/raw-state", true},
		{"/room/**/raw-state", "/room/bedroom/state", false},
		{"/**", "/anything/at/all", true},

		// Within-segment wildcards.
		{"/room/*/hue-*/*/color", "/room/a/hue-light/desk/color", true},
		{"/room/*/hue-*/*/color", "/room/a/wemo-light/desk/color", false},
		{"/?", "/a", true},
		{"/?", "/aa", false},

		// Concrete globs behave like equality.
		{"/room/bedroom", "/room/bedroom", true},
		{"/room/bedroom", "/room/bedroo", false},
	}
	for _, tc := range cases {
		g := MustGlob(tc.glob)
		p := MustPath(tc.path)
		if got := g.Matches(p); got != tc.want {
			t.Errorf("Glob(%q).Matches(%q) = %v, want %v", tc.glob, tc.path, got, tc.want)
		}
	}
}

func TestParseGlobRejectsEmbeddedDoubleStar(t *testing.T) {
	if _, err := ParseGlob("/room/a**/state"); err == nil {
		t.Error("embedded ** should be rejected")
	}
	if _, err := ParseGlob("/room/**/**/state"); err == nil {
		t.Error("adjacent ** should be rejected")
	}
}
