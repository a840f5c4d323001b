package tree

import (
	"errors"
	"testing"
)

func TestParsePath(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"/", "/", true},
		{"/room", "/room", true},
		{"/room/bedroom/switch", "/room/bedroom/switch", true},
		{"room", "", false},
		{"//room", "", false},
		{"/room/", "", false},
		{"/.hidden", "", false},
		{"/a b", "", false},
		{"/a:b", "", false},
		{"/a,b", "", false},
		{"/room/*", "", false}, // glob chars are not paths
		{"/room/a?", "", false},
	}
	for _, tc := range cases {
		p, err := ParsePath(tc.raw)
		if tc.ok {
			if err != nil {
				t.Errorf("ParsePath(%q) error: %v", tc.raw, err)
				continue
			}
			if p.String() != tc.want {
				t.Errorf("ParsePath(%q) = %q, want %q", tc.raw, p.String(), tc.want)
			}
		} else if err == nil {
			t.Errorf("ParsePath(%q) should fail", tc.raw)
		}
	}
}

func TestPathParentBase(t *testing.T) {
	p := MustPath("/room/bedroom/switch")
	if p.Base() != "switch" {
		t.Errorf("Base = %q", p.Base())
	}
	if p.Parent().String() != "/room/bedroom" {
		t.Errorf("Parent = %q", p.Parent().String())
	}
	if !Root.Parent().IsRoot() {
		t.Error("parent of root should be root")
	}
}

func TestResolveRelative(t *testing.T) {
	base := MustPath("/room/bedroom")
	cases := []struct {
		ref  string
		want string
		ok   bool
	}{
		{"/hall/light", "/hall/light", true},
		{"./switch", "/room/bedroom/switch", true},
		{"../kitchen/switch", "/room/kitchen/switch", true},
		{"../../global", "/global", true},
		{"switch", "", false},
		{"../../../too-far", "", false},
	}
	for _, tc := range cases {
		got, err := ResolveRelative(base, tc.ref)
		if tc.ok {
			if err != nil {
				t.Errorf("ResolveRelative(%q) error: %v", tc.ref, err)
				continue
			}
			if got.String() != tc.want {
				t.Errorf("ResolveRelative(%q) = %q, want %q", tc.ref, got.String(), tc.want)
			}
		} else if err == nil {
			t.Errorf("ResolveRelative(%q) should fail", tc.ref)
		}
	}
}

func TestResolveRelativeEscapeIsInvalidPath(t *testing.T) {
	_, err := ResolveRelative(MustPath("/a"), "../../x")
	if !errors.Is(err, ErrInvalidPath) {
		t.Errorf("want ErrInvalidPath, got %v", err)
	}
}
