package formula

import (
	"testing"

	"github.com/hearthgrid/hearth/internal/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// evalWith compiles source at /room/bedroom and evaluates it against
// the supplied path values.
func evalWith(t *testing.T, source string, values map[string]string) tree.Value {
	t.Helper()
	self := tree.MustPath("/room/bedroom")
	prog, err := Compile(source, self)
	require.NoError(t, err, "compile %q", source)
	ctx := &Context{
		Get: func(p tree.Path) (tree.Value, bool) {
			s, ok := values[p.String()]
			if !ok {
				return tree.Value{}, false
			}
			return tree.StringValue(s), true
		},
	}
	return prog.Eval(ctx)
}

func TestArithmetic(t *testing.T) {
	cases := []struct {
		source string
		want   string
	}{
		{"1 + 2", "3"},
		{"10 - 4", "6"},
		{"3 * 4", "12"},
		{"9 / 2", "4.5"},
		{"9 % 4", "1"},
		{"-(2 + 3)", "-5"},
		{"1 + 2 * 3", "7"},
		{"(1 + 2) * 3", "9"},
		{"2.5 + 0.5", "3"},
	}
	for _, tc := range cases {
		got := evalWith(t, tc.source, nil)
		assert.Equal(t, tc.want, got.String(), "source %q", tc.source)
	}
}

func TestStringConcatAndComparison(t *testing.T) {
	assert.Equal(t, `foobar`, evalWith(t, `"foo" + "bar"`, nil).String())
	assert.Equal(t, "true", evalWith(t, `"abc" == "abc"`, nil).String())
	assert.Equal(t, "true", evalWith(t, `"abc" < "abd"`, nil).String())
	assert.Equal(t, "true", evalWith(t, `"10" >= "9"`, nil).String()) // numeric, not lexicographic
	assert.Equal(t, "false", evalWith(t, `1 != 1`, nil).String())
}

func TestBooleans(t *testing.T) {
	assert.Equal(t, "true", evalWith(t, "true || false", nil).String())
	assert.Equal(t, "false", evalWith(t, "true && false", nil).String())
	assert.Equal(t, "true", evalWith(t, "!false", nil).String())
	// Short-circuit: the erroring rhs is never reached.
	assert.Equal(t, "false", evalWith(t, `false && /no/such/path`, nil).String())
}

func TestPathReferences(t *testing.T) {
	values := map[string]string{
		"/room/bedroom/switch":  "on",
		"/room/kitchen/switch":  "off",
		"/global/default-color": "warm",
	}
	assert.Equal(t, "on", evalWith(t, "./switch", values).String())
	assert.Equal(t, "off", evalWith(t, "../kitchen/switch", values).String())
	assert.Equal(t, "warm", evalWith(t, "/global/default-color", values).String())

	missing := evalWith(t, "./missing", values)
	assert.True(t, missing.IsError())
}

func TestStaticDependencyExtraction(t *testing.T) {
	prog, err := Compile(
		`if ./motion == "on" then /global/bright else ../hall/dim :: "0"`,
		tree.MustPath("/room/bedroom"))
	require.NoError(t, err)

	var deps []string
	for _, d := range prog.Dependencies() {
		deps = append(deps, d.String())
	}
	assert.Equal(t, []string{
		"/global/bright",
		"/room/bedroom/motion",
		"/room/hall/dim",
	}, deps)
}

func TestDependenciesDeduplicated(t *testing.T) {
	prog, err := Compile("./a + ./a + ./a", tree.MustPath("/n"))
	require.NoError(t, err)
	assert.Len(t, prog.Dependencies(), 1)
}

func TestConditional(t *testing.T) {
	values := map[string]string{"/room/bedroom/level": "7"}
	source := `if ./level > 8 then "high" elif ./level > 4 then "medium" else "low"`
	assert.Equal(t, "medium", evalWith(t, source, values).String())

	values["/room/bedroom/level"] = "9"
	assert.Equal(t, "high", evalWith(t, source, values).String())

	values["/room/bedroom/level"] = "1"
	assert.Equal(t, "low", evalWith(t, source, values).String())
}

func TestFallbackChain(t *testing.T) {
	values := map[string]string{
		"/room/bedroom/a": "",
		"/room/bedroom/b": "low",
	}
	// a is empty, b evaluates to "low".
	assert.Equal(t, "low", evalWith(t, `./a :: ./b :: "default"`, values).String())

	// Absent path and empty both skip to the default.
	assert.Equal(t, "default", evalWith(t, `./a :: ./nope :: "default"`, values).String())

	// Every alternative empty: the chain is itself an error sentinel.
	out := evalWith(t, `./a :: ""`, values)
	assert.True(t, out.IsError())
}

func TestInterpolation(t *testing.T) {
	values := map[string]string{
		"/room/bedroom/hue":   "120",
		"/room/bedroom/level": "3",
	}
	got := evalWith(t, `"hsb({./hue}, 100, {./level * 10})"`, values)
	assert.Equal(t, "hsb(120, 100, 30)", got.String())

	// Escaped braces are literal text.
	got = evalWith(t, `"\{not interpolated\}"`, nil)
	assert.Equal(t, "{not interpolated}", got.String())

	// An erroring interpolation poisons the whole string.
	got = evalWith(t, `"x={./missing}"`, values)
	assert.True(t, got.IsError())
}

func TestCoercionFailureYieldsErrorValue(t *testing.T) {
	values := map[string]string{"/room/bedroom/mode": "eco"}
	out := evalWith(t, "./mode * 2", values)
	require.True(t, out.IsError())
	assert.Contains(t, out.ErrorContext(), "not a number")
}

func TestErrorPropagatesUnlessCaught(t *testing.T) {
	values := map[string]string{"/room/bedroom/mode": "eco"}
	// Error flows through arithmetic...
	out := evalWith(t, "(./mode * 2) + 1", values)
	assert.True(t, out.IsError())
	// ...but :: recovers it.
	out = evalWith(t, `(./mode * 2) :: "fallback"`, values)
	assert.Equal(t, "fallback", out.String())
}

func TestDivisionByZero(t *testing.T) {
	assert.True(t, evalWith(t, "1 / 0", nil).IsError())
	assert.True(t, evalWith(t, "1 % 0", nil).IsError())
}

func TestSyntaxErrors(t *testing.T) {
	self := tree.MustPath("/n")
	bad := []string{
		"",
		"1 +",
		"(1 + 2",
		`"unterminated`,
		`"{ }"`,
		"if true then 1",
		"if true then 1 elif false then 2",
		"1 ~ 2",
		"foo",
		"./x ../",
		`"{1 + }"`,
	}
	for _, source := range bad {
		_, err := Compile(source, self)
		assert.ErrorIs(t, err, ErrSyntax, "source %q", source)
	}
}

func TestRelativeEscapeFailsCompile(t *testing.T) {
	_, err := Compile("../../x", tree.MustPath("/top"))
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestPathDivisionAmbiguity(t *testing.T) {
	values := map[string]string{"/a/b": "10"}
	// '/' after an operand divides; at expression start it is a path.
	assert.Equal(t, "5", evalWith(t, "/a/b / 2", values).String())
}
