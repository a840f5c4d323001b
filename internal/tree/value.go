package tree

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueKind tags the runtime type of a Value.
type ValueKind uint8

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
	KindError
)

// Value is a loosely-typed scalar. The wire representation is always a
// string; numeric and boolean views are produced on demand. A Value may
// also carry an evaluation-error sentinel, which flows through the tree
// like any other value so that one broken formula cannot abort a
// recompute pass.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

func NumberValue(n float64) Value {
	return Value{kind: KindNumber, num: n}
}

func BoolValue(b bool) Value {
	return Value{kind: KindBool, b: b}
}

// ErrorValue builds the evaluation-error sentinel. The context is
// preserved so clients can see why a formula failed.
func ErrorValue(context string) Value {
	return Value{kind: KindError, str: context}
}

func (v Value) Kind() ValueKind { return v.kind }

// IsError reports whether this value is the evaluation-error sentinel.
func (v Value) IsError() bool { return v.kind == KindError }

// ErrorContext returns the failure context for error values.
func (v Value) ErrorContext() string {
	if v.kind != KindError {
		return ""
	}
	return v.str
}

// IsEmpty reports whether the fallback operator should skip this value:
// an empty string or an error sentinel.
func (v Value) IsEmpty() bool {
	switch v.kind {
	case KindString:
		return v.str == ""
	case KindError:
		return true
	}
	return false
}

// String renders the wire form. Numbers drop a trailing ".0" so that
// integer arithmetic round-trips cleanly; error sentinels render as
// "#error(<context>)".
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindError:
		return fmt.Sprintf("#error(%s)", v.str)
	}
	return ""
}

// AsNumber coerces to float64. String values are parsed; failure to
// parse is reported so the evaluator can raise EvaluationError.
func (v Value) AsNumber() (float64, error) {
	switch v.kind {
	case KindNumber:
		return v.num, nil
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindString:
		n, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v.str)
		}
		return n, nil
	}
	return 0, fmt.Errorf("error value has no numeric form")
}

// IsNumeric reports whether AsNumber would succeed.
func (v Value) IsNumeric() bool {
	_, err := v.AsNumber()
	return err == nil
}

// AsBool coerces to bool. Strings accept true/false (any case);
// numbers are true when nonzero.
func (v Value) AsBool() (bool, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindNumber:
		return v.num != 0, nil
	case KindString:
		switch strings.ToLower(strings.TrimSpace(v.str)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", v.str)
	}
	return false, fmt.Errorf("error value has no boolean form")
}

// Equal compares wire forms. Two values are equal exactly when a
// subscriber could not tell them apart, which is the test that decides
// whether a write lands in a changeset.
func (v Value) Equal(o Value) bool {
	return v.String() == o.String()
}
