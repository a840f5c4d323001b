package formula

import (
	"fmt"
	"math"
	"strings"

	"github.com/hearthgrid/hearth/internal/tree"
)

// Context supplies everything evaluation needs. Get reads the current
// value at an absolute path; relative references were resolved against
// the formula's own location at compile time, so the evaluator itself
// stays pure and non-recursive.
type Context struct {
	Get func(tree.Path) (tree.Value, bool)
}

// Eval executes the program. It never fails: every runtime problem
// collapses into the error-sentinel Value, which propagates through
// operators and is recoverable downstream via the :: chain.
func (p *Program) Eval(ctx *Context) tree.Value {
	return eval(p.root, ctx)
}

func eval(e Expr, ctx *Context) tree.Value {
	switch n := e.(type) {
	case *literalExpr:
		return n.val
	case *pathRef:
		v, ok := ctx.Get(n.resolved)
		if !ok {
			return tree.ErrorValue(fmt.Sprintf("no value at %s", n.resolved))
		}
		return v
	case *unaryExpr:
		return evalUnary(n, ctx)
	case *binaryExpr:
		return evalBinary(n, ctx)
	case *condExpr:
		return evalCond(n, ctx)
	case *fallbackExpr:
		return evalFallback(n, ctx)
	case *interpExpr:
		return evalInterp(n, ctx)
	}
	return tree.ErrorValue("internal: unknown expression node")
}

func evalUnary(n *unaryExpr, ctx *Context) tree.Value {
	v := eval(n.operand, ctx)
	if v.IsError() {
		return v
	}
	switch n.op {
	case tokMinus:
		f, err := v.AsNumber()
		if err != nil {
			return tree.ErrorValue(err.Error())
		}
		return tree.NumberValue(-f)
	case tokNot:
		b, err := v.AsBool()
		if err != nil {
			return tree.ErrorValue(err.Error())
		}
		return tree.BoolValue(!b)
	}
	return tree.ErrorValue("internal: unknown unary operator")
}

func evalBinary(n *binaryExpr, ctx *Context) tree.Value {
	// && and || short-circuit before the rhs is touched.
	switch n.op {
	case tokAnd, tokOr:
		return evalLogical(n, ctx)
	}

	lhs := eval(n.lhs, ctx)
	if lhs.IsError() {
		return lhs
	}
	rhs := eval(n.rhs, ctx)
	if rhs.IsError() {
		return rhs
	}

	switch n.op {
	case tokPlus:
		// Numeric addition when both sides coerce; otherwise string
		// concatenation, matching the loosely-typed wire model.
		if lhs.IsNumeric() && rhs.IsNumeric() {
			a, _ := lhs.AsNumber()
			b, _ := rhs.AsNumber()
			return tree.NumberValue(a + b)
		}
		return tree.StringValue(lhs.String() + rhs.String())
	case tokMinus, tokStar, tokSlash, tokPercent:
		a, err := lhs.AsNumber()
		if err != nil {
			return tree.ErrorValue(err.Error())
		}
		b, err := rhs.AsNumber()
		if err != nil {
			return tree.ErrorValue(err.Error())
		}
		switch n.op {
		case tokMinus:
			return tree.NumberValue(a - b)
		case tokStar:
			return tree.NumberValue(a * b)
		case tokSlash:
			if b == 0 {
				return tree.ErrorValue("division by zero")
			}
			return tree.NumberValue(a / b)
		case tokPercent:
			if b == 0 {
				return tree.ErrorValue("modulo by zero")
			}
			return tree.NumberValue(math.Mod(a, b))
		}
	case tokEq, tokNe, tokLt, tokLe, tokGt, tokGe:
		return compare(n.op, lhs, rhs)
	}
	return tree.ErrorValue("internal: unknown binary operator")
}

// compare prefers numeric ordering and falls back to lexicographic.
func compare(op tokenKind, lhs, rhs tree.Value) tree.Value {
	var cmp int
	if lhs.IsNumeric() && rhs.IsNumeric() {
		a, _ := lhs.AsNumber()
		b, _ := rhs.AsNumber()
		switch {
		case a < b:
			cmp = -1
		case a > b:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(lhs.String(), rhs.String())
	}
	switch op {
	case tokEq:
		return tree.BoolValue(cmp == 0)
	case tokNe:
		return tree.BoolValue(cmp != 0)
	case tokLt:
		return tree.BoolValue(cmp < 0)
	case tokLe:
		return tree.BoolValue(cmp <= 0)
	case tokGt:
		return tree.BoolValue(cmp > 0)
	case tokGe:
		return tree.BoolValue(cmp >= 0)
	}
	return tree.ErrorValue("internal: unknown comparison")
}

func evalLogical(n *binaryExpr, ctx *Context) tree.Value {
	lhs := eval(n.lhs, ctx)
	if lhs.IsError() {
		return lhs
	}
	lb, err := lhs.AsBool()
	if err != nil {
		return tree.ErrorValue(err.Error())
	}
	if n.op == tokAnd && !lb {
		return tree.BoolValue(false)
	}
	if n.op == tokOr && lb {
		return tree.BoolValue(true)
	}
	rhs := eval(n.rhs, ctx)
	if rhs.IsError() {
		return rhs
	}
	rb, err := rhs.AsBool()
	if err != nil {
		return tree.ErrorValue(err.Error())
	}
	return tree.BoolValue(rb)
}

func evalCond(n *condExpr, ctx *Context) tree.Value {
	for _, branch := range n.branches {
		c := eval(branch.cond, ctx)
		if c.IsError() {
			return c
		}
		b, err := c.AsBool()
		if err != nil {
			return tree.ErrorValue(err.Error())
		}
		if b {
			return eval(branch.then, ctx)
		}
	}
	return eval(n.otherwise, ctx)
}

// evalFallback returns the first operand that is neither empty nor an
// error. An erroring operand does not abort the chain; when every
// operand is empty the chain itself becomes an error sentinel.
func evalFallback(n *fallbackExpr, ctx *Context) tree.Value {
	for _, op := range n.operands {
		v := eval(op, ctx)
		if !v.IsEmpty() {
			return v
		}
	}
	return tree.ErrorValue("all fallback alternatives empty")
}

func evalInterp(n *interpExpr, ctx *Context) tree.Value {
	var b strings.Builder
	for _, part := range n.parts {
		if part.expr == nil {
			b.WriteString(part.text)
			continue
		}
		v := eval(part.expr, ctx)
		if v.IsError() {
			return v
		}
		b.WriteString(v.String())
	}
	return tree.StringValue(b.String())
}
