package formula

import (
	"github.com/hearthgrid/hearth/internal/tree"
)

// Expr is one node of a compiled formula.
type Expr interface {
	// eachPathRef visits every path reference in the expression. Static
	// dependency extraction walks the AST; formulas are never executed
	// to discover their inputs.
	eachPathRef(fn func(*pathRef))
}

type literalExpr struct {
	val tree.Value
}

// pathRef is a reference to another attribute. Relative references are
// resolved against the owning node once, at install time.
type pathRef struct {
	raw      string
	resolved tree.Path
}

type unaryExpr struct {
	op      tokenKind // tokMinus or tokNot
	operand Expr
}

type binaryExpr struct {
	op  tokenKind
	lhs Expr
	rhs Expr
}

// condExpr is the if/then/elif/else expression. branches are tried in
// order; the first truthy condition selects the result. otherwise is
// mandatory so the expression always yields a value.
type condExpr struct {
	branches  []condBranch
	otherwise Expr
}

type condBranch struct {
	cond Expr
	then Expr
}

// fallbackExpr is the :: chain: operands evaluate left to right and the
// first non-empty, non-erroring result wins.
type fallbackExpr struct {
	operands []Expr
}

// interpExpr is a string literal with embedded expressions.
type interpExpr struct {
	parts []interpPart
}

type interpPart struct {
	text string
	expr Expr // nil for literal text
}

func (e *literalExpr) eachPathRef(fn func(*pathRef)) {}

func (e *pathRef) eachPathRef(fn func(*pathRef)) { fn(e) }

func (e *unaryExpr) eachPathRef(fn func(*pathRef)) { e.operand.eachPathRef(fn) }

func (e *binaryExpr) eachPathRef(fn func(*pathRef)) {
	e.lhs.eachPathRef(fn)
	e.rhs.eachPathRef(fn)
}

func (e *condExpr) eachPathRef(fn func(*pathRef)) {
	for _, b := range e.branches {
		b.cond.eachPathRef(fn)
		b.then.eachPathRef(fn)
	}
	e.otherwise.eachPathRef(fn)
}

func (e *fallbackExpr) eachPathRef(fn func(*pathRef)) {
	for _, op := range e.operands {
		op.eachPathRef(fn)
	}
}

func (e *interpExpr) eachPathRef(fn func(*pathRef)) {
	for _, p := range e.parts {
		if p.expr != nil {
			p.expr.eachPathRef(fn)
		}
	}
}
