package formula

import (
	"fmt"
	"sort"

	"github.com/hearthgrid/hearth/internal/tree"
)

// Program is a compiled formula: the AST plus the statically extracted
// dependency list, resolved against the formula's own node.
type Program struct {
	Source string
	root   Expr
	deps   []tree.Path
}

// Compile parses source and resolves every path reference against self,
// the node that owns the formula attribute. The dependency list is
// fixed here; evaluation never adds to it.
func Compile(source string, self tree.Path) (*Program, error) {
	toks, err := tokenize(source)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, src: source}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("%w: trailing input at offset %d", ErrSyntax, p.peek().pos)
	}

	prog := &Program{Source: source, root: root}
	seen := make(map[string]bool)
	var resolveErr error
	root.eachPathRef(func(ref *pathRef) {
		resolved, err := tree.ResolveRelative(self, ref.raw)
		if err != nil && resolveErr == nil {
			resolveErr = fmt.Errorf("%w: %v", ErrSyntax, err)
			return
		}
		ref.resolved = resolved
		if !seen[resolved.String()] {
			seen[resolved.String()] = true
			prog.deps = append(prog.deps, resolved)
		}
	})
	if resolveErr != nil {
		return nil, resolveErr
	}
	sort.Slice(prog.deps, func(i, j int) bool {
		return prog.deps[i].String() < prog.deps[j].String()
	})
	return prog, nil
}

// Dependencies returns the static dependency list in path order.
func (p *Program) Dependencies() []tree.Path {
	return p.deps
}

type parser struct {
	toks []token
	pos  int
	src  string
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, fmt.Errorf("%w: expected %s at offset %d", ErrSyntax, what, t.pos)
	}
	return t, nil
}

// expr := ternary ( "::" ternary )*
func (p *parser) parseExpr() (Expr, error) {
	first, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokFallback {
		return first, nil
	}
	fb := &fallbackExpr{operands: []Expr{first}}
	for p.peek().kind == tokFallback {
		p.next()
		op, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		fb.operands = append(fb.operands, op)
	}
	return fb, nil
}

// ternary := "if" expr "then" expr ( "elif" expr "then" expr )* "else" expr | or
func (p *parser) parseTernary() (Expr, error) {
	if p.peek().kind != tokIdent || p.peek().text != "if" {
		return p.parseOr()
	}
	p.next()
	cond := &condExpr{}
	for {
		c, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if t := p.next(); t.kind != tokIdent || t.text != "then" {
			return nil, fmt.Errorf("%w: expected 'then' at offset %d", ErrSyntax, t.pos)
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		cond.branches = append(cond.branches, condBranch{cond: c, then: val})

		t := p.next()
		if t.kind != tokIdent {
			return nil, fmt.Errorf("%w: expected 'elif' or 'else' at offset %d", ErrSyntax, t.pos)
		}
		switch t.text {
		case "elif":
			continue
		case "else":
			other, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			cond.otherwise = other
			return cond, nil
		default:
			return nil, fmt.Errorf("%w: expected 'elif' or 'else', got %q", ErrSyntax, t.text)
		}
	}
}

func (p *parser) parseOr() (Expr, error) {
	lhs, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		rhs, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lhs = &binaryExpr{op: tokOr, lhs: lhs, rhs: rhs}
	}
	return lhs, nil
}

func (p *parser) parseAnd() (Expr, error) {
	lhs, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		rhs, err := p.parseCmp()
		if err != nil {
			return nil, err
		}
		lhs = &binaryExpr{op: tokAnd, lhs: lhs, rhs: rhs}
	}
	return lhs, nil
}

func (p *parser) parseCmp() (Expr, error) {
	lhs, err := p.parseSum()
	if err != nil {
		return nil, err
	}
	switch k := p.peek().kind; k {
	case tokEq, tokNe, tokLt, tokLe, tokGt, tokGe:
		p.next()
		rhs, err := p.parseSum()
		if err != nil {
			return nil, err
		}
		return &binaryExpr{op: k, lhs: lhs, rhs: rhs}, nil
	}
	return lhs, nil
}

func (p *parser) parseSum() (Expr, error) {
	lhs, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		k := p.peek().kind
		if k != tokPlus && k != tokMinus {
			return lhs, nil
		}
		p.next()
		rhs, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		lhs = &binaryExpr{op: k, lhs: lhs, rhs: rhs}
	}
}

func (p *parser) parseTerm() (Expr, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		k := p.peek().kind
		if k != tokStar && k != tokSlash && k != tokPercent {
			return lhs, nil
		}
		p.next()
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		lhs = &binaryExpr{op: k, lhs: lhs, rhs: rhs}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	switch k := p.peek().kind; k {
	case tokMinus, tokNot:
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{op: k, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return &literalExpr{val: tree.NumberValue(t.num)}, nil
	case tokBool:
		return &literalExpr{val: tree.BoolValue(t.b)}, nil
	case tokPath:
		return &pathRef{raw: t.text}, nil
	case tokString:
		return p.buildString(t)
	case tokLParen:
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil
	case tokIdent:
		return nil, fmt.Errorf("%w: unexpected word %q at offset %d", ErrSyntax, t.text, t.pos)
	}
	return nil, fmt.Errorf("%w: unexpected token at offset %d", ErrSyntax, t.pos)
}

// buildString compiles the interpolations inside a string token. A
// string with no interpolation collapses to a plain literal.
func (p *parser) buildString(t token) (Expr, error) {
	hasInterp := false
	for _, part := range t.parts {
		if part.interp {
			hasInterp = true
			break
		}
	}
	if !hasInterp {
		text := ""
		for _, part := range t.parts {
			text += part.text
		}
		return &literalExpr{val: tree.StringValue(text)}, nil
	}
	out := &interpExpr{}
	for _, part := range t.parts {
		if !part.interp {
			out.parts = append(out.parts, interpPart{text: part.text})
			continue
		}
		toks, err := tokenize(part.source)
		if err != nil {
			return nil, err
		}
		sub := &parser{toks: toks, src: part.source}
		inner, err := sub.parseExpr()
		if err != nil {
			return nil, err
		}
		if sub.peek().kind != tokEOF {
			return nil, fmt.Errorf("%w: trailing input in interpolation %q", ErrSyntax, part.source)
		}
		out.parts = append(out.parts, interpPart{expr: inner})
	}
	return out, nil
}
