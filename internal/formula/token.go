package formula

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ErrSyntax wraps every compile-time failure of the formula language.
var ErrSyntax = errors.New("formula syntax error")

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString // carries parts: literal text interleaved with nested sources
	tokBool
	tokPath // absolute or ./ ../ relative reference
	tokIdent
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokPercent
	tokEq
	tokNe
	tokLt
	tokLe
	tokGt
	tokGe
	tokAnd
	tokOr
	tokFallback // ::
	tokNot
	tokLParen
	tokRParen
)

// stringPart is one piece of a string literal: either literal text or
// the raw source of a braced interpolation, compiled later by the
// parser.
type stringPart struct {
	text   string
	source string
	interp bool
}

type token struct {
	kind  tokenKind
	text  string
	num   float64
	b     bool
	parts []stringPart
	pos   int
}

type lexer struct {
	src  string
	pos  int
	toks []token
}

func tokenize(src string) ([]token, error) {
	lx := &lexer{src: src}
	if err := lx.run(); err != nil {
		return nil, err
	}
	return lx.toks, nil
}

func (lx *lexer) run() error {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			lx.pos++
		case c == '"':
			if err := lx.lexString(); err != nil {
				return err
			}
		case c >= '0' && c <= '9':
			lx.lexNumber()
		case c == '/' || c == '.':
			if lx.startsPath() {
				if err := lx.lexPath(); err != nil {
					return err
				}
			} else if c == '/' {
				lx.emit(token{kind: tokSlash, pos: lx.pos})
				lx.pos++
			} else {
				return fmt.Errorf("%w: stray '.' at offset %d", ErrSyntax, lx.pos)
			}
		case isNameStart(rune(c)):
			lx.lexWord()
		default:
			if err := lx.lexOperator(); err != nil {
				return err
			}
		}
	}
	lx.emit(token{kind: tokEOF, pos: lx.pos})
	return nil
}

func (lx *lexer) emit(t token) { lx.toks = append(lx.toks, t) }

// startsPath disambiguates '/' between division and a path reference:
// after an operand a '/' divides, anywhere else it opens a path.
// '.' or '..' followed by '/' always opens a relative path.
func (lx *lexer) startsPath() bool {
	c := lx.src[lx.pos]
	if c == '.' {
		rest := lx.src[lx.pos:]
		return strings.HasPrefix(rest, "./") || strings.HasPrefix(rest, "../")
	}
	if len(lx.toks) > 0 {
		switch lx.toks[len(lx.toks)-1].kind {
		case tokNumber, tokString, tokBool, tokPath, tokRParen:
			return false
		}
	}
	return true
}

func (lx *lexer) lexPath() error {
	start := lx.pos
	for lx.pos < len(lx.src) {
		c := rune(lx.src[lx.pos])
		if c == '/' || c == '.' || c == '-' || c == '_' ||
			unicode.IsLetter(c) || unicode.IsDigit(c) {
			lx.pos++
			continue
		}
		break
	}
	text := lx.src[start:lx.pos]
	if strings.HasSuffix(text, "/") {
		return fmt.Errorf("%w: path %q ends with '/'", ErrSyntax, text)
	}
	lx.emit(token{kind: tokPath, text: text, pos: start})
	return nil
}

func (lx *lexer) lexNumber() {
	start := lx.pos
	seenDot := false
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		if c >= '0' && c <= '9' {
			lx.pos++
		} else if c == '.' && !seenDot && lx.pos+1 < len(lx.src) &&
			lx.src[lx.pos+1] >= '0' && lx.src[lx.pos+1] <= '9' {
			seenDot = true
			lx.pos++
		} else {
			break
		}
	}
	text := lx.src[start:lx.pos]
	n, _ := strconv.ParseFloat(text, 64)
	lx.emit(token{kind: tokNumber, text: text, num: n, pos: start})
}

func (lx *lexer) lexWord() {
	start := lx.pos
	for lx.pos < len(lx.src) && isNameChar(rune(lx.src[lx.pos])) {
		lx.pos++
	}
	word := lx.src[start:lx.pos]
	switch word {
	case "true":
		lx.emit(token{kind: tokBool, text: word, b: true, pos: start})
	case "false":
		lx.emit(token{kind: tokBool, text: word, b: false, pos: start})
	default:
		lx.emit(token{kind: tokIdent, text: word, pos: start})
	}
}

// lexString consumes a double-quoted literal, splitting out brace
// interpolations. Escapes: \" \\ \n \t \{ \}.
func (lx *lexer) lexString() error {
	start := lx.pos
	lx.pos++ // opening quote
	var parts []stringPart
	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			parts = append(parts, stringPart{text: text.String()})
			text.Reset()
		}
	}
	for {
		if lx.pos >= len(lx.src) {
			return fmt.Errorf("%w: unterminated string at offset %d", ErrSyntax, start)
		}
		c := lx.src[lx.pos]
		switch c {
		case '"':
			lx.pos++
			flush()
			lx.emit(token{kind: tokString, parts: parts, pos: start})
			return nil
		case '\\':
			if lx.pos+1 >= len(lx.src) {
				return fmt.Errorf("%w: dangling escape at offset %d", ErrSyntax, lx.pos)
			}
			switch e := lx.src[lx.pos+1]; e {
			case '"', '\\', '{', '}':
				text.WriteByte(e)
			case 'n':
				text.WriteByte('\n')
			case 't':
				text.WriteByte('\t')
			default:
				return fmt.Errorf("%w: unknown escape \\%c", ErrSyntax, e)
			}
			lx.pos += 2
		case '{':
			inner, err := lx.captureInterp()
			if err != nil {
				return err
			}
			flush()
			parts = append(parts, stringPart{source: inner, interp: true})
		default:
			text.WriteByte(c)
			lx.pos++
		}
	}
}

// captureInterp consumes "{...}" starting at the opening brace and
// returns the inner source, tracking nested braces and quoted strings.
func (lx *lexer) captureInterp() (string, error) {
	open := lx.pos
	lx.pos++ // opening brace
	depth := 1
	inString := false
	start := lx.pos
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case inString && c == '\\':
			lx.pos++ // skip escaped char
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				inner := lx.src[start:lx.pos]
				lx.pos++
				if strings.TrimSpace(inner) == "" {
					return "", fmt.Errorf("%w: empty interpolation at offset %d", ErrSyntax, open)
				}
				return inner, nil
			}
		}
		lx.pos++
	}
	return "", fmt.Errorf("%w: unterminated interpolation at offset %d", ErrSyntax, open)
}

func (lx *lexer) lexOperator() error {
	two := ""
	if lx.pos+1 < len(lx.src) {
		two = lx.src[lx.pos : lx.pos+2]
	}
	switch two {
	case "==":
		lx.emit(token{kind: tokEq, pos: lx.pos})
	case "!=":
		lx.emit(token{kind: tokNe, pos: lx.pos})
	case "<=":
		lx.emit(token{kind: tokLe, pos: lx.pos})
	case ">=":
		lx.emit(token{kind: tokGe, pos: lx.pos})
	case "&&":
		lx.emit(token{kind: tokAnd, pos: lx.pos})
	case "||":
		lx.emit(token{kind: tokOr, pos: lx.pos})
	case "::":
		lx.emit(token{kind: tokFallback, pos: lx.pos})
	default:
		switch c := lx.src[lx.pos]; c {
		case '+':
			lx.emit(token{kind: tokPlus, pos: lx.pos})
		case '-':
			lx.emit(token{kind: tokMinus, pos: lx.pos})
		case '*':
			lx.emit(token{kind: tokStar, pos: lx.pos})
		case '%':
			lx.emit(token{kind: tokPercent, pos: lx.pos})
		case '<':
			lx.emit(token{kind: tokLt, pos: lx.pos})
		case '>':
			lx.emit(token{kind: tokGt, pos: lx.pos})
		case '!':
			lx.emit(token{kind: tokNot, pos: lx.pos})
		case '(':
			lx.emit(token{kind: tokLParen, pos: lx.pos})
		case ')':
			lx.emit(token{kind: tokRParen, pos: lx.pos})
		default:
			return fmt.Errorf("%w: unexpected character %q at offset %d", ErrSyntax, c, lx.pos)
		}
		lx.pos++
		return nil
	}
	lx.pos += 2
	return nil
}

func isNameStart(c rune) bool {
	return unicode.IsLetter(c) || c == '_'
}

func isNameChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '-'
}
