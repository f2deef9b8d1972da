package condition

// Node kinds of the expression tree.
type (
	expr interface {
		eval(state map[string]any) (any, error)
	}

	literalExpr struct {
		value any
	}

	// lookupExpr reads a (possibly nested) key from the state.
	lookupExpr struct {
		path   []string
		def    any
		hasDef bool
	}

	notExpr struct {
		x expr
	}

	negExpr struct {
		x   expr
		pos int
	}

	logicalExpr struct {
		and  bool
		l, r expr
	}

	compareExpr struct {
		op   string
		l, r expr
		pos  int
	}
)

const stateIdent = "state"

// maxDepth bounds nesting of parentheses and prefix operators.
const maxDepth = 256

var keywordLiterals = map[string]any{
	"true":  true,
	"True":  true,
	"false": false,
	"False": false,
	"null":  nil,
	"None":  nil,
	"nil":   nil,
}

type parser struct {
	src   string
	toks  []token
	pos   int
	depth int
}

func parse(src string) (expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	if p.peek().kind == tokEOF {
		return nil, newError(src, 0, "empty expression")
	}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, p.errorf(t, "unexpected %s", t)
	}
	return root, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return newError(p.src, t.pos, format, args...)
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, p.errorf(t, "expected %s, got %s", what, t)
	}
	return t, nil
}

// enter descends one nesting level; callers must defer p.leave().
func (p *parser) enter(t token) error {
	p.depth++
	if p.depth > maxDepth {
		return p.errorf(t, "expression nested too deeply (max %d levels)", maxDepth)
	}
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) isOp(texts ...string) bool {
	t := p.peek()
	for _, s := range texts {
		if (t.kind == tokOp || t.kind == tokIdent) && t.text == s {
			return true
		}
	}
	return false
}

func (p *parser) parseOr() (expr, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isOp("or", "||") {
		p.next()
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = &logicalExpr{and: false, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseAnd() (expr, error) {
	l, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isOp("and", "&&") {
		p.next()
		r, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		l = &logicalExpr{and: true, l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseNot() (expr, error) {
	if p.isOp("not", "!") {
		t := p.next()
		if err := p.enter(t); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notExpr{x: x}, nil
	}
	return p.parseCompare()
}

func (p *parser) parseCompare() (expr, error) {
	l, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind == tokOp {
		switch t.text {
		case "<", "<=", ">", ">=", "==", "!=":
			p.next()
			r, err := p.parseOperand()
			if err != nil {
				return nil, err
			}
			return &compareExpr{op: t.text, l: l, r: r, pos: t.pos}, nil
		}
	}
	return l, nil
}

func (p *parser) parseOperand() (expr, error) {
	if t := p.peek(); t.kind == tokOp && t.text == "-" {
		p.next()
		if err := p.enter(t); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &negExpr{x: x, pos: t.pos}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (expr, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return &literalExpr{value: t.num}, nil
	case tokString:
		return &literalExpr{value: t.text}, nil
	case tokLParen:
		if err := p.enter(t); err != nil {
			return nil, err
		}
		defer p.leave()
		x, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(tokRParen, `")"`); err != nil {
			return nil, err
		}
		return x, nil
	case tokIdent:
		if v, ok := keywordLiterals[t.text]; ok {
			return &literalExpr{value: v}, nil
		}
		switch t.text {
		case "and", "or", "not":
			return nil, p.errorf(t, "unexpected operator %s", t)
		case stateIdent:
			return p.parseStateLookup(t)
		}
		return p.parsePath(t)
	}
	return nil, p.errorf(t, "unexpected %s", t)
}

// parsePath parses a bare or dotted identifier path: count, user.role.
func (p *parser) parsePath(first token) (expr, error) {
	if p.peek().kind == tokLParen {
		return nil, p.errorf(first, "function calls are not allowed: %s", first.text)
	}
	path := []string{first.text}
	for p.peek().kind == tokDot {
		p.next()
		seg, err := p.expect(tokIdent, "field name")
		if err != nil {
			return nil, err
		}
		if p.peek().kind == tokLParen {
			return nil, p.errorf(seg, "method calls are not allowed: %s", seg.text)
		}
		path = append(path, seg.text)
	}
	return &lookupExpr{path: path}, nil
}

// parseStateLookup parses state['k'], state.k (any mix, nested) and
// state.get('k'[, default]).
func (p *parser) parseStateLookup(st token) (expr, error) {
	var path []string
	for {
		switch p.peek().kind {
		case tokLBrack:
			p.next()
			key, err := p.expect(tokString, "string key")
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(tokRBrack, `"]"`); err != nil {
				return nil, err
			}
			path = append(path, key.text)
			continue
		case tokDot:
			p.next()
			seg, err := p.expect(tokIdent, "field name")
			if err != nil {
				return nil, err
			}
			if p.peek().kind == tokLParen {
				if seg.text != "get" || len(path) > 0 {
					return nil, p.errorf(seg, "method calls are not allowed: %s", seg.text)
				}
				return p.parseGetCall()
			}
			path = append(path, seg.text)
			continue
		case tokLParen:
			return nil, p.errorf(st, "function calls are not allowed: %s", st.text)
		}
		break
	}
	if len(path) == 0 {
		return nil, p.errorf(st, "state must be indexed, e.g. state['key']")
	}
	return &lookupExpr{path: path}, nil
}

func (p *parser) parseGetCall() (expr, error) {
	p.next() // (
	key, err := p.expect(tokString, "string key")
	if err != nil {
		return nil, err
	}
	l := &lookupExpr{path: []string{key.text}}
	if p.peek().kind == tokComma {
		p.next()
		def, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		l.def, l.hasDef = def, true
	}
	if _, err := p.expect(tokRParen, `")"`); err != nil {
		return nil, err
	}
	return l, nil
}

// parseLiteral parses a constant default value for state.get.
func (p *parser) parseLiteral() (any, error) {
	t := p.next()
	neg := false
	if t.kind == tokOp && t.text == "-" {
		neg = true
		t = p.next()
		if t.kind != tokNumber {
			return nil, p.errorf(t, "expected number after '-'")
		}
	}
	switch t.kind {
	case tokNumber:
		if neg {
			return -t.num, nil
		}
		return t.num, nil
	case tokString:
		return t.text, nil
	case tokIdent:
		if v, ok := keywordLiterals[t.text]; ok {
			return v, nil
		}
	}
	return nil, p.errorf(t, "default must be a literal, got %s", t)
}
