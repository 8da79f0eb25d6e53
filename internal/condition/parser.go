package condition

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/loot-core/loot/internal/version"
)

// Parse compiles a condition expression per the grammar:
//
//	expr    := or-expr
//	or-expr := and-expr ("or" and-expr)*
//	and-expr:= unary ("and" unary)*
//	unary   := "not" unary | "(" expr ")" | func
func Parse(input string) (Expr, error) {
	p := &parser{input: input}
	p.skipSpace()
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, &ParseError{Position: p.pos, Expected: "end of expression"}
	}
	return e, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}

func (p *parser) peekWord(word string) bool {
	p.skipSpace()
	end := p.pos + len(word)
	if end > len(p.input) {
		return false
	}
	if !strings.EqualFold(p.input[p.pos:end], word) {
		return false
	}
	// require a non-identifier boundary after the keyword
	if end < len(p.input) && (unicode.IsLetter(rune(p.input[end])) || unicode.IsDigit(rune(p.input[end])) || p.input[end] == '_') {
		return false
	}
	return true
}

func (p *parser) consumeWord(word string) {
	p.skipSpace()
	p.pos += len(word)
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for {
		if p.peekWord("or") {
			p.consumeWord("or")
			right, err := p.parseAnd()
			if err != nil {
				return nil, err
			}
			left = &orExpr{left: left, right: right}
			continue
		}
		return left, nil
	}
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		if p.peekWord("and") {
			p.consumeWord("and")
			right, err := p.parseUnary()
			if err != nil {
				return nil, err
			}
			left = &andExpr{left: left, right: right}
			continue
		}
		return left, nil
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peekWord("not") {
		p.consumeWord("not")
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notExpr{inner: inner}, nil
	}

	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '(' {
		p.pos++
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return nil, &ParseError{Position: p.pos, Expected: "')'"}
		}
		p.pos++
		return e, nil
	}

	return p.parseFunc()
}

func (p *parser) parseFunc() (Expr, error) {
	p.skipSpace()
	name, ok := p.readIdent()
	if !ok {
		return nil, &ParseError{Position: p.pos, Expected: "function name"}
	}
	if err := p.expectByte('('); err != nil {
		return nil, err
	}

	switch name {
	case "file":
		path, err := p.parseString()
		if err != nil {
			return nil, err
		}
		if err := p.expectByte(')'); err != nil {
			return nil, err
		}
		return &fileExpr{path: path}, nil
	case "readable":
		path, err := p.parseString()
		if err != nil {
			return nil, err
		}
		if err := p.expectByte(')'); err != nil {
			return nil, err
		}
		return &readableExpr{path: path}, nil
	case "active":
		path, err := p.parseString()
		if err != nil {
			return nil, err
		}
		if err := p.expectByte(')'); err != nil {
			return nil, err
		}
		return &activeExpr{path: path}, nil
	case "is_master":
		path, err := p.parseString()
		if err != nil {
			return nil, err
		}
		if err := p.expectByte(')'); err != nil {
			return nil, err
		}
		return &isMasterExpr{path: path}, nil
	case "regex":
		pat, err := p.parseString()
		if err != nil {
			return nil, err
		}
		if err := p.expectByte(')'); err != nil {
			return nil, err
		}
		return &regexExpr{pattern: pat}, nil
	case "many":
		pat, err := p.parseString()
		if err != nil {
			return nil, err
		}
		if err := p.expectByte(')'); err != nil {
			return nil, err
		}
		return &manyExpr{pattern: pat}, nil
	case "many_active":
		pat, err := p.parseString()
		if err != nil {
			return nil, err
		}
		if err := p.expectByte(')'); err != nil {
			return nil, err
		}
		return &manyActiveExpr{pattern: pat}, nil
	case "checksum":
		path, err := p.parseString()
		if err != nil {
			return nil, err
		}
		if err := p.expectByte(','); err != nil {
			return nil, err
		}
		hex, err := p.readHex()
		if err != nil {
			return nil, err
		}
		if err := p.expectByte(')'); err != nil {
			return nil, err
		}
		return &checksumExpr{path: path, hex: hex}, nil
	case "version", "product_version", "filename_version":
		path, err := p.parseString()
		if err != nil {
			return nil, err
		}
		if err := p.expectByte(','); err != nil {
			return nil, err
		}
		target, err := p.parseString()
		if err != nil {
			return nil, err
		}
		if err := p.expectByte(','); err != nil {
			return nil, err
		}
		cmp, err := p.readComparator()
		if err != nil {
			return nil, err
		}
		if err := p.expectByte(')'); err != nil {
			return nil, err
		}
		return &versionExpr{
			path:    path,
			target:  target,
			cmp:     cmp,
			product: name == "product_version",
			byName:  name == "filename_version",
		}, nil
	default:
		return nil, &ParseError{Position: p.pos - len(name), Expected: "a known function name"}
	}
}

func (p *parser) readIdent() (string, bool) {
	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c)) || c == '_' {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return "", false
	}
	return p.input[start:p.pos], true
}

func (p *parser) expectByte(b byte) error {
	p.skipSpace()
	if p.pos >= len(p.input) || p.input[p.pos] != b {
		return &ParseError{Position: p.pos, Expected: "'" + string(b) + "'"}
	}
	p.pos++
	return nil
}

// parseString reads either a quoted string or a bare filename (no
// spaces, parens, or commas) per the grammar's "path" production.
func (p *parser) parseString() (string, error) {
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '"' {
		start := p.pos
		p.pos++
		for p.pos < len(p.input) && p.input[p.pos] != '"' {
			if p.input[p.pos] == '\\' && p.pos+1 < len(p.input) {
				p.pos++
			}
			p.pos++
		}
		if p.pos >= len(p.input) {
			return "", &ParseError{Position: start, Expected: "closing '\"'"}
		}
		raw := p.input[start+1 : p.pos]
		p.pos++
		unquoted, err := strconv.Unquote(`"` + strings.ReplaceAll(raw, `"`, `\"`) + `"`)
		if err != nil {
			return raw, nil
		}
		return unquoted, nil
	}

	start := p.pos
	for p.pos < len(p.input) {
		c := p.input[p.pos]
		if c == ',' || c == ')' || c == '(' || unicode.IsSpace(rune(c)) {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", &ParseError{Position: start, Expected: "a path"}
	}
	return p.input[start:p.pos], nil
}

func (p *parser) readHex() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.input) && isHexDigit(p.input[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		return "", &ParseError{Position: start, Expected: "a hex32 checksum"}
	}
	return p.input[start:p.pos], nil
}

func isHexDigit(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func (p *parser) readComparator() (version.Comparator, error) {
	p.skipSpace()
	for _, c := range []version.Comparator{version.Eq, version.Ne, version.Le, version.Ge, version.Lt, version.Gt} {
		if strings.HasPrefix(p.input[p.pos:], string(c)) {
			p.pos += len(c)
			return c, nil
		}
	}
	return "", &ParseError{Position: p.pos, Expected: "a comparator"}
}
