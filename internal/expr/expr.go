package expr

import (
	"fmt"
	"strings"
)

// Interpolate replaces every ${{ ... }} occurrence in s with the evaluated
// expression value. Text outside markers is copied verbatim.
func Interpolate(s string, ctx *Context) (string, error) {
	if !strings.Contains(s, "${{") {
		return s, nil
	}
	var b strings.Builder
	rest := s
	for {
		start := strings.Index(rest, "${{")
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:start])
		rest = rest[start+3:]
		end := strings.Index(rest, "}}")
		if end < 0 {
			return "", fmt.Errorf("unterminated ${{ in %q", s)
		}
		inner := strings.TrimSpace(rest[:end])
		rest = rest[end+2:]
		val, err := evalString(inner, ctx)
		if err != nil {
			return "", err
		}
		b.WriteString(val)
	}
}

// Evaluate evaluates a condition string to a boolean. The surrounding
// ${{ }} markers are optional. An empty condition is true.
//
// The truth value of a string is "non-empty and not the literal false".
func Evaluate(cond string, ctx *Context) (bool, error) {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return true, nil
	}
	cond = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(cond, "${{"), "}}"))
	val, err := evalString(cond, ctx)
	if err != nil {
		return false, err
	}
	return truthy(val), nil
}

func truthy(s string) bool {
	return s != "" && s != "false"
}

func evalString(src string, ctx *Context) (string, error) {
	p := &parser{tokens: lex(src), src: src, ctx: ctx}
	val, err := p.parseOr()
	if err != nil {
		return "", err
	}
	if !p.atEnd() {
		return "", fmt.Errorf("unexpected %q in expression %q", p.peek(), src)
	}
	return val, nil
}

// Grammar (strings all the way down; booleans are the strings "true"/"false"):
//
//	or     = and { "||" and }
//	and    = unary { "&&" unary }
//	unary  = "!" unary | cmp
//	cmp    = primary [ ("==" | "!=") primary ]
//	primary = "(" or ")" | 'literal' | func "(" args ")" | reference
type parser struct {
	tokens []string
	pos    int
	src    string
	ctx    *Context
}

func (p *parser) atEnd() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() string {
	if p.atEnd() {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *parser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) expect(tok string) error {
	if p.peek() != tok {
		return fmt.Errorf("expected %q in expression %q", tok, p.src)
	}
	p.pos++
	return nil
}

func (p *parser) parseOr() (string, error) {
	left, err := p.parseAnd()
	if err != nil {
		return "", err
	}
	for p.peek() == "||" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return "", err
		}
		left = boolStr(truthy(left) || truthy(right))
	}
	return left, nil
}

func (p *parser) parseAnd() (string, error) {
	left, err := p.parseUnary()
	if err != nil {
		return "", err
	}
	for p.peek() == "&&" {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return "", err
		}
		left = boolStr(truthy(left) && truthy(right))
	}
	return left, nil
}

func (p *parser) parseUnary() (string, error) {
	if p.peek() == "!" {
		p.next()
		val, err := p.parseUnary()
		if err != nil {
			return "", err
		}
		return boolStr(!truthy(val)), nil
	}
	return p.parseCmp()
}

func (p *parser) parseCmp() (string, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return "", err
	}
	switch p.peek() {
	case "==":
		p.next()
		right, err := p.parsePrimary()
		if err != nil {
			return "", err
		}
		return boolStr(left == right), nil
	case "!=":
		p.next()
		right, err := p.parsePrimary()
		if err != nil {
			return "", err
		}
		return boolStr(left != right), nil
	}
	return left, nil
}

func (p *parser) parsePrimary() (string, error) {
	tok := p.peek()
	switch {
	case tok == "":
		return "", fmt.Errorf("unexpected end of expression %q", p.src)
	case tok == "(":
		p.next()
		val, err := p.parseOr()
		if err != nil {
			return "", err
		}
		if err := p.expect(")"); err != nil {
			return "", err
		}
		return val, nil
	case strings.HasPrefix(tok, "'"):
		p.next()
		return strings.Trim(tok, "'"), nil
	default:
		p.next()
		if p.peek() == "(" {
			p.next()
			args, err := p.parseArgs()
			if err != nil {
				return "", err
			}
			return p.call(tok, args)
		}
		return p.ctx.resolve(tok), nil
	}
}

func (p *parser) parseArgs() ([]string, error) {
	var args []string
	if p.peek() == ")" {
		p.next()
		return args, nil
	}
	for {
		val, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		args = append(args, val)
		switch p.peek() {
		case ",":
			p.next()
		case ")":
			p.next()
			return args, nil
		default:
			return nil, fmt.Errorf("expected , or ) in expression %q", p.src)
		}
	}
}

func (p *parser) call(name string, args []string) (string, error) {
	switch name {
	case "hashFiles":
		baseDir := ""
		if p.ctx != nil {
			baseDir = p.ctx.BaseDir
		}
		return HashFiles(baseDir, args...)
	case "always":
		return "true", nil
	case "success":
		return boolStr(p.ctx != nil && p.ctx.AllNeedsSucceeded), nil
	case "failure":
		return boolStr(p.ctx != nil && !p.ctx.AllNeedsSucceeded), nil
	default:
		return "", fmt.Errorf("unknown function %q in expression %q", name, p.src)
	}
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// lex splits an expression into tokens: quoted literals, operators, and
// dotted references (dashes are legal in reference segments, e.g.
// steps.cache.outputs.cache-hit).
func lex(src string) []string {
	var tokens []string
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '\'':
			j := i + 1
			for j < len(src) && src[j] != '\'' {
				j++
			}
			if j < len(src) {
				j++
			}
			tokens = append(tokens, src[i:j])
			i = j
		case strings.HasPrefix(src[i:], "=="), strings.HasPrefix(src[i:], "!="),
			strings.HasPrefix(src[i:], "&&"), strings.HasPrefix(src[i:], "||"):
			tokens = append(tokens, src[i:i+2])
			i += 2
		case c == '!' || c == '(' || c == ')' || c == ',':
			tokens = append(tokens, string(c))
			i++
		default:
			j := i
			for j < len(src) && isRefChar(src[j]) {
				j++
			}
			if j == i {
				// Unknown character; emit it as its own token so the parser
				// reports a useful error.
				j = i + 1
			}
			tokens = append(tokens, src[i:j])
			i = j
		}
	}
	return tokens
}

func isRefChar(c byte) bool {
	return c == '.' || c == '-' || c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
