package zone

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxLineSize bounds one physical line. DNSKEY and RRSIG lines of large
// zones stay well below it.
const maxLineSize = 4 << 20

// utf8BOM may start the first line of files saved by some editors.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Line is one logical master-file line: comments stripped, parenthesized
// continuations joined and split into fields. Quoted strings are single fields
// that keep their quotes.
type Line struct {
	Num      int  // physical line the logical line started on
	Indented bool // the line started with whitespace, so it has no owner field
	Fields   []string
}

// Tokenizer turns a character stream into logical lines. Use it like a
// dns.ZoneParser:
//
//	t := NewTokenizer(r, "example.com.zone")
//	for l, ok := t.Next(); ok; l, ok = t.Next() {
//		...
//	}
//	if err := t.Err(); err != nil {
//		...
//	}
type Tokenizer struct {
	scanner *bufio.Scanner
	source  string
	num     int
	err     error

	// logical line being assembled
	fields   []string
	started  bool
	start    int
	indented bool
	depth    int
	openLine int
}

// NewTokenizer returns a Tokenizer reading r. source names the stream in errors.
func NewTokenizer(r io.Reader, source string) *Tokenizer {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Tokenizer{scanner: s, source: source}
}

// Next returns the next logical line. It returns false at the end of the
// stream or on the first error, which Err then reports.
func (t *Tokenizer) Next() (Line, bool) {
	if t.err != nil {
		return Line{}, false
	}
	for t.scanner.Scan() {
		t.num++
		b := t.scanner.Bytes()
		if t.num == 1 {
			b = bytes.TrimPrefix(b, utf8BOM)
		}
		if err := t.scanLine(b); err != nil {
			t.err = err
			return Line{}, false
		}
		if t.depth > 0 {
			continue
		}
		if len(t.fields) == 0 {
			t.started = false
			continue
		}
		l := Line{Num: t.start, Indented: t.indented, Fields: t.fields}
		t.fields = nil
		t.started = false
		return l, true
	}
	if err := t.scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			t.err = syntaxErrorf(t.source, t.num+1, "line longer than %d bytes", maxLineSize)
		} else {
			t.err = fmt.Errorf("%s: read: %w", t.source, err)
		}
		return Line{}, false
	}
	if t.depth > 0 {
		t.err = &ParseError{Source: t.source, Line: t.openLine, Kind: ErrUnterminated, Msg: "missing closing parenthesis"}
	}
	return Line{}, false
}

// Err returns the error that stopped the tokenizer, if any.
func (t *Tokenizer) Err() error {
	return t.err
}

// begin marks the start of a logical line on the current physical line.
func (t *Tokenizer) begin(b []byte) {
	if t.started {
		return
	}
	t.started = true
	t.start = t.num
	t.indented = len(b) > 0 && (b[0] == ' ' || b[0] == '\t')
}

// scanLine feeds one physical line into the logical line being assembled.
func (t *Tokenizer) scanLine(b []byte) error {
	var (
		cur     []byte
		inField bool
		inQuote bool
	)
	flush := func() {
		if inField {
			t.begin(b)
			t.fields = append(t.fields, string(cur))
			cur = cur[:0]
			inField = false
		}
	}

scan:
	for i := 0; i < len(b); i++ {
		c := b[i]
		switch {
		case c == '\\':
			cur = append(cur, c)
			inField = true
			if i+1 < len(b) {
				i++
				cur = append(cur, b[i])
			}
		case inQuote:
			cur = append(cur, c)
			if c == '"' {
				inQuote = false
			}
		case c == '"':
			cur = append(cur, c)
			inField = true
			inQuote = true
		case c == ';':
			break scan
		case c == ' ' || c == '\t' || c == '\r':
			flush()
		case c == '(':
			flush()
			t.begin(b)
			if t.depth == 0 {
				t.openLine = t.num
			}
			t.depth++
		case c == ')':
			flush()
			if t.depth == 0 {
				return syntaxErrorf(t.source, t.num, "unbalanced closing parenthesis")
			}
			t.depth--
		default:
			cur = append(cur, c)
			inField = true
		}
	}
	if inQuote {
		return syntaxErrorf(t.source, t.num, "unterminated quoted string")
	}
	flush()
	return nil
}

// TokenKind classifies the fields of a logical line.
type TokenKind int

// Token kinds, in master-file field order.
const (
	TokenOwner TokenKind = iota
	TokenTTL
	TokenClass
	TokenType
	TokenRData
	TokenDirective
)

func (k TokenKind) String() string {
	switch k {
	case TokenOwner:
		return "owner"
	case TokenTTL:
		return "ttl"
	case TokenClass:
		return "class"
	case TokenType:
		return "type"
	case TokenRData:
		return "rdata"
	case TokenDirective:
		return "directive"
	}
	return fmt.Sprintf("TokenKind(%d)", int(k))
}

// Token is one classified field. TTL is set for TokenTTL; Args holds the
// arguments of a TokenDirective.
type Token struct {
	Kind TokenKind
	Text string
	TTL  uint32
	Args []string
}

// Classify splits a logical line into typed tokens. Type and class mnemonics
// are upper-cased; every other field is returned verbatim. A directive line
// yields a single TokenDirective.
func (l Line) Classify() ([]Token, error) {
	f := l.Fields
	if len(f) == 0 {
		return nil, errors.New("empty line")
	}
	if !l.Indented && strings.HasPrefix(f[0], "$") {
		return []Token{{Kind: TokenDirective, Text: strings.ToUpper(f[0]), Args: f[1:]}}, nil
	}

	tokens := make([]Token, 0, len(f))
	if !l.Indented {
		tokens = append(tokens, Token{Kind: TokenOwner, Text: f[0]})
		f = f[1:]
	}

	// [ttl] [class] or [class] [ttl], then the type
	var haveTTL, haveClass bool
	for len(f) > 0 && !(haveTTL && haveClass) {
		tok := f[0]
		if !haveTTL && tok[0] >= '0' && tok[0] <= '9' {
			ttl, ok := parseTTL(tok)
			if !ok {
				return nil, fmt.Errorf("invalid TTL %q", tok)
			}
			tokens = append(tokens, Token{Kind: TokenTTL, Text: tok, TTL: ttl})
			haveTTL = true
			f = f[1:]
			continue
		}
		if !haveClass {
			if class, ok := canonicalClass(tok); ok {
				tokens = append(tokens, Token{Kind: TokenClass, Text: class})
				haveClass = true
				f = f[1:]
				continue
			}
		}
		break
	}

	if len(f) == 0 {
		return nil, errors.New("missing record type")
	}
	typ, ok := canonicalType(f[0])
	if !ok {
		return nil, fmt.Errorf("invalid record type %q", f[0])
	}
	tokens = append(tokens, Token{Kind: TokenType, Text: typ})
	for _, field := range f[1:] {
		tokens = append(tokens, Token{Kind: TokenRData, Text: field})
	}
	return tokens, nil
}
