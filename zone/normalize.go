package zone

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"

	"github.com/miekg/dns"
)

// joinFrom lists types whose trailing base64 or hex rdata may be split across
// fields. The fields from the index on are joined into one.
var joinFrom = map[string]int{
	"DNSKEY":  3,
	"CDNSKEY": 3,
	"RRSIG":   8,
	"DS":      3,
	"CDS":     3,
	"TLSA":    3,
	"SSHFP":   2,
}

// hexTypes carry a hex digest in the joined field. It is upper-cased.
var hexTypes = map[string]bool{
	"DS":    true,
	"CDS":   true,
	"TLSA":  true,
	"SSHFP": true,
}

// hexFields lists hex rdata fields outside the joined tail. They are
// upper-cased; "-" stands for an empty salt.
var hexFields = map[string][]int{
	"NSEC3":      {3, 4},
	"NSEC3PARAM": {3},
}

// typeListFrom lists types whose rdata ends in (or holds) record type mnemonics.
var typeListFrom = map[string][2]int{
	"NSEC":  {1, -1},
	"NSEC3": {5, -1},
	"RRSIG": {0, 1},
}

// Option configures a Parser.
type Option func(*Parser)

// WithInheritTTL makes records without a TTL reuse the last explicit TTL when
// no $TTL directive is in effect, as RFC 1035 describes.
func WithInheritTTL() Option {
	return func(p *Parser) {
		p.inheritTTL = true
	}
}

// Parser normalizes the logical lines of a Tokenizer into canonical records,
// applying $ORIGIN, $TTL and owner, TTL and class inheritance. Directive state
// is local to one Parser.
type Parser struct {
	tok *Tokenizer
	err error

	origin     string
	defaultTTL uint32
	haveTTL    bool
	lastTTL    uint32
	haveLast   bool
	inheritTTL bool
	prevOwner  string
	prevClass  string
}

// NewParser returns a Parser reading master-file text from r. origin is the
// initial $ORIGIN, normally the zone apex; it may be empty when every name in
// the stream is fully qualified.
func NewParser(r io.Reader, origin, source string, opts ...Option) *Parser {
	p := &Parser{tok: NewTokenizer(r, source)}
	if origin != "" {
		p.origin = dns.CanonicalName(origin)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Next returns the next record. It returns false at the end of the stream or on
// the first error, which Err then reports. Errors are fatal for the stream.
func (p *Parser) Next() (Record, bool) {
	if p.err != nil {
		return Record{}, false
	}
	for {
		l, ok := p.tok.Next()
		if !ok {
			p.err = p.tok.Err()
			return Record{}, false
		}
		tokens, err := l.Classify()
		if err != nil {
			p.err = syntaxErrorf(p.tok.source, l.Num, "%v", err)
			return Record{}, false
		}
		if tokens[0].Kind == TokenDirective {
			if err := p.directive(l.Num, tokens[0]); err != nil {
				p.err = err
				return Record{}, false
			}
			continue
		}
		rec, err := p.record(l.Num, tokens)
		if err != nil {
			p.err = err
			return Record{}, false
		}
		return rec, true
	}
}

// Err returns the error that stopped the parser, if any.
func (p *Parser) Err() error {
	return p.err
}

func (p *Parser) directive(line int, t Token) error {
	switch t.Text {
	case "$ORIGIN":
		if len(t.Args) != 1 {
			return syntaxErrorf(p.tok.source, line, "$ORIGIN takes one argument")
		}
		name, err := p.resolve(t.Args[0])
		if err != nil {
			return syntaxErrorf(p.tok.source, line, "$ORIGIN: %v", err)
		}
		p.origin = name
	case "$TTL":
		if len(t.Args) != 1 {
			return syntaxErrorf(p.tok.source, line, "$TTL takes one argument")
		}
		ttl, ok := parseTTL(t.Args[0])
		if !ok {
			return syntaxErrorf(p.tok.source, line, "invalid $TTL %q", t.Args[0])
		}
		p.defaultTTL = ttl
		p.haveTTL = true
	default:
		return syntaxErrorf(p.tok.source, line, "unsupported directive %s", t.Text)
	}
	return nil
}

func (p *Parser) record(line int, tokens []Token) (Record, error) {
	rec := Record{Line: line}
	var (
		haveTTL   bool
		haveClass bool
		rdata     []string
	)
	for _, t := range tokens {
		switch t.Kind {
		case TokenOwner:
			owner, err := p.resolve(t.Text)
			if err != nil {
				return Record{}, syntaxErrorf(p.tok.source, line, "owner: %v", err)
			}
			rec.Owner = owner
		case TokenTTL:
			rec.TTL = t.TTL
			haveTTL = true
		case TokenClass:
			rec.Class = t.Text
			haveClass = true
		case TokenType:
			rec.Type = t.Text
		case TokenRData:
			rdata = append(rdata, t.Text)
		}
	}

	if rec.Owner == "" {
		if p.prevOwner == "" {
			return Record{}, syntaxErrorf(p.tok.source, line, "no previous owner name to inherit")
		}
		rec.Owner = p.prevOwner
	}

	switch {
	case haveTTL:
		p.lastTTL, p.haveLast = rec.TTL, true
	case p.haveTTL:
		rec.TTL = p.defaultTTL
	case p.inheritTTL && p.haveLast:
		rec.TTL = p.lastTTL
	default:
		return Record{}, &ParseError{Source: p.tok.source, Line: line, Kind: ErrMissingTTL,
			Msg: fmt.Sprintf("%s %s has no TTL and no $TTL is set", rec.Owner, rec.Type)}
	}

	if !haveClass {
		rec.Class = p.prevClass
		if rec.Class == "" {
			rec.Class = DefaultClass
		}
	}

	var err error
	rec.RData, err = p.normalizeRData(rec.Type, rdata)
	if err != nil {
		return Record{}, syntaxErrorf(p.tok.source, line, "%s %s: %v", rec.Owner, rec.Type, err)
	}

	p.prevOwner = rec.Owner
	p.prevClass = rec.Class
	return rec, nil
}

// resolve qualifies a name against the current origin and canonicalises it.
func (p *Parser) resolve(name string) (string, error) {
	if name == "@" {
		if p.origin == "" {
			return "", fmt.Errorf("@ used with no origin")
		}
		return p.origin, nil
	}
	if _, ok := dns.IsDomainName(name); !ok {
		return "", fmt.Errorf("invalid domain name %q", name)
	}
	if dns.IsFqdn(name) {
		return strings.ToLower(name), nil
	}
	switch p.origin {
	case "":
		return "", fmt.Errorf("relative name %q with no origin", name)
	case ".":
		return strings.ToLower(name) + ".", nil
	}
	return strings.ToLower(name + "." + p.origin), nil
}

func (p *Parser) normalizeRData(typ string, rdata []string) ([]string, error) {
	if len(rdata) > 0 && rdata[0] == `\#` {
		return genericRData(typ, rdata)
	}
	if n, ok := minFields[typ]; ok && len(rdata) < n {
		return nil, fmt.Errorf("truncated record: want %d rdata fields, got %d", n, len(rdata))
	}

	switch typ {
	case "A", "AAAA":
		if len(rdata) != 1 {
			return nil, fmt.Errorf("want one address, got %d fields", len(rdata))
		}
		addr, err := canonicalAddr(typ, rdata[0])
		if err != nil {
			return nil, err
		}
		return []string{addr}, nil
	}

	if from, ok := joinFrom[typ]; ok && len(rdata) > from+1 {
		joined := strings.Join(rdata[from:], "")
		rdata = append(rdata[:from:from], joined)
	}
	if from, ok := joinFrom[typ]; ok && hexTypes[typ] && len(rdata) > from {
		rdata[from] = strings.ToUpper(rdata[from])
	}

	for _, i := range hexFields[typ] {
		if i < len(rdata) && rdata[i] != "-" {
			rdata[i] = strings.ToUpper(rdata[i])
		}
	}

	for _, i := range nameFields[typ] {
		if i >= len(rdata) {
			continue
		}
		name, err := p.resolve(rdata[i])
		if err != nil {
			return nil, err
		}
		rdata[i] = name
	}

	if span, ok := typeListFrom[typ]; ok {
		end := span[1]
		if end < 0 || end > len(rdata) {
			end = len(rdata)
		}
		for i := span[0]; i < end; i++ {
			if t, ok := canonicalType(rdata[i]); ok {
				rdata[i] = t
			}
		}
	}
	return rdata, nil
}

// genericRData normalizes RFC 3597 rdata: \# <length> <hex>. Records of types
// the dns library knows are converted to their usual presentation; others keep
// the generic form with the hex joined and upper-cased.
func genericRData(typ string, rdata []string) ([]string, error) {
	if len(rdata) < 2 {
		return nil, fmt.Errorf(`\# without rdata length`)
	}
	n, err := strconv.ParseUint(rdata[1], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid rdata length %q", rdata[1])
	}
	data := strings.ToUpper(strings.Join(rdata[2:], ""))
	raw, err := hex.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid rdata hex: %v", err)
	}
	if len(raw) != int(n) {
		return nil, fmt.Errorf("rdata length %d does not match %d octets", n, len(raw))
	}

	generic := []string{`\#`, strconv.FormatUint(n, 10)}
	if data != "" {
		generic = append(generic, data)
	}
	if !KnownType(typ) {
		return generic, nil
	}
	rr, err := dns.NewRR(". 0 IN " + typ + " " + strings.Join(generic, " "))
	if err != nil {
		return nil, err
	}
	if _, ok := rr.(*dns.RFC3597); ok {
		return generic, nil
	}
	rec, err := FromRR(rr)
	if err != nil {
		return nil, err
	}
	return rec.RData, nil
}

// canonicalAddr returns the canonical text of an A or AAAA address. IPv4
// addresses in AAAA records are written in IPv4-mapped IPv6 notation.
func canonicalAddr(typ, s string) (string, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil || addr.Zone() != "" {
		return "", fmt.Errorf("invalid address %q", s)
	}
	if typ == "A" {
		if !addr.Is4() {
			return "", fmt.Errorf("%q is not an IPv4 address", s)
		}
		return addr.String(), nil
	}
	if addr.Is4() {
		addr = netip.AddrFrom16(addr.As16())
	}
	return addr.String(), nil
}
